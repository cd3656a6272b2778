package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadValidConfigFillsDefaults(t *testing.T) {
	path := writeTempConfig(t, `
job_id: job-1
dataset:
  video_list_path: /data/videos.json
  metadata_index_path: /data/metadata.json
sampling:
  mode: all
work_item_size: 8
evaluators:
  - name: histogram
storage:
  backend: local
  local_root: /tmp/out
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShutdownTimeoutS != 30 {
		t.Errorf("expected default shutdown_timeout_s=30, got %d", cfg.ShutdownTimeoutS)
	}
	if cfg.Workers.LoadWorkers != 4 || cfg.Workers.SaveWorkers != 4 {
		t.Errorf("expected default worker counts of 4, got %+v", cfg.Workers)
	}
}

func TestLoadGeneratesJobIDWhenOmitted(t *testing.T) {
	path := writeTempConfig(t, `
dataset:
  video_list_path: /data/videos.json
  metadata_index_path: /data/metadata.json
sampling:
  mode: all
work_item_size: 8
evaluators:
  - name: histogram
storage:
  backend: local
  local_root: /tmp/out
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JobID == "" {
		t.Fatal("expected a generated job_id when the config omits one")
	}
}

func TestValidateRejectsUnknownSamplingMode(t *testing.T) {
	cfg := &Config{
		JobID:        "job-1",
		Dataset:      DatasetConfig{VideoListPath: "x", MetadataIndexPath: "y"},
		Sampling:     SamplingConfig{Mode: "bogus"},
		WorkItemSize: 8,
		Evaluators:   []EvaluatorConfig{{Name: "histogram"}},
		Storage:      StorageConfig{Backend: "local", LocalRoot: "/tmp"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown sampling mode")
	}
}

func TestValidateRequiresStrideForStrided(t *testing.T) {
	cfg := &Config{
		JobID:        "job-1",
		Dataset:      DatasetConfig{VideoListPath: "x", MetadataIndexPath: "y"},
		Sampling:     SamplingConfig{Mode: "strided"},
		WorkItemSize: 8,
		Evaluators:   []EvaluatorConfig{{Name: "histogram"}},
		Storage:      StorageConfig{Backend: "local", LocalRoot: "/tmp"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing stride")
	}
}

func TestValidateRequiresRedisAddrWhenClusterEnabled(t *testing.T) {
	cfg := &Config{
		JobID:        "job-1",
		Dataset:      DatasetConfig{VideoListPath: "x", MetadataIndexPath: "y"},
		Sampling:     SamplingConfig{Mode: "all"},
		WorkItemSize: 8,
		Evaluators:   []EvaluatorConfig{{Name: "histogram"}},
		Storage:      StorageConfig{Backend: "local", LocalRoot: "/tmp"},
		Cluster:      ClusterConfig{Enabled: true},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing cluster.redis_addr")
	}
}

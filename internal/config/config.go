// Package config loads and validates the YAML job description that
// drives one run of the engine.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the complete job description.
type Config struct {
	JobID string `yaml:"job_id"`
	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"`

	Dataset DatasetConfig `yaml:"dataset"`
	Sampling SamplingConfig `yaml:"sampling"`
	Evaluators []EvaluatorConfig `yaml:"evaluators"`
	WorkItemSize int `yaml:"work_item_size"`
	Workers WorkersConfig `yaml:"workers"`
	Storage StorageConfig `yaml:"storage"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// DatasetConfig points at the dataset descriptor. Its own parsing is
// out of scope; this just names where to find it.
type DatasetConfig struct {
	VideoListPath string `yaml:"video_list_path"`
	MetadataIndexPath string `yaml:"metadata_index_path"`
}

// SamplingConfig names the sampling mode and its mode-specific knobs.
type SamplingConfig struct {
	Mode string `yaml:"mode"`
	Stride int `yaml:"stride,omitempty"`
}

// EvaluatorConfig names one evaluator in the chain, in execution order.
// Name is resolved against a factory registry the engine owns; the
// registry itself is out of scope.
type EvaluatorConfig struct {
	Name string `yaml:"name"`
	DeviceType string `yaml:"device_type"`
	DeviceID int `yaml:"device_id"`
	Params map[string]any `yaml:"params,omitempty"`
}

// WorkersConfig sizes the load, evaluate, and save worker pools.
// EvalWorkers applies uniformly to every thread-group the evaluator
// chain partitions into; each group's workers carry
// independent configure/reset state, so sizing a group above 1 adds
// intra-group parallelism on top of the pipeline parallelism the
// grouping itself already provides.
type WorkersConfig struct {
	LoadWorkers int `yaml:"load_workers"`
	EvalWorkers int `yaml:"eval_workers"`
	SaveWorkers int `yaml:"save_workers"`
	EvalBatchSize int `yaml:"eval_batch_size"`
}

// StorageConfig selects and parameterizes the storage.Backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	LocalRoot string `yaml:"local_root,omitempty"`
	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config mirrors storage.S3Config's fields for YAML decoding.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Endpoint string `yaml:"endpoint,omitempty"`
	UsePathStyle bool `yaml:"use_path_style,omitempty"`
	AccessKeyID string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// ClusterConfig turns on work-stealing dispatch across nodes
// and sizes its backlog gate.
type ClusterConfig struct {
	Enabled bool `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	QueueName string `yaml:"queue_name"`
	PUsPerNode int `yaml:"pus_per_node"`
	TasksInQueuePerPU int `yaml:"tasks_in_queue_per_pu"`

	// Master marks this process as the one that plans the job and
	// dispatches work items; every other node just runs an asynq
	// server pulling from the same queue.
	Master bool `yaml:"master"`
	// Nodes is how many DispatchShutdown sentinels the master enqueues
	// once the dataset is exhausted, one per node's pull loop.
	Nodes int `yaml:"nodes"`
}

// Load reads and validates a job config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.JobID == "" {
		cfg.JobID = uuid.NewString()
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid job config: %w", err)
	}

	return &cfg, nil
}

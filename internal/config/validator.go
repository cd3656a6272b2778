package config

import "fmt"

var validSamplingModes = map[string]bool{
	"all": true, "strided": true, "gather": true, "sequence_gather": true,
}

var validStorageBackends = map[string]bool{"local": true, "s3": true}

// Validate checks cfg for correctness and fills in defaults, the way
// the reference job loader does.
func Validate(cfg *Config) error {
	if cfg.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if cfg.Dataset.VideoListPath == "" {
		return fmt.Errorf("dataset.video_list_path is required")
	}
	if cfg.Dataset.MetadataIndexPath == "" {
		return fmt.Errorf("dataset.metadata_index_path is required")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 30
	}

	if cfg.WorkItemSize <= 0 {
		return fmt.Errorf("work_item_size must be > 0")
	}

	if !validSamplingModes[cfg.Sampling.Mode] {
		return fmt.Errorf("sampling.mode %q is not one of all|strided|gather|sequence_gather", cfg.Sampling.Mode)
	}
	if cfg.Sampling.Mode == "strided" && cfg.Sampling.Stride < 1 {
		return fmt.Errorf("sampling.stride must be >= 1 for strided sampling")
	}

	if len(cfg.Evaluators) == 0 {
		return fmt.Errorf("evaluators must name at least one evaluator")
	}
	for i, e := range cfg.Evaluators {
		if e.Name == "" {
			return fmt.Errorf("evaluators[%d].name is required", i)
		}
		if e.DeviceType != "" && e.DeviceType != "cpu" && e.DeviceType != "gpu" {
			return fmt.Errorf("evaluators[%d].device_type %q must be cpu or gpu", i, e.DeviceType)
		}
	}

	if cfg.Workers.LoadWorkers <= 0 {
		cfg.Workers.LoadWorkers = 4
	}
	if cfg.Workers.EvalWorkers <= 0 {
		cfg.Workers.EvalWorkers = 2
	}
	if cfg.Workers.SaveWorkers <= 0 {
		cfg.Workers.SaveWorkers = 4
	}
	if cfg.Workers.EvalBatchSize <= 0 {
		cfg.Workers.EvalBatchSize = cfg.WorkItemSize
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if !validStorageBackends[cfg.Storage.Backend] {
		return fmt.Errorf("storage.backend %q must be local or s3", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "local" && cfg.Storage.LocalRoot == "" {
		return fmt.Errorf("storage.local_root is required when storage.backend is local")
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage.backend is s3")
	}

	if cfg.Cluster.Enabled {
		if cfg.Cluster.RedisAddr == "" {
			return fmt.Errorf("cluster.redis_addr is required when cluster.enabled is true")
		}
		if cfg.Cluster.PUsPerNode <= 0 {
			cfg.Cluster.PUsPerNode = 1
		}
		if cfg.Cluster.TasksInQueuePerPU <= 0 {
			cfg.Cluster.TasksInQueuePerPU = 2
		}
		if cfg.Cluster.QueueName == "" {
			cfg.Cluster.QueueName = "videobatch"
		}
		if cfg.Cluster.Master && cfg.Cluster.Nodes <= 0 {
			cfg.Cluster.Nodes = 1
		}
	}

	return nil
}

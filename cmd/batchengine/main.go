package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/videobatch/internal/cluster"
	"github.com/e7canasta/videobatch/internal/config"
	"github.com/e7canasta/videobatch/internal/dataset"
	"github.com/e7canasta/videobatch/internal/engine"
	"github.com/e7canasta/videobatch/internal/evaluator/builtin"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/redis/go-redis/v9"
)

const defaultConfigPath = "config/job.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to job configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	samplingOverride := flag.String("sampling-mode", "", "Override config sampling.mode")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load job config", "error", err)
		os.Exit(1)
	}
	logger.Info("starting videobatch engine", "config", *configPath, "job_id", cfg.JobID)

	mode, err := parseSamplingMode(cfg.Sampling.Mode, *samplingOverride)
	if err != nil {
		logger.Error("invalid sampling mode", "error", err)
		os.Exit(1)
	}

	sources, err := dataset.Load(cfg.Dataset.VideoListPath)
	if err != nil {
		logger.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	fetcher := dataset.NewFileMetadataFetcher(cfg.Dataset.MetadataIndexPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.New(ctx, cfg, logger, builtin.Registry(), fetcher, sources, mode, nil)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	if cfg.Cluster.Enabled {
		if err := wireCounters(ctx, cfg, e); err != nil {
			logger.Error("failed to wire cluster counters", "error", err)
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runEngine(ctx, cfg, e, logger)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("engine run failed", "error", runErr)
		}
	}

	if runErr != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutS)*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
		os.Exit(1)
	}

	logger.Info("videobatch engine stopped successfully", "stats", e.Stats())
}

// runEngine drives the engine in whichever role the config names: a
// single node running the whole plan locally, a cluster worker node
// pulling tasks from asynq, or the cluster master dispatching them.
func runEngine(ctx context.Context, cfg *config.Config, e *engine.Engine, logger *slog.Logger) error {
	if !cfg.Cluster.Enabled {
		return e.Run(ctx)
	}

	e.Start(ctx)

	srv := cluster.NewServer(cfg.Cluster.RedisAddr, cfg.Cluster.QueueName, cfg.Workers.EvalWorkers+cfg.Workers.SaveWorkers)
	mux := cluster.Mux(&cluster.Handler{Engine: e})

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- srv.Run(mux) }()

	if cfg.Cluster.Master {
		go dispatchPlan(ctx, cfg, e, logger)
	}

	select {
	case <-ctx.Done():
		srv.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutS)*time.Second)
		defer shutdownCancel()
		return e.Shutdown(shutdownCtx)
	case err := <-runErrCh:
		return err
	}
}

// dispatchPlan is the cluster master's loop: it enqueues every planned
// work item, paced by BacklogGate, then tells every node's pull loop to
// stop once the dataset is exhausted.
func dispatchPlan(ctx context.Context, cfg *config.Config, e *engine.Engine, logger *slog.Logger) {
	d := cluster.NewDispatcher(cfg.Cluster.RedisAddr, cfg.Cluster.QueueName)
	defer d.Close()

	gate := cluster.BacklogGate{PUsPerNode: cfg.Cluster.PUsPerNode, TasksInQueuePerPU: cfg.Cluster.TasksInQueuePerPU}
	plan := e.Plan()

	for _, item := range plan.Items {
		for {
			stats := e.Stats()
			if gate.Admits(stats.Accepted, stats.Retired) {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
		if err := d.Dispatch(item.Index); err != nil {
			logger.Error("cluster master: dispatch failed", "work_item", item.Index, "error", err)
			return
		}
	}

	for i := 0; i < cfg.Cluster.Nodes; i++ {
		if err := d.DispatchShutdown(); err != nil {
			logger.Error("cluster master: dispatch shutdown failed", "error", err)
		}
	}
}

func wireCounters(ctx context.Context, cfg *config.Config, e *engine.Engine) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Cluster.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}
	e.WithCounters(cluster.NewCounters(client, cfg.JobID))
	return nil
}

func parseSamplingMode(configured, override string) (model.SamplingMode, error) {
	mode := configured
	if override != "" {
		mode = override
	}
	switch mode {
	case "all":
		return model.SamplingAll, nil
	case "strided":
		return model.SamplingStrided, nil
	case "gather":
		return model.SamplingGather, nil
	case "sequence_gather":
		return model.SamplingSequenceGather, nil
	default:
		return 0, &invalidSamplingModeError{mode}
	}
}

type invalidSamplingModeError struct{ mode string }

func (e *invalidSamplingModeError) Error() string {
	return "unknown sampling mode: " + e.mode
}

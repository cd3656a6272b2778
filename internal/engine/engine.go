// Package engine wires the planner, load/evaluate/save worker pools,
// and the shutdown orchestrator into one runnable pipeline. It is the composition root the reference architecture
// keeps thin: no stage logic lives here, only queue plumbing and
// lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/e7canasta/videobatch/internal/cluster"
	"github.com/e7canasta/videobatch/internal/config"
	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/evaluate"
	"github.com/e7canasta/videobatch/internal/evaluator"
	"github.com/e7canasta/videobatch/internal/group"
	"github.com/e7canasta/videobatch/internal/load"
	"github.com/e7canasta/videobatch/internal/metrics"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/planner"
	"github.com/e7canasta/videobatch/internal/queue"
	"github.com/e7canasta/videobatch/internal/save"
	"github.com/e7canasta/videobatch/internal/shutdown"
	"github.com/e7canasta/videobatch/internal/storage"
)

// VideoSource is one dataset entry: the sampling spec the planner
// consumes for it plus the path its Load workers read from. Dataset
// ingest proper is out of scope; the engine only needs
// this much of it.
type VideoSource struct {
	Path string
	Spec planner.VideoSpec
}

// Engine owns every queue and worker pool for one job run and the
// shutdown sequence that drains them in order.
type Engine struct {
	cfg *config.Config
	logger *slog.Logger
	metrics *metrics.Registry
	backend storage.Backend
	alloc evaluator.Allocator
	videos *metadataFetchCache

	groups []group.Group
	plan planner.Plan

	loadQueue *queue.Queue[load.Job]
	evalQueues []*queue.Queue[model.EvalEntry]
	saveQueue *queue.Queue[model.EvalEntry]

	loadWorkers []*load.Worker
	evalWorkers [][]*evaluate.Worker
	saveWorkers []*save.Worker

	loadDone sync.WaitGroup
	evalDone []*sync.WaitGroup
	saveDone sync.WaitGroup

	accepted int64
	retired int64

	counters *cluster.Counters
	lastSync struct {
		accepted int64
		retired int64
	}

	fatalMu sync.Mutex
	fatalErr error
}

// New builds an Engine from a validated Config, an evaluator factory
// registry keyed by the names cfg.Evaluators references, a metadata
// prober, and the dataset's video sources. alloc may be nil, in which
// case evaluator.HostAllocator is used.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry map[string]evaluator.Factory, fetcher MetadataFetcher, sources []VideoSource, mode model.SamplingMode, alloc evaluator.Allocator) (*Engine, error) {
	chain, err := buildChain(cfg.Evaluators, registry)
	if err != nil {
		return nil, err
	}

	groups, err := group.Partition(chain)
	if err != nil {
		return nil, err
	}

	videoSpecs := make([]planner.VideoSpec, len(sources))
	pathByIndex := make(map[int]string, len(sources))
	for i, src := range sources {
		videoSpecs[i] = src.Spec
		pathByIndex[src.Spec.VideoIndex] = src.Path
	}

	plan, err := planner.NewPlan(mode, videoSpecs, cfg.WorkItemSize, chain)
	if err != nil {
		return nil, err
	}

	backend, err := buildBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	if alloc == nil {
		alloc = evaluator.HostAllocator{}
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	e := &Engine{
		cfg: cfg,
		logger: logger,
		metrics: m,
		backend: backend,
		alloc: alloc,
		videos: newMetadataFetchCache(fetcher, pathByIndex),
		groups: groups,
		plan: plan,
	}

	e.loadQueue = queue.New[load.Job]()
	e.evalQueues = make([]*queue.Queue[model.EvalEntry], len(groups))
	for i := range groups {
		e.evalQueues[i] = queue.New[model.EvalEntry]()
	}
	e.saveQueue = queue.New[model.EvalEntry]()

	e.loadWorkers = make([]*load.Worker, cfg.Workers.LoadWorkers)
	for i := range e.loadWorkers {
		e.loadWorkers[i] = load.NewWorker(i, backend, e.videos, plan.WarmupSize, logger)
	}

	e.evalWorkers = make([][]*evaluate.Worker, len(groups))
	e.evalDone = make([]*sync.WaitGroup, len(groups))
	for g, grp := range groups {
		e.evalDone[g] = &sync.WaitGroup{}
		isTerminal := g == len(groups)-1
		pool := make([]*evaluate.Worker, cfg.Workers.EvalWorkers)
		for i := range pool {
			cfgs := buildEvaluatorConfigs(grp, cfg.Evaluators, cfg.Workers.EvalBatchSize, plan.WarmupSize)
			w, err := evaluate.NewWorker(i, grp, cfgs, isTerminal, e.videos, alloc, cfg.Workers.EvalBatchSize, plan.WarmupSize, logger, m)
			if err != nil {
				return nil, err
			}
			pool[i] = w
		}
		e.evalWorkers[g] = pool
	}

	e.saveWorkers = make([]*save.Worker, cfg.Workers.SaveWorkers)
	for i := range e.saveWorkers {
		e.saveWorkers[i] = save.NewWorker(i, backend, cfg.JobID, &e.retired, logger, m)
	}

	return e, nil
}

// WithCounters attaches cluster-wide accepted/retired counters: Start
// periodically reconciles this node's local atomic totals into them,
// so a BacklogGate consulted from anywhere in the cluster sees this
// node's contribution.
func (e *Engine) WithCounters(c *cluster.Counters) *Engine {
	e.counters = c
	return e
}

// Plan exposes the planner's output, mainly so a cluster master can
// dispatch WorkItem.Index values without recomputing the plan itself.
func (e *Engine) Plan() planner.Plan { return e.plan }

func buildChain(evalCfgs []config.EvaluatorConfig, registry map[string]evaluator.Factory) ([]evaluator.Factory, error) {
	chain := make([]evaluator.Factory, len(evalCfgs))
	for i, ec := range evalCfgs {
		f, ok := registry[ec.Name]
		if !ok {
			return nil, enginerr.CorruptMetadataf("engine: no evaluator factory registered for %q", ec.Name)
		}
		chain[i] = f
	}
	return chain, nil
}

func buildEvaluatorConfigs(grp group.Group, evalCfgs []config.EvaluatorConfig, batchSize, warmupSize int) []evaluator.Config {
	maxInput := batchSize
	if warmupSize > maxInput {
		maxInput = warmupSize
	}
	out := make([]evaluator.Config, len(grp.Factories))
	for j := range grp.Factories {
		ec := evalCfgs[grp.StartIndex+j]
		out[j] = evaluator.Config{
			MaxInputCount: maxInput,
			DeviceID: ec.DeviceID,
		}
	}
	return out
}

func buildBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Backend(ctx, storage.S3Config{
				Bucket: cfg.S3.Bucket,
				Region: cfg.S3.Region,
				Endpoint: cfg.S3.Endpoint,
				UsePathStyle: cfg.S3.UsePathStyle,
				AccessKeyID: cfg.S3.AccessKeyID,
				SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return storage.NewLocalBackend(cfg.LocalRoot), nil
	}
}

// Start launches every worker goroutine and, if counters are attached,
// the periodic cluster-counter reconciliation loop. It returns
// immediately; call Submit to feed work items and Shutdown to drain.
func (e *Engine) Start(ctx context.Context) {
	for _, w := range e.loadWorkers {
		w := w
		e.loadDone.Add(1)
		go func() {
			defer e.loadDone.Done()
			if err := w.Run(ctx, e.loadQueue, e.evalQueues[0]); err != nil {
				e.recordFatal(err)
			}
		}()
	}

	for g, pool := range e.evalWorkers {
		in := e.evalQueues[g]
		out := e.saveQueue
		if g < len(e.evalWorkers)-1 {
			out = e.evalQueues[g+1]
		}
		for _, w := range pool {
			w := w
			e.evalDone[g].Add(1)
			go func() {
				defer e.evalDone[g].Done()
				if err := w.Run(ctx, in, out); err != nil {
					e.recordFatal(err)
				}
			}()
		}
	}

	for _, w := range e.saveWorkers {
		w := w
		e.saveDone.Add(1)
		go func() {
			defer e.saveDone.Done()
			if err := w.Run(ctx, e.saveQueue); err != nil {
				e.recordFatal(err)
			}
		}()
	}

	if e.counters != nil {
		go e.syncCountersLoop(ctx)
	}
}

func (e *Engine) syncCountersLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.syncCounters(context.Background())
			return
		case <-ticker.C:
			e.syncCounters(ctx)
		}
	}
}

func (e *Engine) syncCounters(ctx context.Context) {
	accepted := atomic.LoadInt64(&e.accepted)
	retired := atomic.LoadInt64(&e.retired)
	if da := accepted - e.lastSync.accepted; da > 0 {
		if err := e.counters.AddAccepted(ctx, da); err != nil {
			e.logger.Error("engine: syncing accepted counter", "error", err)
		} else {
			e.lastSync.accepted = accepted
		}
	}
	if dr := retired - e.lastSync.retired; dr > 0 {
		if err := e.counters.AddRetired(ctx, dr); err != nil {
			e.logger.Error("engine: syncing retired counter", "error", err)
		} else {
			e.lastSync.retired = retired
		}
	}
}

func (e *Engine) recordFatal(err error) {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
}

// FatalError returns the first fatal worker error observed, if any.
func (e *Engine) FatalError() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatalErr
}

// Submit implements cluster.EngineSubmitter: it accepts a work item
// index into the load queue, or, on the shutdown sentinel, drains the
// pipeline.
func (e *Engine) Submit(ctx context.Context, workItemIndex int) error {
	if workItemIndex == model.SentinelWorkItemIndex {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.ShutdownTimeoutS)*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}

	if workItemIndex < 0 || workItemIndex >= len(e.plan.Items) {
		return enginerr.CorruptMetadataf("engine: work item index %d out of range", workItemIndex)
	}
	item := e.plan.Items[workItemIndex]
	entry := e.plan.Entries[workItemIndex]

	path, err := e.videos.pathForIndex(item.VideoIndex)
	if err != nil {
		return err
	}

	e.loadQueue.Push(load.Job{WorkItem: item, Entry: entry, VideoPath: path})
	atomic.AddInt64(&e.accepted, 1)
	if e.metrics != nil {
		e.metrics.ItemsAccepted.Inc()
	}
	return nil
}

// Run is the single-node entry point: start every worker, submit the
// whole plan locally in order, then drain. Cluster mode instead drives
// Submit from the asynq handler and Shutdown from the dispatcher's
// shutdown task.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)
	for i := range e.plan.Items {
		if err := e.Submit(ctx, i); err != nil {
			return err
		}
	}
	return e.Shutdown(ctx)
}

// Shutdown drains every stage in order and returns the
// first fatal worker error observed, if the drain itself succeeded.
func (e *Engine) Shutdown(ctx context.Context) error {
	o := e.buildOrchestrator()
	if err := o.Drain(ctx); err != nil {
		return err
	}
	return e.FatalError()
}

func (e *Engine) buildOrchestrator() *shutdown.Orchestrator {
	stages := make([]shutdown.Stage, 0, len(e.groups)+2)

	stages = append(stages, shutdown.Stage{
			Name: "load",
			PushSentinels: func() {
				e.loadQueue.PushSentinels(load.SentinelJob(), len(e.loadWorkers))
			},
			Join: waitWithContext(&e.loadDone),
	})

	for g := range e.groups {
		g := g
		stages = append(stages, shutdown.Stage{
				Name: fmt.Sprintf("evaluate-%d", g),
				PushSentinels: func() {
					e.evalQueues[g].PushSentinels(model.SentinelEvalEntry(), len(e.evalWorkers[g]))
				},
				Join: waitWithContext(e.evalDone[g]),
		})
	}

	stages = append(stages, shutdown.Stage{
			Name: "save",
			PushSentinels: func() {
				e.saveQueue.PushSentinels(model.SentinelEvalEntry(), len(e.saveWorkers))
			},
			Join: waitWithContext(&e.saveDone),
	})

	return &shutdown.Orchestrator{Stages: stages, Logger: e.logger}
}

func waitWithContext(wg *sync.WaitGroup) func(context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats is a point-in-time health snapshot: how many entries are
// queued at each stage boundary, and this node's accepted/retired
// totals. It carries no HTTP surface of its own; a caller wires it to
// whatever health endpoint or log line the deployment wants.
type Stats struct {
	LoadQueueDepth int
	EvalQueueDepths []int
	SaveQueueDepth int
	Accepted int64
	Retired int64
}

// Stats snapshots the engine's current queue depths and counters, and
// mirrors the depths into the Prometheus queue_depth gauge.
func (e *Engine) Stats() Stats {
	depths := make([]int, len(e.evalQueues))
	for i, q := range e.evalQueues {
		depths[i] = q.Len()
		if e.metrics != nil {
			e.metrics.QueueDepth.WithLabelValues(fmt.Sprintf("evaluate-%d", i)).Set(float64(depths[i]))
		}
	}
	loadDepth := e.loadQueue.Len()
	saveDepth := e.saveQueue.Len()
	if e.metrics != nil {
		e.metrics.QueueDepth.WithLabelValues("load").Set(float64(loadDepth))
		e.metrics.QueueDepth.WithLabelValues("save").Set(float64(saveDepth))
	}

	return Stats{
		LoadQueueDepth: loadDepth,
		EvalQueueDepths: depths,
		SaveQueueDepth: saveDepth,
		Accepted: atomic.LoadInt64(&e.accepted),
		Retired: atomic.LoadInt64(&e.retired),
	}
}

package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"resume-analyzer/internal/types"
)

// Orchestrator fans a batch out over the pipeline. At most MaxConcurrent files are in
// flight; the rest wait for a slot. It owns the process-wide worker pool.
type Orchestrator struct {
	pipeline *Pipeline
	gate     *semaphore.Weighted
	pool     *WorkerPool
	logger   zerolog.Logger

	process func(ctx context.Context, file types.UploadedFile, query string) types.FileOutcome
}

// NewOrchestrator 创建编排器及其共享工作池
func NewOrchestrator(comps Components, settings Settings) (*Orchestrator, error) {
	settings = settings.normalized()
	pool := NewWorkerPool(settings.WorkerPoolSize)

	pipeline, err := NewPipeline(comps, settings, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	o := &Orchestrator{
		pipeline: pipeline,
		gate:     semaphore.NewWeighted(int64(settings.MaxConcurrent)),
		pool:     pool,
		logger:   settings.Logger.With().Str("component", "orchestrator").Logger(),
	}
	o.process = pipeline.Process
	return o, nil
}

// ProcessAll returns one outcome per input file, index-aligned with files. It only
// returns once every file has reached a terminal state.
func (o *Orchestrator) ProcessAll(ctx context.Context, files []types.UploadedFile, query string) []types.FileOutcome {
	outcomes := make([]types.FileOutcome, len(files))

	var wg sync.WaitGroup
	wg.Add(len(files))
	for i := range files {
		go func(i int) {
			defer wg.Done()
			outcomes[i] = o.runOne(ctx, files[i], query)
		}(i)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) runOne(ctx context.Context, file types.UploadedFile, query string) (outcome types.FileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("filename", file.Filename).Interface("panic", r).Msg("pipeline panicked")
			outcome = failureOutcome(newUnexpectedError(file.Filename, "process", r))
		}
	}()

	if err := o.gate.Acquire(ctx, 1); err != nil {
		return failureOutcome(newUnexpectedError(file.Filename, "admit", err))
	}
	defer o.gate.Release(1)

	outcome = o.process(ctx, file, query)
	if outcome.Filename == "" {
		outcome.Filename = file.Filename
	}
	return outcome
}

// Pool exposes the shared worker pool.
func (o *Orchestrator) Pool() *WorkerPool {
	return o.pool
}

// Close releases the worker pool.
func (o *Orchestrator) Close() {
	o.pool.Close()
}

func (o *Orchestrator) String() string {
	return fmt.Sprintf("Orchestrator{workers=%d}", o.pool.Size())
}

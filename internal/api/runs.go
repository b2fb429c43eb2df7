package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"jobassign/internal/metrics"
	"jobassign/internal/model"
	"jobassign/internal/opt"
	"jobassign/internal/store"
)

// ErrBusy is returned when every run slot is taken and the caller asked not
// to wait.
var ErrBusy = errors.New("all optimizer slots are busy")

// Notifier receives every finished run.
type Notifier interface {
	Enqueue(run model.Run) bool
}

// RunRequest is everything one run needs.
type RunRequest struct {
	TenantID string
	Company  model.CompanyConfig
	Jobs     []model.Job
	Workers  []model.Worker
	Options  opt.Options
}

// Runner executes optimization runs, at most `limit` at a time.
type Runner struct {
	store  store.Store
	broker EventBroker
	notify Notifier
	log    *slog.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	active map[string]context.CancelFunc // runId -> cancel
	wg     sync.WaitGroup
}

func NewRunner(s store.Store, b EventBroker, n Notifier, log *slog.Logger, limit int64) *Runner {
	if limit <= 0 {
		limit = 1
	}
	return &Runner{
		store:  s,
		broker: b,
		notify: n,
		log:    log,
		sem:    semaphore.NewWeighted(limit),
		active: map[string]context.CancelFunc{},
	}
}

// Run optimizes synchronously, waiting for a slot until ctx is done.
func (rn *Runner) Run(ctx context.Context, req RunRequest) (model.Run, error) {
	p, run, err := rn.prepare(req)
	if err != nil {
		return model.Run{}, err
	}
	if err := rn.sem.Acquire(ctx, 1); err != nil {
		return model.Run{}, err
	}
	defer rn.sem.Release(1)
	if err := rn.begin(ctx, &run); err != nil {
		return model.Run{}, err
	}
	return rn.execute(ctx, p, req.Options, run), nil
}

// Start launches an asynchronous run and returns its record in the running
// state. It fails with ErrBusy instead of queueing.
func (rn *Runner) Start(ctx context.Context, req RunRequest) (model.Run, error) {
	p, run, err := rn.prepare(req)
	if err != nil {
		return model.Run{}, err
	}
	if !rn.sem.TryAcquire(1) {
		return model.Run{}, ErrBusy
	}
	if err := rn.begin(ctx, &run); err != nil {
		rn.sem.Release(1)
		return model.Run{}, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	rn.mu.Lock()
	rn.active[run.ID] = cancel
	rn.mu.Unlock()

	rn.wg.Add(1)
	go func() {
		defer rn.wg.Done()
		defer rn.sem.Release(1)
		defer func() {
			rn.mu.Lock()
			delete(rn.active, run.ID)
			rn.mu.Unlock()
			cancel()
		}()
		rn.execute(runCtx, p, req.Options, run)
	}()
	return run, nil
}

// Cancel stops an asynchronous run. It reports false when the run is not
// in progress on this instance.
func (rn *Runner) Cancel(runID string) bool {
	rn.mu.Lock()
	cancel, ok := rn.active[runID]
	rn.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every asynchronous run and waits for them to be saved.
func (rn *Runner) Shutdown(ctx context.Context) error {
	rn.mu.Lock()
	for _, cancel := range rn.active {
		cancel()
	}
	rn.mu.Unlock()
	done := make(chan struct{})
	go func() {
		rn.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// prepare validates the request and fixes the seed so the stored record can
// reproduce the run.
func (rn *Runner) prepare(req RunRequest) (*opt.Problem, model.Run, error) {
	p, err := opt.NewProblem(req.Company, req.Jobs, req.Workers)
	if err != nil {
		return nil, model.Run{}, err
	}
	if req.Options.Seed == 0 {
		req.Options.Seed = time.Now().UnixNano()
	}
	if err := p.Preflight(req.Options); err != nil {
		return nil, model.Run{}, err
	}
	run := model.Run{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		Status:        model.RunRunning,
		Schedule:      string(req.Options.Schedule),
		MaxIterations: req.Options.MaxIterations,
		Seed:          req.Options.Seed,
		Company:       req.Company,
		Jobs:          req.Jobs,
		Workers:       req.Workers,
		CreatedAt:     time.Now().UTC(),
	}
	return p, run, nil
}

func (rn *Runner) begin(ctx context.Context, run *model.Run) error {
	if err := rn.store.SaveRun(ctx, *run); err != nil {
		return err
	}
	metrics.ActiveRuns.Inc()
	rn.broker.Publish(run.ID, SSEEvent{Type: EventRunStarted, Data: map[string]any{
		"runId": run.ID, "jobs": len(run.Jobs), "workers": len(run.Workers),
		"maxIterations": run.MaxIterations, "schedule": run.Schedule,
	}})
	rn.log.Info("run started", "run_id", run.ID, "tenant", run.TenantID, "jobs", len(run.Jobs),
		"workers", len(run.Workers), "iterations", run.MaxIterations, "schedule", run.Schedule, "seed", run.Seed)
	return nil
}

func (rn *Runner) execute(ctx context.Context, p *opt.Problem, opts opt.Options, run model.Run) model.Run {
	defer metrics.ActiveRuns.Dec()
	opts.Seed = run.Seed
	opts.OnCheckpoint = func(cp opt.Checkpoint) {
		rn.broker.Publish(run.ID, SSEEvent{Type: EventRunCheckpoint, Data: map[string]any{
			"runId": run.ID, "epoch": cp.Epoch, "iteration": cp.Iteration, "utility": cp.Utility,
		}})
	}

	res, err := p.Optimize(ctx, opts)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.DurationMs = res.Duration.Milliseconds()
	run.Assignment = res.Assignment
	run.Unassignable = res.Unassignable
	run.Utility = res.Utility
	run.InitialUtility = res.InitialUtility
	run.Breakdown = res.Breakdown
	run.Trace = res.Trace
	run.Stats = res.Stats
	switch {
	case err == nil:
		run.Status = model.RunCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Status = model.RunCancelled
		run.Error = err.Error()
	default:
		run.Status = model.RunFailed
		run.Error = err.Error()
	}

	// The run context may be gone; the record must still be written.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := rn.store.SaveRun(saveCtx, run); serr != nil {
		rn.log.Error("save run", "run_id", run.ID, "err", serr)
	}

	typ := EventRunCompleted
	if run.Status != model.RunCompleted {
		typ = EventRunFailed
	}
	rn.broker.Publish(run.ID, SSEEvent{Type: typ, Data: map[string]any{
		"runId": run.ID, "status": run.Status, "utility": run.Utility,
		"initialUtility": run.InitialUtility, "iterations": run.Stats.Iterations, "error": run.Error,
	}})
	metrics.ObserveRun(run.Schedule, run.Status, res.Duration.Seconds(), run.Stats, run.Utility)
	if rn.notify != nil {
		rn.notify.Enqueue(run)
	}
	rn.log.Info("run finished", "run_id", run.ID, "tenant", run.TenantID, "status", run.Status,
		"iterations", run.Stats.Iterations, "utility", run.Utility, "initial_utility", run.InitialUtility,
		"duration_ms", run.DurationMs)
	return run
}

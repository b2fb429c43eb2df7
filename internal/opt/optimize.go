package opt

import (
	"context"
	"time"

	"jobassign/internal/model"
)

// Result is the outcome of one optimization run.
type Result struct {
	Assignment     model.Assignment   `json:"assignment"`
	Unassignable   []string           `json:"unassignable"`
	Utility        float64            `json:"utility"`
	InitialUtility float64            `json:"initialUtility"`
	Breakdown      model.Breakdown    `json:"breakdown"`
	Trace          []model.TracePoint `json:"trace"`
	Stats          model.RunStats     `json:"stats"`
	// Empty is set when there were no jobs or no workers to optimize.
	Empty    bool          `json:"empty"`
	Duration time.Duration `json:"duration"`

	final *State
}

// Final returns the accepted state the result was built from.
func (r Result) Final() *State { return r.final }

// Optimize builds the initial solution and anneals it.
func Optimize(ctx context.Context, company model.CompanyConfig, jobs []model.Job, workers []model.Worker, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	p, err := NewProblem(company, jobs, workers)
	if err != nil {
		return Result{}, err
	}
	return p.Optimize(ctx, opts)
}

// Optimize runs the full pipeline on an indexed problem.
func (p *Problem) Optimize(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	initial := p.BuildInitial()
	if p.NumJobs() == 0 || p.NumWorkers() == 0 {
		return p.emptyResult(initial, opts, start), nil
	}
	a, err := NewAnnealer(p, opts)
	if err != nil {
		return Result{}, err
	}
	final, trace, stats, runErr := a.Run(ctx, initial)
	res := p.result(final, trace, stats, start)
	if points := res.Trace; len(points) > 0 {
		res.InitialUtility = points[0].Utility
	}
	return res, runErr
}

// emptyResult is the no-op outcome for an instance with nothing to move:
// every checkpoint records the (zero) utility of the initial solution.
func (p *Problem) emptyResult(initial *State, opts Options, start time.Time) Result {
	interval := opts.CheckpointInterval()
	u := p.Utility(initial)
	trace := newTrace(opts.MaxIterations/interval + 1)
	for n := 0; n <= opts.MaxIterations; n += interval {
		_ = trace.Record(n/interval, u)
		if opts.OnCheckpoint != nil {
			opts.OnCheckpoint(Checkpoint{Epoch: n / interval, Iteration: n, Utility: u, State: initial})
		}
	}
	res := p.result(initial, trace, model.RunStats{}, start)
	res.InitialUtility = u
	res.Empty = true
	return res
}

func (p *Problem) result(final *State, trace *Trace, stats model.RunStats, start time.Time) Result {
	unassignable := make([]string, 0, len(final.unassignable))
	for _, j := range final.unassignable {
		unassignable = append(unassignable, p.jobs[j].ID)
	}
	b := p.Breakdown(final)
	return Result{
		Assignment:   p.Assignment(final),
		Unassignable: unassignable,
		Utility:      p.Utility(final),
		Breakdown:    b,
		Trace:        trace.Points(),
		Stats:        stats,
		Duration:     time.Since(start),
		final:        final,
	}
}

package opt

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"jobassign/internal/model"
)

// DefaultMaxIterations is the iteration count used when none is configured.
const DefaultMaxIterations = 100000

// CheckpointsPerRun is how many trace points follow epoch 0.
const CheckpointsPerRun = 20

// Checkpoint is handed to Options.OnCheckpoint. State is the accepted
// solution and is only valid during the callback.
type Checkpoint struct {
	Epoch     int
	Iteration int
	Utility   float64
	State     *State
}

// Options configures one run. Nothing here is shared between runs.
type Options struct {
	MaxIterations int
	// Seed for the run's random source; 0 seeds from the clock.
	Seed     int64
	Schedule Schedule
	// InitialTemp is T0 for ScheduleCooling.
	InitialTemp  float64
	OnCheckpoint func(Checkpoint)
}

// DefaultOptions returns the stock run configuration.
func DefaultOptions() Options {
	return Options{
		MaxIterations: DefaultMaxIterations,
		Schedule:      ScheduleRising,
		InitialTemp:   DefaultInitialTemp,
	}
}

// Validate rejects run settings that cannot produce a run.
func (o Options) Validate() error {
	if o.MaxIterations <= 0 {
		return fmt.Errorf("%w: maxIterations must be > 0 (got %d)", ErrConfiguration, o.MaxIterations)
	}
	if _, err := ParseSchedule(string(o.Schedule)); err != nil {
		return err
	}
	if o.Schedule == ScheduleCooling && o.InitialTemp <= 0 {
		return fmt.Errorf("%w: initialTemp must be > 0 for the cooling schedule (got %g)", ErrConfiguration, o.InitialTemp)
	}
	return nil
}

// CheckpointInterval is the number of iterations between trace points. Runs
// shorter than CheckpointsPerRun iterations checkpoint every iteration.
func (o Options) CheckpointInterval() int {
	return max(o.MaxIterations/CheckpointsPerRun, 1)
}

// Preflight reports the configuration errors that stop a run before its first
// iteration. An instance with no workers is not an error: it has nothing to
// anneal and yields the empty result.
func (p *Problem) Preflight(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if p.NumJobs() > 0 && p.NumWorkers() == 1 {
		return fmt.Errorf("%w: 1 worker for %d job(s); at least two workers are needed", ErrConfiguration, p.NumJobs())
	}
	return nil
}

// Annealer runs the accept/reject loop for one problem.
type Annealer struct {
	problem *Problem
	opts    Options
	rng     *rand.Rand
}

// NewAnnealer checks the run preconditions and seeds the run's RNG.
func NewAnnealer(p *Problem, opts Options) (*Annealer, error) {
	if err := p.Preflight(opts); err != nil {
		return nil, err
	}
	if opts.Schedule == "" {
		opts.Schedule = ScheduleRising
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Annealer{problem: p, opts: opts, rng: rand.New(rand.NewSource(seed))}, nil
}

// Run anneals from initial, which is not modified. It returns the last
// accepted solution and the trace. When ctx is cancelled mid-run the partial
// result is returned together with ctx.Err().
func (a *Annealer) Run(ctx context.Context, initial *State) (*State, *Trace, model.RunStats, error) {
	p := a.problem
	maxIter := a.opts.MaxIterations
	interval := a.opts.CheckpointInterval()
	trace := newTrace(maxIter/interval + 1)
	var stats model.RunStats

	solution := initial.Clone()
	utilSolution := p.Utility(solution)
	a.checkpoint(trace, 0, 0, utilSolution, solution)

	if len(solution.assigned) == 0 {
		// Nothing can move; every checkpoint sees the initial solution.
		for n := interval; n <= maxIter; n += interval {
			a.checkpoint(trace, n/interval, n, utilSolution, solution)
		}
		stats.Iterations = maxIter
		return solution, trace, stats, nil
	}

	done := ctx.Done()
	for n := 1; n <= maxIter; n++ {
		m := propose(solution, a.rng)
		solution.apply(m)
		utilNext := p.Utility(solution)
		delta := utilNext - utilSolution
		switch {
		case delta > 0:
			utilSolution = utilNext
			stats.Improvements++
		case a.rng.Float64() < a.opts.Schedule.acceptance(delta, n, a.opts.InitialTemp):
			utilSolution = utilNext
			stats.AcceptedWorse++
		default:
			solution.undo(m)
			stats.Rejected++
		}
		stats.Iterations = n

		select {
		case <-done:
			return solution, trace, stats, ctx.Err()
		default:
		}

		if n%interval == 0 {
			a.checkpoint(trace, n/interval, n, utilSolution, solution)
		}
	}
	return solution, trace, stats, nil
}

func (a *Annealer) checkpoint(t *Trace, epoch, iter int, utility float64, s *State) {
	_ = t.Record(epoch, utility)
	if a.opts.OnCheckpoint != nil {
		a.opts.OnCheckpoint(Checkpoint{Epoch: epoch, Iteration: iter, Utility: utility, State: s})
	}
}

package opt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobassign/internal/model"
)

func runOpts(iter int, seed int64) Options {
	o := DefaultOptions()
	o.MaxIterations = iter
	o.Seed = seed
	return o
}

func TestOptimizeNoJobs(t *testing.T) {
	c := model.DefaultCompany()
	workers := []model.Worker{model.NewWorker(c, "a", []int{1}), model.NewWorker(c, "b", []int{2, 3})}

	res, err := Optimize(context.Background(), c, nil, workers, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Len(t, res.Assignment, 2)
	assert.Empty(t, res.Assignment["a"])
	assert.Empty(t, res.Assignment["b"])
	require.Len(t, res.Trace, CheckpointsPerRun+1)
	for i, pt := range res.Trace {
		assert.Equal(t, i, pt.Epoch)
		assert.Zero(t, pt.Utility)
	}
}

func TestOptimizeNoWorkers(t *testing.T) {
	c := model.DefaultCompany()
	jobs := []model.Job{model.NewJob(c, "j1", 1, 30, c.Location)}
	res, err := Optimize(context.Background(), c, jobs, nil, runOpts(100, 1))
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Equal(t, []string{"j1"}, res.Unassignable)
	assert.Len(t, res.Trace, CheckpointsPerRun+1)
}

func TestSingleWorkerIsAConfigurationError(t *testing.T) {
	c := model.DefaultCompany()
	jobs := []model.Job{model.NewJob(c, "j1", 1, 60, c.Location)}
	workers := []model.Worker{model.NewWorker(c, "w1", []int{1})}

	p := mustProblem(t, c, jobs, workers)
	// 150 revenue against one hour at 22/h.
	assert.InDelta(t, 128, p.Utility(p.BuildInitial()), 1e-9)

	_, err := Optimize(context.Background(), c, jobs, workers, DefaultOptions())
	assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
	_, err = Optimize(context.Background(), c, jobs, workers, runOpts(0, 1))
	assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.ErrorIs(t, runOpts(-1, 0).Validate(), ErrConfiguration)

	o := DefaultOptions()
	o.Schedule = "linear"
	assert.ErrorIs(t, o.Validate(), ErrConfiguration)

	o = DefaultOptions()
	o.Schedule = ScheduleCooling
	o.InitialTemp = 0
	assert.ErrorIs(t, o.Validate(), ErrConfiguration)
}

func TestSeededRunsAreIdentical(t *testing.T) {
	c, jobs, workers := randomInstance(t, 99, 15, 3)
	first, err := Optimize(context.Background(), c, jobs, workers, runOpts(1000, 12345))
	require.NoError(t, err)
	second, err := Optimize(context.Background(), c, jobs, workers, runOpts(1000, 12345))
	require.NoError(t, err)

	assert.Equal(t, first.Assignment, second.Assignment)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Stats, second.Stats)
	a, _ := json.Marshal(first.Assignment)
	b, _ := json.Marshal(second.Assignment)
	assert.Equal(t, string(a), string(b))
}

func TestTraceMatchesCheckpointStates(t *testing.T) {
	c, jobs, workers := randomInstance(t, 8, 30, 4)
	p := mustProblem(t, c, jobs, workers)

	var snapshots []model.Assignment
	opts := runOpts(2000, 3)
	opts.OnCheckpoint = func(cp Checkpoint) {
		require.NoError(t, cp.State.Check())
		snapshots = append(snapshots, p.Assignment(cp.State))
	}
	res, err := p.Optimize(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, res.Trace, CheckpointsPerRun+1)
	require.Len(t, snapshots, len(res.Trace))
	for i, pt := range res.Trace {
		assert.Equal(t, i, pt.Epoch)
		assert.InDelta(t, referenceUtility(c, jobs, workers, snapshots[i]), pt.Utility, 1e-6, "epoch %d", i)
	}
	assert.Equal(t, p.Utility(p.BuildInitial()), res.Trace[0].Utility)
	assert.Equal(t, res.InitialUtility, res.Trace[0].Utility)
	assert.Equal(t, res.Trace[len(res.Trace)-1].Utility, res.Utility)
	assert.InDelta(t, res.Utility, referenceUtility(c, jobs, workers, res.Assignment), 1e-6)
	assert.Equal(t, res.Utility, res.Breakdown.Utility)
}

func TestRunKeepsJobSetsStable(t *testing.T) {
	c, jobs, workers := randomInstance(t, 13, 50, 5)
	jobsBefore := append([]model.Job(nil), jobs...)
	workersBefore := append([]model.Worker(nil), workers...)
	p := mustProblem(t, c, jobs, workers)
	initial := p.BuildInitial()
	snapshot := initial.Clone()

	res, err := p.Optimize(context.Background(), runOpts(3000, 5))
	require.NoError(t, err)
	require.NoError(t, res.Final().Check())
	assert.True(t, initial.Equal(snapshot))
	assert.Equal(t, jobsBefore, jobs)
	assert.Equal(t, workersBefore, workers)

	// Moves never create or drop assignments.
	assert.Len(t, owners(res.Assignment), len(initial.Assigned()))
	assert.Equal(t, len(initial.Unassignable()), len(res.Unassignable))
	for _, id := range res.Unassignable {
		_, assigned := owners(res.Assignment)[id]
		assert.False(t, assigned)
	}
	assert.Equal(t, res.Stats.Iterations, res.Stats.Improvements+res.Stats.AcceptedWorse+res.Stats.Rejected)
	assert.Equal(t, 3000, res.Stats.Iterations)
}

func TestShortRunCheckpointsEveryIteration(t *testing.T) {
	c, jobs, workers := randomInstance(t, 2, 10, 3)
	res, err := Optimize(context.Background(), c, jobs, workers, runOpts(10, 1))
	require.NoError(t, err)
	assert.Len(t, res.Trace, 11)

	res, err = Optimize(context.Background(), c, jobs, workers, runOpts(45, 1))
	require.NoError(t, err)
	// Interval 2: checkpoints at 2, 4, ... 44.
	require.Len(t, res.Trace, 23)
	assert.Equal(t, 22, res.Trace[22].Epoch)
}

func TestCancelReturnsPartialResult(t *testing.T) {
	c, jobs, workers := randomInstance(t, 17, 30, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := runOpts(2000, 7)
	opts.OnCheckpoint = func(cp Checkpoint) {
		if cp.Epoch == 3 {
			cancel()
		}
	}
	res, err := Optimize(ctx, c, jobs, workers, opts)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Trace, 4)
	assert.Equal(t, 301, res.Stats.Iterations)
	require.NotNil(t, res.Final())
	assert.NoError(t, res.Final().Check())
}

func TestAcceptance(t *testing.T) {
	assert.InDelta(t, math.Exp(-1/math.Ln2), ScheduleRising.acceptance(-1, 1, 0), 1e-12)
	assert.InDelta(t, math.Exp(-math.Ln2/1000), ScheduleCooling.acceptance(-1, 1, 1000), 1e-12)
	assert.Equal(t, 1.0, ScheduleRising.acceptance(0, 5, 0))

	// Rising gets more permissive over time, cooling less.
	assert.Greater(t, ScheduleRising.acceptance(-50, 10000, 0), ScheduleRising.acceptance(-50, 10, 0))
	assert.Less(t, ScheduleCooling.acceptance(-50, 10000, 1000), ScheduleCooling.acceptance(-50, 10, 1000))
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("")
	require.NoError(t, err)
	assert.Equal(t, ScheduleRising, s)
	s, err = ParseSchedule("cooling")
	require.NoError(t, err)
	assert.Equal(t, ScheduleCooling, s)
	_, err = ParseSchedule("geometric")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCoolingRunPricesFinalState(t *testing.T) {
	c, jobs, workers := randomInstance(t, 31, 40, 5)
	opts := runOpts(5000, 2)
	opts.Schedule = ScheduleCooling
	opts.InitialTemp = 50
	res, err := Optimize(context.Background(), c, jobs, workers, opts)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trace)
	assert.InDelta(t, referenceUtility(c, jobs, workers, res.Assignment), res.Utility, 1e-6)
}

func TestTraceRecordRejectsOldEpoch(t *testing.T) {
	tr := newTrace(2)
	require.NoError(t, tr.Record(0, 1))
	require.NoError(t, tr.Record(1, 2))
	assert.Error(t, tr.Record(1, 3))
	last, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, model.TracePoint{Epoch: 1, Utility: 2}, last)
	assert.Equal(t, 2, tr.Len())
}

func TestPreflight(t *testing.T) {
	c := model.DefaultCompany()
	jobs := []model.Job{model.NewJob(c, "j", 1, 30, c.Location)}
	one := []model.Worker{model.NewWorker(c, "a", []int{1})}
	two := append(one, model.NewWorker(c, "b", []int{2}))

	assert.ErrorIs(t, mustProblem(t, c, jobs, one).Preflight(DefaultOptions()), ErrConfiguration)
	assert.NoError(t, mustProblem(t, c, jobs, two).Preflight(DefaultOptions()))
	assert.NoError(t, mustProblem(t, c, jobs, nil).Preflight(DefaultOptions()))
	assert.NoError(t, mustProblem(t, c, nil, one).Preflight(DefaultOptions()))
	assert.ErrorIs(t, mustProblem(t, c, nil, two).Preflight(runOpts(0, 1)), ErrConfiguration)
}

package opt

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"jobassign/internal/model"
)

// randomInstance builds a reproducible instance with small integer
// coordinates and durations from the stock menu.
func randomInstance(t *testing.T, seed int64, numJobs, numWorkers int) (model.CompanyConfig, []model.Job, []model.Worker) {
	t.Helper()
	c := model.DefaultCompany()
	rng := rand.New(rand.NewSource(seed))
	durations := []int{30, 60, 90, 120}
	jobs := make([]model.Job, numJobs)
	for i := range jobs {
		loc := model.Point{X: float64(rng.Intn(model.MapWidth)), Y: float64(rng.Intn(model.MapHeight))}
		jobs[i] = model.NewJob(c, fmt.Sprintf("j%d", i), 1+rng.Intn(3), durations[rng.Intn(len(durations))], loc)
		jobs[i].Number = i
	}
	workers := make([]model.Worker, numWorkers)
	for i := range workers {
		perm := rng.Perm(3)
		skills := make([]int, 1+rng.Intn(3))
		for k := range skills {
			skills[k] = perm[k] + 1
		}
		workers[i] = model.NewWorker(c, fmt.Sprintf("w%d", i), skills)
		workers[i].Number = i
	}
	return c, jobs, workers
}

func mustProblem(t *testing.T, c model.CompanyConfig, jobs []model.Job, workers []model.Worker) *Problem {
	t.Helper()
	p, err := NewProblem(c, jobs, workers)
	require.NoError(t, err)
	return p
}

// referenceUtility scores an id-based assignment straight from the entity
// records, without the indexed tables.
func referenceUtility(c model.CompanyConfig, jobs []model.Job, workers []model.Worker, a model.Assignment) float64 {
	jobByID := map[string]model.Job{}
	for _, j := range jobs {
		jobByID[j.ID] = j
	}
	total := 0.0
	for _, w := range workers {
		minutes, chain := 0, 0.0
		at := c.Location
		for _, id := range a[w.ID] {
			j := jobByID[id]
			total += j.Payment
			chain += math.Sqrt((j.Location.X-at.X)*(j.Location.X-at.X) + (j.Location.Y-at.Y)*(j.Location.Y-at.Y))
			at = j.Location
			minutes += j.Duration
			has := false
			for _, sk := range w.Skills {
				if sk == j.Type {
					has = true
				}
			}
			if !has {
				total -= c.MismatchPenalty
			}
		}
		total -= c.DistanceCost * 2 * chain
		if minutes > c.MaxTime {
			total -= c.OverworkPenalty
			continue
		}
		over := 0
		if minutes > c.OvertimeThreshold {
			over = minutes - c.OvertimeThreshold
		}
		total -= w.HourlyPay*float64(minutes)/60 + w.HourlyPay*c.OvertimeBonus*float64(over)/60
	}
	return total
}

// owners maps each job id to its worker id.
func owners(a model.Assignment) map[string]string {
	out := map[string]string{}
	for w, jobs := range a {
		for _, j := range jobs {
			out[j] = w
		}
	}
	return out
}

// Package demo generates random instances for trying the optimizer out.
package demo

import (
	"math/rand"

	"github.com/google/uuid"

	"jobassign/internal/model"
)

var (
	JobTypes     = []int{1, 2, 3}
	JobDurations = []int{30, 60, 90, 120}
)

// Jobs draws n jobs with a random type, duration and integer map position.
// Ids come from rng so a seeded source gives the same instance every time.
func Jobs(rng *rand.Rand, c model.CompanyConfig, n int) []model.Job {
	jobs := make([]model.Job, 0, n)
	for i := 0; i < n; i++ {
		jobType := JobTypes[rng.Intn(len(JobTypes))]
		duration := JobDurations[rng.Intn(len(JobDurations))]
		loc := model.Point{X: float64(rng.Intn(model.MapWidth)), Y: float64(rng.Intn(model.MapHeight))}
		j := model.NewJob(c, newID(rng), jobType, duration, loc)
		j.Number = i
		jobs = append(jobs, j)
	}
	return jobs
}

// Workers draws n workers holding one to three distinct skills.
func Workers(rng *rand.Rand, c model.CompanyConfig, n int) []model.Worker {
	workers := make([]model.Worker, 0, n)
	for i := 0; i < n; i++ {
		k := rng.Intn(len(JobTypes)) + 1
		w := model.NewWorker(c, newID(rng), sample(rng, JobTypes, k))
		w.Number = i
		workers = append(workers, w)
	}
	return workers
}

// sample picks k distinct entries of from in draw order.
func sample(rng *rand.Rand, from []int, k int) []int {
	out := make([]int, 0, k)
	for _, idx := range rng.Perm(len(from))[:k] {
		out = append(out, from[idx])
	}
	return out
}

func newID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

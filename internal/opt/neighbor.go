package opt

import (
	"fmt"
	"math/rand"
	"slices"
)

// propose draws a random move for s without changing it: a job uniformly
// from the assigned ones and a new owner uniformly from the worker universe,
// redrawn until it differs from the current one. No feasibility filter is
// applied; mismatches and overwork are priced by Utility.
//
// The caller guarantees at least one assigned job and two workers.
func propose(s *State, rng *rand.Rand) Move {
	j := s.assigned[rng.Intn(len(s.assigned))]
	from := s.jobWorker[j]
	n := len(s.workerJobs)
	to := rng.Intn(n)
	for to == from {
		to = rng.Intn(n)
	}
	return Move{Job: j, From: from, To: to, Pos: slices.Index(s.workerJobs[from], j)}
}

// Next returns a neighbour of s as a new state; s is left untouched.
func Next(s *State, rng *rand.Rand) (*State, Move, error) {
	if len(s.workerJobs) < 2 {
		return nil, Move{}, fmt.Errorf("%w: at least two workers are needed to move a job", ErrConfiguration)
	}
	if len(s.assigned) == 0 {
		return nil, Move{}, fmt.Errorf("%w: no assigned job to move", ErrConfiguration)
	}
	m := propose(s, rng)
	c := s.Clone()
	c.apply(m)
	return c, m, nil
}

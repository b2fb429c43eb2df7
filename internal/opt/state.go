package opt

import (
	"fmt"
	"slices"
)

const unassigned = -1

// State is an assignment of jobs to workers held as two flat index tables.
// For every assigned job j, j appears exactly once, in workerJobs[jobWorker[j]].
type State struct {
	jobWorker  []int   // job -> worker, unassigned if never placed
	workerJobs [][]int // worker -> jobs in travel order

	// assigned lists the movable jobs in job order. It is fixed once the
	// initial solution is built: moves only change owners.
	assigned     []int
	unassignable []int
}

func newState(numJobs, numWorkers int) *State {
	s := &State{
		jobWorker:  make([]int, numJobs),
		workerJobs: make([][]int, numWorkers),
	}
	for j := range s.jobWorker {
		s.jobWorker[j] = unassigned
	}
	for w := range s.workerJobs {
		s.workerJobs[w] = []int{}
	}
	return s
}

func (s *State) assign(j, w int) {
	s.jobWorker[j] = w
	s.workerJobs[w] = append(s.workerJobs[w], j)
	s.assigned = append(s.assigned, j)
}

func (s *State) sortAssigned() { slices.Sort(s.assigned) }

// Owner returns the worker holding job j, or -1.
func (s *State) Owner(j int) int { return s.jobWorker[j] }

// Jobs returns worker w's jobs. The slice must not be modified.
func (s *State) Jobs(w int) []int { return s.workerJobs[w] }

// Assigned returns the jobs that have an owner, in job order.
func (s *State) Assigned() []int { return s.assigned }

// Unassignable returns the jobs no worker could take when the initial
// solution was built.
func (s *State) Unassignable() []int { return s.unassignable }

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{
		jobWorker:    slices.Clone(s.jobWorker),
		workerJobs:   make([][]int, len(s.workerJobs)),
		assigned:     slices.Clone(s.assigned),
		unassignable: slices.Clone(s.unassignable),
	}
	for w, list := range s.workerJobs {
		c.workerJobs[w] = append(make([]int, 0, len(list)), list...)
	}
	return c
}

// Equal reports whether two states hold the same owners and the same order.
func (s *State) Equal(o *State) bool {
	if !slices.Equal(s.jobWorker, o.jobWorker) || len(s.workerJobs) != len(o.workerJobs) {
		return false
	}
	for w := range s.workerJobs {
		if !slices.Equal(s.workerJobs[w], o.workerJobs[w]) {
			return false
		}
	}
	return true
}

// Check verifies that the two tables agree.
func (s *State) Check() error {
	seen := make([]int, len(s.jobWorker))
	total := 0
	for w, list := range s.workerJobs {
		for _, j := range list {
			if j < 0 || j >= len(s.jobWorker) {
				return fmt.Errorf("worker %d lists unknown job %d", w, j)
			}
			seen[j]++
			total++
			if s.jobWorker[j] != w {
				return fmt.Errorf("job %d listed by worker %d but owned by %d", j, w, s.jobWorker[j])
			}
		}
	}
	owned := 0
	for j, w := range s.jobWorker {
		if w == unassigned {
			if seen[j] != 0 {
				return fmt.Errorf("unassigned job %d appears in a list", j)
			}
			continue
		}
		owned++
		if seen[j] != 1 {
			return fmt.Errorf("job %d appears %d times", j, seen[j])
		}
	}
	if owned != total || owned != len(s.assigned) {
		return fmt.Errorf("owned=%d listed=%d assigned=%d", owned, total, len(s.assigned))
	}
	return nil
}

// Move relocates one job. Pos is the job's index in the From list.
type Move struct {
	Job  int
	From int
	To   int
	Pos  int
}

// apply removes the job from its old list, keeping the order of the rest,
// and appends it to the new owner's list.
func (s *State) apply(m Move) {
	from := s.workerJobs[m.From]
	copy(from[m.Pos:], from[m.Pos+1:])
	s.workerJobs[m.From] = from[:len(from)-1]
	s.workerJobs[m.To] = append(s.workerJobs[m.To], m.Job)
	s.jobWorker[m.Job] = m.To
}

// undo restores the state apply started from.
func (s *State) undo(m Move) {
	to := s.workerJobs[m.To]
	s.workerJobs[m.To] = to[:len(to)-1]
	from := append(s.workerJobs[m.From], 0)
	copy(from[m.Pos+1:], from[m.Pos:])
	from[m.Pos] = m.Job
	s.workerJobs[m.From] = from
	s.jobWorker[m.Job] = m.From
}

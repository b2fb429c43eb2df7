package opt

import (
	"fmt"

	"jobassign/internal/model"
)

// Problem is an indexed view of one optimization instance. Jobs and workers
// are addressed by their position in the input slices for the whole run.
type Problem struct {
	company     model.CompanyConfig
	jobs        []model.Job
	workers     []model.Worker
	skills      []model.SkillSet
	jobIndex    map[string]int
	workerIndex map[string]int
}

// NewProblem validates the instance and indexes it. The enumeration order of
// jobs and workers is the order of the slices.
func NewProblem(company model.CompanyConfig, jobs []model.Job, workers []model.Worker) (*Problem, error) {
	if err := company.Validate(); err != nil {
		return nil, fmt.Errorf("%w: company: %v", ErrConfiguration, err)
	}
	p := &Problem{
		company:     company,
		jobs:        append([]model.Job(nil), jobs...),
		workers:     append([]model.Worker(nil), workers...),
		skills:      make([]model.SkillSet, len(workers)),
		jobIndex:    make(map[string]int, len(jobs)),
		workerIndex: make(map[string]int, len(workers)),
	}
	for i, j := range p.jobs {
		if j.ID == "" {
			return nil, fmt.Errorf("%w: job %d has no id", ErrConfiguration, i)
		}
		if _, dup := p.jobIndex[j.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate job id %s", ErrConfiguration, j.ID)
		}
		if j.Duration <= 0 {
			return nil, fmt.Errorf("%w: job %s duration must be > 0 (got %d)", ErrConfiguration, j.ID, j.Duration)
		}
		p.jobIndex[j.ID] = i
	}
	for i, w := range p.workers {
		if w.ID == "" {
			return nil, fmt.Errorf("%w: worker %d has no id", ErrConfiguration, i)
		}
		if _, dup := p.workerIndex[w.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate worker id %s", ErrConfiguration, w.ID)
		}
		if len(w.Skills) == 0 {
			return nil, fmt.Errorf("%w: worker %s has an empty skill set", ErrConfiguration, w.ID)
		}
		p.workerIndex[w.ID] = i
		p.skills[i] = model.NewSkillSet(w.Skills...)
	}
	return p, nil
}

func (p *Problem) Company() model.CompanyConfig { return p.company }
func (p *Problem) NumJobs() int                 { return len(p.jobs) }
func (p *Problem) NumWorkers() int              { return len(p.workers) }
func (p *Problem) Job(i int) model.Job          { return p.jobs[i] }
func (p *Problem) Worker(i int) model.Worker    { return p.workers[i] }

// WorkerIDs returns the worker universe in enumeration order.
func (p *Problem) WorkerIDs() []string {
	out := make([]string, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.ID
	}
	return out
}

// JobIDs returns the job ids in enumeration order.
func (p *Problem) JobIDs() []string {
	out := make([]string, len(p.jobs))
	for i, j := range p.jobs {
		out[i] = j.ID
	}
	return out
}

func (p *Problem) matches(w, j int) bool {
	return p.skills[w].Has(p.jobs[j].Type)
}

// Assignment renders a state with ids. Every worker is present, with an
// empty list when idle.
func (p *Problem) Assignment(s *State) model.Assignment {
	out := make(model.Assignment, len(p.workers))
	for w, list := range s.workerJobs {
		ids := make([]string, len(list))
		for k, j := range list {
			ids[k] = p.jobs[j].ID
		}
		out[p.workers[w].ID] = ids
	}
	return out
}

// FromAssignment parses an id-based assignment into a state. Jobs absent from
// every list are left unassigned.
func (p *Problem) FromAssignment(a model.Assignment) (*State, error) {
	s := newState(len(p.jobs), len(p.workers))
	for wid, ids := range a {
		if _, ok := p.workerIndex[wid]; !ok {
			return nil, fmt.Errorf("%w: unknown worker %s", ErrInvalidAssignment, wid)
		}
		for _, jid := range ids {
			if _, ok := p.jobIndex[jid]; !ok {
				return nil, fmt.Errorf("%w: unknown job %s", ErrInvalidAssignment, jid)
			}
		}
	}
	// Walk workers in enumeration order so list contents do not depend on map
	// iteration.
	for w, wk := range p.workers {
		for _, jid := range a[wk.ID] {
			j := p.jobIndex[jid]
			if s.jobWorker[j] != unassigned {
				return nil, fmt.Errorf("%w: job %s listed more than once", ErrInvalidAssignment, jid)
			}
			s.assign(j, w)
		}
	}
	s.sortAssigned()
	for j := range p.jobs {
		if s.jobWorker[j] == unassigned {
			s.unassignable = append(s.unassignable, j)
		}
	}
	return s, nil
}

// Score computes the utility of an arbitrary id-based assignment.
func (p *Problem) Score(a model.Assignment) (float64, error) {
	s, err := p.FromAssignment(a)
	if err != nil {
		return 0, err
	}
	return p.Utility(s), nil
}

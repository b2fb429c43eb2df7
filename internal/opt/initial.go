package opt

// BuildInitial places every job, in job order, on the first worker who has
// the job's skill and stays strictly under MaxTime with it. Jobs nobody can
// take are recorded as unassignable and never move afterwards.
func (p *Problem) BuildInitial() *State {
	s := newState(len(p.jobs), len(p.workers))
	load := make([]int, len(p.workers))
	for j, job := range p.jobs {
		placed := false
		for w := range p.workers {
			if p.canTake(load[w], j, w) {
				s.assign(j, w)
				load[w] += job.Duration
				placed = true
				break
			}
		}
		if !placed {
			s.unassignable = append(s.unassignable, j)
		}
	}
	return s
}

func (p *Problem) canTake(minutesAssigned, j, w int) bool {
	return p.matches(w, j) && minutesAssigned+p.jobs[j].Duration < p.company.MaxTime
}

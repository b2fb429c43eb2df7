package opt

import "jobassign/internal/model"

// Utility is the company's profit proxy for a state:
//
//	revenue - DistanceCost*distance - employeePay - MismatchPenalty*mismatches
//
// It is recomputed from scratch on every call and does not allocate.
func (p *Problem) Utility(s *State) float64 {
	revenue, distance, pay := 0.0, 0.0, 0.0
	mismatched := 0
	for w, list := range s.workerJobs {
		revenue += p.revenue(list)
		distance += p.distanceTravelled(list)
		pay += p.employeePay(w, list)
		mismatched += p.mismatched(w, list)
	}
	return revenue - (p.company.DistanceCost * distance) - pay -
		(p.company.MismatchPenalty * float64(mismatched))
}

// Breakdown returns the terms of Utility alongside the total.
func (p *Problem) Breakdown(s *State) model.Breakdown {
	var b model.Breakdown
	for w, list := range s.workerJobs {
		b.Revenue += p.revenue(list)
		b.Distance += p.distanceTravelled(list)
		b.EmployeePay += p.employeePay(w, list)
		b.Mismatches += p.mismatched(w, list)
		if p.minutes(list) > p.company.MaxTime {
			b.Overworked++
		}
		b.AssignedJobs += len(list)
	}
	b.Utility = b.Revenue - (p.company.DistanceCost * b.Distance) - b.EmployeePay -
		(p.company.MismatchPenalty * float64(b.Mismatches))
	return b
}

func (p *Problem) revenue(list []int) float64 {
	r := 0.0
	for _, j := range list {
		r += p.jobs[j].Payment
	}
	return r
}

// distanceTravelled walks company -> first job -> ... -> last job and doubles
// the chain length to stand in for the way back.
func (p *Problem) distanceTravelled(list []int) float64 {
	d := 0.0
	cur := p.company.Location
	for _, j := range list {
		next := p.jobs[j].Location
		d += cur.Distance(next)
		cur = next
	}
	return 2 * d
}

func (p *Problem) minutes(list []int) int {
	t := 0
	for _, j := range list {
		t += p.jobs[j].Duration
	}
	return t
}

// employeePay is the flat overwork penalty once a worker is past MaxTime,
// otherwise hourly pay plus the overtime bonus past the threshold.
func (p *Problem) employeePay(w int, list []int) float64 {
	timeWorked := p.minutes(list)
	if timeWorked > p.company.MaxTime {
		return p.company.OverworkPenalty
	}
	overtime := max(timeWorked-p.company.OvertimeThreshold, 0)
	hourly := p.workers[w].HourlyPay
	return (hourly * (float64(timeWorked) / 60.0)) +
		((hourly * p.company.OvertimeBonus) * (float64(overtime) / 60.0))
}

func (p *Problem) mismatched(w int, list []int) int {
	n := 0
	for _, j := range list {
		if !p.matches(w, j) {
			n++
		}
	}
	return n
}

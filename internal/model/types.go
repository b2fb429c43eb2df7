// Package model holds the jobs, workers and company constants the optimizer
// works on, plus the records exchanged with the HTTP layer.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Point is a position on the company map.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance is the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (p Point) String() string { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }

// Map size used for the default company location and demo instances.
const (
	MapWidth  = 800
	MapHeight = 600
)

// CompanyConfig is the set of constants the cost function and the initial
// builder read. It is fixed for the duration of a run.
type CompanyConfig struct {
	DistanceCost      float64 `json:"distanceCost" yaml:"distanceCost"`
	MismatchPenalty   float64 `json:"mismatchPenalty" yaml:"mismatchPenalty"`
	OvertimeThreshold int     `json:"overtimeThreshold" yaml:"overtimeThreshold"` // minutes
	OvertimeBonus     float64 `json:"overtimeBonus" yaml:"overtimeBonus"`
	MaxTime           int     `json:"maxTime" yaml:"maxTime"` // minutes
	OverworkPenalty   float64 `json:"overworkPenalty" yaml:"overworkPenalty"`
	BaseJobPay        float64 `json:"baseJobPay" yaml:"baseJobPay"`
	BaseWorkerPay     float64 `json:"baseWorkerPay" yaml:"baseWorkerPay"`
	Location          Point   `json:"location" yaml:"location"`
}

// DefaultCompany returns the stock company profile.
func DefaultCompany() CompanyConfig {
	return CompanyConfig{
		DistanceCost:      0.5,
		MismatchPenalty:   1000,
		OvertimeThreshold: 480,
		OvertimeBonus:     0.5,
		MaxTime:           720,
		OverworkPenalty:   10000,
		BaseJobPay:        150,
		BaseWorkerPay:     20,
		Location:          Point{X: MapWidth / 2, Y: MapHeight / 2},
	}
}

// Validate reports constants that would make the cost function meaningless.
func (c CompanyConfig) Validate() error {
	switch {
	case c.MaxTime <= 0:
		return fmt.Errorf("maxTime must be > 0 (got %d)", c.MaxTime)
	case c.OvertimeThreshold < 0:
		return fmt.Errorf("overtimeThreshold must be >= 0 (got %d)", c.OvertimeThreshold)
	case c.DistanceCost < 0, c.MismatchPenalty < 0, c.OverworkPenalty < 0, c.OvertimeBonus < 0:
		return errors.New("penalty and cost weights must be >= 0")
	case c.BaseJobPay < 0 || c.BaseWorkerPay < 0:
		return errors.New("base pay must be >= 0")
	}
	return nil
}

// Job is a unit of work requiring one skill type.
type Job struct {
	ID       string  `json:"id" yaml:"id"`
	Number   int     `json:"number" yaml:"number"`
	Type     int     `json:"type" yaml:"type"`
	Duration int     `json:"duration" yaml:"duration"` // minutes
	Location Point   `json:"location" yaml:"location"`
	Payment  float64 `json:"payment" yaml:"payment"`
}

// NewJob builds a job and fixes its payment from the company's base pay.
// An empty id is replaced by a random uuid.
func NewJob(c CompanyConfig, id string, jobType, duration int, loc Point) Job {
	if id == "" {
		id = uuid.New().String()
	}
	return Job{
		ID:       id,
		Type:     jobType,
		Duration: duration,
		Location: loc,
		Payment:  JobPayment(c, jobType, duration),
	}
}

// JobPayment is what the company earns for completing a job.
func JobPayment(c CompanyConfig, jobType, duration int) float64 {
	return ((float64(duration) / 60.0) * c.BaseJobPay) * float64(jobType)
}

// SkillSet is a set of skill-type codes.
type SkillSet map[int]struct{}

// NewSkillSet builds a set from a list of codes.
func NewSkillSet(skills ...int) SkillSet {
	s := make(SkillSet, len(skills))
	for _, sk := range skills {
		s[sk] = struct{}{}
	}
	return s
}

// Has reports whether skill is in the set.
func (s SkillSet) Has(skill int) bool {
	_, ok := s[skill]
	return ok
}

// Worker is an employee who can be sent to jobs matching their skills.
type Worker struct {
	ID        string   `json:"id" yaml:"id"`
	Number    int      `json:"number" yaml:"number"`
	Skills    []int    `json:"skills" yaml:"skills"`
	HourlyPay float64  `json:"hourlyPay" yaml:"hourlyPay"`
	Set       SkillSet `json:"-" yaml:"-"`
}

// NewWorker builds a worker and fixes their hourly pay. An empty id is
// replaced by a random uuid.
func NewWorker(c CompanyConfig, id string, skills []int) Worker {
	if id == "" {
		id = uuid.New().String()
	}
	return Worker{
		ID:        id,
		Skills:    append([]int(nil), skills...),
		HourlyPay: HourlyPay(c, skills),
		Set:       NewSkillSet(skills...),
	}
}

// HourlyPay sums a tenth of every listed skill code as a bonus over the base
// wage. Repeated codes count once per occurrence.
func HourlyPay(c CompanyConfig, skills []int) float64 {
	bonus := 0.0
	for _, sk := range skills {
		bonus += float64(sk) / 10.0
	}
	return c.BaseWorkerPay * (1 + bonus)
}

// HasSkill reports whether the worker can do jobs of the given type.
func (w Worker) HasSkill(skill int) bool {
	if w.Set != nil {
		return w.Set.Has(skill)
	}
	for _, sk := range w.Skills {
		if sk == skill {
			return true
		}
	}
	return false
}

// Assignment maps a worker id to the ids of their jobs in travel order.
type Assignment map[string][]string

// Clone returns a deep copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for w, jobs := range a {
		out[w] = append([]string{}, jobs...)
	}
	return out
}

// Breakdown splits a utility value into its terms.
type Breakdown struct {
	Revenue      float64 `json:"revenue" yaml:"revenue"`
	Distance     float64 `json:"distance" yaml:"distance"`
	EmployeePay  float64 `json:"employeePay" yaml:"employeePay"`
	Mismatches   int     `json:"mismatches" yaml:"mismatches"`
	Overworked   int     `json:"overworked" yaml:"overworked"`
	Utility      float64 `json:"utility" yaml:"utility"`
	AssignedJobs int     `json:"assignedJobs" yaml:"assignedJobs"`
}

// TracePoint is the utility of the accepted solution at one epoch.
type TracePoint struct {
	Epoch   int     `json:"epoch" yaml:"epoch"`
	Utility float64 `json:"utility" yaml:"utility"`
}

// RunStats counts what the annealer did with its candidates.
type RunStats struct {
	Iterations    int `json:"iterations" yaml:"iterations"`
	Improvements  int `json:"improvements" yaml:"improvements"`
	AcceptedWorse int `json:"acceptedWorse" yaml:"acceptedWorse"`
	Rejected      int `json:"rejected" yaml:"rejected"`
}

package api

import (
	"github.com/go-playground/validator/v10"

	"jobassign/internal/model"
	"jobassign/internal/opt"
)

// JobIn is a job as clients send it. Payment is derived server side.
type JobIn struct {
	ID       string      `json:"id" validate:"omitempty,max=128"`
	Type     int         `json:"type" validate:"gte=1"`
	Duration int         `json:"duration" validate:"gt=0"`
	Location model.Point `json:"location"`
}

// WorkerIn is a worker as clients send it. Hourly pay is derived server side.
type WorkerIn struct {
	ID     string `json:"id" validate:"omitempty,max=128"`
	Skills []int  `json:"skills" validate:"required,min=1,dive,gte=1"`
}

// RunParams are the optimizer knobs a request may override.
type RunParams struct {
	MaxIterations int     `json:"maxIterations" validate:"gte=0,lte=10000000"`
	Seed          int64   `json:"seed"`
	Schedule      string  `json:"schedule" validate:"omitempty,oneof=rising cooling"`
	InitialTemp   float64 `json:"initialTemp" validate:"gte=0"`
	Async         bool    `json:"async"`
}

type OptimizeRequest struct {
	Company *model.CompanyConfig `json:"company"`
	Jobs    []JobIn              `json:"jobs" validate:"lte=20000,dive"`
	Workers []WorkerIn           `json:"workers" validate:"lte=5000,dive"`
	RunParams
}

type UtilityRequest struct {
	Company    *model.CompanyConfig `json:"company"`
	Jobs       []JobIn              `json:"jobs" validate:"lte=20000,dive"`
	Workers    []WorkerIn           `json:"workers" validate:"lte=5000,dive"`
	Assignment model.Assignment     `json:"assignment" validate:"required"`
}

type DemoRequest struct {
	Jobs    int `json:"jobs" validate:"gte=0,lte=20000"`
	Workers int `json:"workers" validate:"gte=0,lte=5000"`
	RunParams
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// entities turns request records into model values priced with company.
// Numbers are the position in the request.
func entities(c model.CompanyConfig, jobsIn []JobIn, workersIn []WorkerIn) ([]model.Job, []model.Worker) {
	jobs := make([]model.Job, len(jobsIn))
	for i, in := range jobsIn {
		jobs[i] = model.NewJob(c, in.ID, in.Type, in.Duration, in.Location)
		jobs[i].Number = i
	}
	workers := make([]model.Worker, len(workersIn))
	for i, in := range workersIn {
		workers[i] = model.NewWorker(c, in.ID, in.Skills)
		workers[i].Number = i
	}
	return jobs, workers
}

// options overlays the request's knobs on the service defaults.
func (p RunParams) options(defaults opt.Options) (opt.Options, error) {
	o := defaults
	if p.MaxIterations > 0 {
		o.MaxIterations = p.MaxIterations
	}
	o.Seed = p.Seed
	if p.Schedule != "" {
		s, err := opt.ParseSchedule(p.Schedule)
		if err != nil {
			return o, err
		}
		o.Schedule = s
	}
	if p.InitialTemp > 0 {
		o.InitialTemp = p.InitialTemp
	}
	return o, o.Validate()
}

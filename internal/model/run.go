package model

import "time"

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one optimization request and, once finished, its outcome.
type Run struct {
	ID            string        `json:"id" yaml:"id"`
	TenantID      string        `json:"tenantId" yaml:"tenantId"`
	Status        string        `json:"status" yaml:"status"`
	Schedule      string        `json:"schedule" yaml:"schedule"`
	MaxIterations int           `json:"maxIterations" yaml:"maxIterations"`
	Seed          int64         `json:"seed" yaml:"seed"`
	Company       CompanyConfig `json:"company" yaml:"company"`
	Jobs          []Job         `json:"jobs" yaml:"jobs"`
	Workers       []Worker      `json:"workers" yaml:"workers"`

	Assignment     Assignment   `json:"assignment,omitempty" yaml:"assignment,omitempty"`
	Unassignable   []string     `json:"unassignable,omitempty" yaml:"unassignable,omitempty"`
	Utility        float64      `json:"utility" yaml:"utility"`
	InitialUtility float64      `json:"initialUtility" yaml:"initialUtility"`
	Breakdown      Breakdown    `json:"breakdown" yaml:"breakdown"`
	Trace          []TracePoint `json:"trace,omitempty" yaml:"trace,omitempty"`
	Stats          RunStats     `json:"stats" yaml:"stats"`
	Error          string       `json:"error,omitempty" yaml:"error,omitempty"`

	CreatedAt  time.Time  `json:"createdAt" yaml:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	DurationMs int64      `json:"durationMs" yaml:"durationMs"`
}

// Done reports whether the run has reached a final status.
func (r Run) Done() bool { return r.Status != RunRunning }

// Roster lays the run's assignment out per worker.
func (r Run) Roster() []RosterRow { return BuildRoster(r.Workers, r.Jobs, r.Assignment) }

// WebhookDelivery is one attempt log entry for a run notification.
type WebhookDelivery struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	RunID        string    `json:"runId"`
	EventType    string    `json:"eventType"`
	URL          string    `json:"url"`
	Status       string    `json:"status"` // delivered or failed
	Attempts     int       `json:"attempts"`
	ResponseCode int       `json:"responseCode"`
	LastError    string    `json:"lastError,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobassign/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	runs       map[string]model.Run           // id -> run
	byTen      map[string][]string            // tenant -> run ids, oldest first
	company    map[string]model.CompanyConfig // tenant -> profile
	deliveries map[string][]model.WebhookDelivery // run id -> attempts log
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		byTen:      map[string][]string{},
		company:    map[string]model.CompanyConfig{},
		deliveries: map[string][]model.WebhookDelivery{},
	}
}

// SaveRun inserts or replaces a run.
func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if _, ok := m.runs[run.ID]; !ok {
		m.byTen[run.TenantID] = append(m.byTen[run.TenantID], run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns pages through a tenant's runs, newest first. The cursor is the id
// of the last run of the previous page.
func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	runs := make([]model.Run, 0, len(ids))
	for _, id := range ids {
		runs = append(runs, m.runs[id])
	}
	sort.SliceStable(runs, func(i, j int) bool { return newer(runs[i], runs[j]) })

	start := 0
	if cursor != "" {
		start = len(runs)
		for i, r := range runs {
			if r.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(runs))
	out := append([]model.Run(nil), runs[start:end]...)
	next := ""
	if end < len(runs) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func newer(a, b model.Run) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (m *Memory) GetCompanyConfig(ctx context.Context, tenantID string) (model.CompanyConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.company[tenantID]
	return c, ok, nil
}

func (m *Memory) SaveCompanyConfig(ctx context.Context, tenantID string, cfg model.CompanyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.company[tenantID] = cfg
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }


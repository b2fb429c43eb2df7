package store

import (
	"context"
	"errors"

	"jobassign/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, runID string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) (items []model.Run, nextCursor string, err error)

	// Company profile per tenant. ok is false when the tenant never saved one.
	GetCompanyConfig(ctx context.Context, tenantID string) (cfg model.CompanyConfig, ok bool, err error)
	SaveCompanyConfig(ctx context.Context, tenantID string, cfg model.CompanyConfig) error

	// Webhook delivery log
	RecordDelivery(ctx context.Context, d model.WebhookDelivery) (string, error)
	ListDeliveries(ctx context.Context, tenantID, runID string) ([]model.WebhookDelivery, error)

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

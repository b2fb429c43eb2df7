package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jobassign/internal/model"
)

func (m *Memory) RecordDelivery(ctx context.Context, d model.WebhookDelivery) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.RunID] = append(m.deliveries[d.RunID], d)
	return d.ID, nil
}

func (m *Memory) ListDeliveries(ctx context.Context, tenantID, runID string) ([]model.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.WebhookDelivery{}
	for _, d := range m.deliveries[runID] {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *Postgres) RecordDelivery(ctx context.Context, d model.WebhookDelivery) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
        (id, tenant_id, run_id, event_type, url, status, attempts, response_code, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		d.ID, d.TenantID, d.RunID, d.EventType, d.URL, d.Status, d.Attempts, d.ResponseCode, nullIfEmpty(d.LastError))
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

func (p *Postgres) ListDeliveries(ctx context.Context, tenantID, runID string) ([]model.WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, url, status, attempts, response_code, COALESCE(last_error, ''), created_at
        FROM webhook_deliveries WHERE tenant_id=$1 AND run_id=$2 ORDER BY created_at, id`, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.WebhookDelivery{}
	for rows.Next() {
		d := model.WebhookDelivery{TenantID: tenantID, RunID: runID}
		if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.ResponseCode, &d.LastError, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

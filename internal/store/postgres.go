package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobassign/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Every statement is
// idempotent so it is safe on every start.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// SaveRun upserts a run. The full record lives in payload; the columns are
// what listing and filtering need.
func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	js, err := toJSON(run)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, status, schedule, utility, payload, created_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
        ON CONFLICT (id) DO UPDATE SET status=$3, utility=$5, payload=$6::jsonb, finished_at=$8`,
		run.ID, run.TenantID, run.Status, run.Schedule, run.Utility, js, run.CreatedAt, nullTime(run.FinishedAt))
	return err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE tenant_id=$1 AND id::text=$2`, tenantID, runID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, err
	}
	var r model.Run
	if err := json.Unmarshal(js, &r); err != nil {
		return model.Run{}, err
	}
	return r, nil
}

// ListRuns pages newest first on (created_at, id). The cursor is the id of
// the last run of the previous page.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT payload FROM runs WHERE tenant_id=$1
            AND (created_at, id) < (SELECT created_at, id FROM runs WHERE tenant_id=$1 AND id::text=$2)
            ORDER BY created_at DESC, id DESC LIMIT $3`, tenantID, cursor, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT payload FROM runs WHERE tenant_id=$1
            ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		var js []byte
		if err := rows.Scan(&js); err != nil {
			return nil, "", err
		}
		var r model.Run
		if err := json.Unmarshal(js, &r); err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (p *Postgres) GetCompanyConfig(ctx context.Context, tenantID string) (model.CompanyConfig, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM company_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CompanyConfig{}, false, nil
		}
		return model.CompanyConfig{}, false, err
	}
	cfg := model.DefaultCompany()
	if err := json.Unmarshal(js, &cfg); err != nil {
		return model.CompanyConfig{}, false, err
	}
	return cfg, true, nil
}

func (p *Postgres) SaveCompanyConfig(ctx context.Context, tenantID string, cfg model.CompanyConfig) error {
	js, err := toJSON(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO company_config (tenant_id, config, updated_at) VALUES ($1, $2::jsonb, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2::jsonb, updated_at=now()`, tenantID, js)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"jobassign/internal/auth"
	"jobassign/internal/config"
	"jobassign/internal/metrics"
	"jobassign/internal/model"
	"jobassign/internal/opt"
	"jobassign/internal/store"
	"jobassign/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Broker  EventBroker
	Runner  *Runner
	Webhook *webhooks.Worker
	Log     *slog.Logger

	cfg      *config.Config
	company  model.CompanyConfig // default profile
	defaults opt.Options
	validate *validator.Validate
	limiter  *tenantLimiter
	auth     *auth.Verifier
}

// NewServer wires the store, broker, webhook worker and runner from cfg. If
// DATABASE_URL is unset, uses the in-memory store; if REDIS_URL is unset,
// the in-memory broker.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	company, err := config.LoadCompanyProfile(cfg.CompanyProfile)
	if err != nil {
		return nil, err
	}
	verifier, err := auth.New(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim)
	if err != nil {
		return nil, err
	}

	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.Migrate(context.Background()); err != nil {
				return nil, err
			}
		}
		s = sp
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable; using in-memory broker", "err", err)
		} else {
			broker = rb
		}
	}

	srv := &Server{
		Store:    s,
		Broker:   broker,
		Log:      log,
		cfg:      cfg,
		company:  company,
		defaults: cfg.RunOptions(),
		validate: newValidator(),
		limiter:  newTenantLimiter(cfg.Rate.RPS, cfg.Rate.Burst),
		auth:     verifier,
	}
	var notify Notifier
	if cfg.Webhook.URL != "" {
		n := webhooks.NewNotifier(s, cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.MaxAttempts, log)
		srv.Webhook = webhooks.NewWorker(n, 64)
		srv.Webhook.Start()
		notify = srv.Webhook
	}
	srv.Runner = NewRunner(s, broker, notify, log, cfg.MaxConcurrentRuns)
	metrics.RegisterDefault()
	return srv, nil
}

// Routes returns the full handler chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("POST /v1/utility", s.UtilityHandler)
	mux.HandleFunc("POST /v1/demo", s.DemoHandler)

	mux.HandleFunc("GET /v1/runs", s.ListRunsHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.GetRunHandler)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.CancelRunHandler)
	mux.HandleFunc("GET /v1/runs/{id}/events", s.RunEventsHandler)
	mux.HandleFunc("GET /v1/runs/{id}/ws", s.RunWSHandler)
	mux.HandleFunc("GET /v1/runs/{id}/export", s.ExportRunHandler)
	mux.HandleFunc("GET /v1/runs/{id}/deliveries", s.RunDeliveriesHandler)

	mux.HandleFunc("GET /v1/company/config", s.CompanyConfigHandler)
	mux.HandleFunc("PUT /v1/company/config", s.CompanyConfigHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /debug/info", s.DebugJSON)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Location", "Retry-After"},
	})
	return s.logMiddleware(metricsMiddleware(c.Handler(s.authenticate(s.rateLimit(mux)))))
}

// Close stops background work: async runs first, then webhook delivery.
func (s *Server) Close(ctx context.Context) error {
	err := s.Runner.Shutdown(ctx)
	if s.Webhook != nil {
		s.Webhook.Stop()
	}
	if c, ok := s.Store.(interface{ Close() error }); ok {
		err = errors.Join(err, c.Close())
	}
	return errors.Join(err, s.Broker.Close())
}

const defaultTenant = "t_demo"

// tenant identifies the caller: the verified token's tenant, else the
// X-Tenant-Id header. Requests with neither share the demo tenant.
func tenant(r *http.Request) string {
	if t, ok := r.Context().Value(tenantKey).(string); ok {
		return t
	}
	if t := strings.TrimSpace(r.Header.Get("X-Tenant-Id")); t != "" {
		return t
	}
	return defaultTenant
}

// companyFor returns the tenant's saved profile, else the service default.
func (s *Server) companyFor(ctx context.Context, tenantID string) (model.CompanyConfig, string, error) {
	c, ok, err := s.Store.GetCompanyConfig(ctx, tenantID)
	if err != nil {
		return model.CompanyConfig{}, "", err
	}
	if ok {
		return c, "tenant", nil
	}
	return s.company, "default", nil
}

package api

import (
	"net/http"
	"time"

	"jobassign/internal/buildinfo"
)

// DebugJSON reports the build and the effective configuration without
// secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 s.cfg.Port,
			"RATE_RPS":             s.cfg.Rate.RPS,
			"RATE_BURST":           s.cfg.Rate.Burst,
			"MAX_CONCURRENT_RUNS":  s.cfg.MaxConcurrentRuns,
			"OPT_MAX_ITERATIONS":   s.defaults.MaxIterations,
			"OPT_SCHEDULE":         s.defaults.Schedule,
			"WEBHOOK_MAX_ATTEMPTS": s.cfg.Webhook.MaxAttempts,
			"AUTH_MODE":            s.auth.Mode,
			"CORS_ORIGINS":         s.cfg.CORSOrigins,
			"HAS_WEBHOOK_URL":      s.cfg.Webhook.URL != "",
			"HAS_DATABASE_URL":     s.cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.cfg.RedisURL != "",
		},
		"company": s.company,
	})
}

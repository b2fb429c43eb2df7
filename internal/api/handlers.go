package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"jobassign/internal/demo"
	"jobassign/internal/model"
	"jobassign/internal/opt"
)

// runResponse is a run together with its per-worker table.
type runResponse struct {
	model.Run `yaml:",inline"`
	Roster []model.RosterRow `json:"roster" yaml:"roster"`
}

func withRoster(run model.Run) runResponse {
	return runResponse{Run: run, Roster: run.Roster()}
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	tenantID := tenant(r)
	company, err := s.requestCompany(r.Context(), tenantID, req.Company)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jobs, workers := entities(company, req.Jobs, req.Workers)
	s.startRun(w, r, tenantID, company, jobs, workers, req.RunParams)
}

// DemoHandler handles POST /v1/demo: a random instance, optimized like any
// other request.
func (s *Server) DemoHandler(w http.ResponseWriter, r *http.Request) {
	req := DemoRequest{Jobs: 50, Workers: 10}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	tenantID := tenant(r)
	company, _, err := s.companyFor(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(req.Seed))
	jobs := demo.Jobs(rng, company, req.Jobs)
	workers := demo.Workers(rng, company, req.Workers)
	s.startRun(w, r, tenantID, company, jobs, workers, req.RunParams)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request, tenantID string, company model.CompanyConfig,
	jobs []model.Job, workers []model.Worker, params RunParams) {
	opts, err := params.options(s.defaults)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := RunRequest{TenantID: tenantID, Company: company, Jobs: jobs, Workers: workers, Options: opts}
	if params.Async {
		run, err := s.Runner.Start(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"runId":  run.ID,
			"status": run.Status,
			"links": map[string]string{
				"self":   "/v1/runs/" + run.ID,
				"events": "/v1/runs/" + run.ID + "/events",
				"ws":     "/v1/runs/" + run.ID + "/ws",
			},
		})
		return
	}
	run, err := s.Runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withRoster(run))
}

// requestCompany picks the company profile for a request: an explicit one
// wins over the tenant's saved one.
func (s *Server) requestCompany(ctx context.Context, tenantID string, override *model.CompanyConfig) (model.CompanyConfig, error) {
	if override != nil {
		if err := override.Validate(); err != nil {
			return model.CompanyConfig{}, fmt.Errorf("%w: company: %v", opt.ErrConfiguration, err)
		}
		return *override, nil
	}
	c, _, err := s.companyFor(ctx, tenantID)
	return c, err
}

// UtilityHandler handles POST /v1/utility: scores a given assignment without
// optimizing.
func (s *Server) UtilityHandler(w http.ResponseWriter, r *http.Request) {
	var req UtilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	company, err := s.requestCompany(r.Context(), tenant(r), req.Company)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jobs, workers := entities(company, req.Jobs, req.Workers)
	p, err := opt.NewProblem(company, jobs, workers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := p.FromAssignment(req.Assignment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b := p.Breakdown(st)
	writeJSON(w, http.StatusOK, map[string]any{
		"utility":   b.Utility,
		"breakdown": b,
		"roster":    model.BuildRoster(workers, jobs, req.Assignment),
	})
}

// ListRunsHandler handles GET /v1/runs. Items leave out the instance and the
// trace; fetch a run for those.
func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), tenant(r), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summaries := make([]map[string]any, 0, len(items))
	for _, run := range items {
		summaries = append(summaries, map[string]any{
			"id":             run.ID,
			"status":         run.Status,
			"schedule":       run.Schedule,
			"maxIterations":  run.MaxIterations,
			"seed":           run.Seed,
			"jobs":           len(run.Jobs),
			"workers":        len(run.Workers),
			"utility":        run.Utility,
			"initialUtility": run.InitialUtility,
			"createdAt":      run.CreatedAt,
			"finishedAt":     run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": summaries, "nextCursor": next})
}

// GetRunHandler handles GET /v1/runs/{id}
func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), tenant(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withRoster(run))
}

// CancelRunHandler handles DELETE /v1/runs/{id}
func (s *Server) CancelRunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.Store.GetRun(r.Context(), tenant(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if run.Done() {
		writeProblem(w, http.StatusConflict, "Run finished", "run is "+run.Status, r.URL.Path)
		return
	}
	if !s.Runner.Cancel(id) {
		writeProblem(w, http.StatusConflict, "Run not cancellable", "run is not active on this instance", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id, "status": "cancelling"})
}

// ExportRunHandler handles GET /v1/runs/{id}/export?format=yaml|json
func (s *Server) ExportRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), tenant(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := withRoster(run)
	switch format := r.URL.Query().Get("format"); format {
	case "", "yaml":
		b, err := yaml.Marshal(out)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="run-`+run.ID+`.yaml"`)
		_, _ = w.Write(b)
	case "json":
		w.Header().Set("Content-Disposition", `attachment; filename="run-`+run.ID+`.json"`)
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid format", "format must be yaml or json", r.URL.Path)
	}
}

// RunDeliveriesHandler handles GET /v1/runs/{id}/deliveries
func (s *Server) RunDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, id := tenant(r), r.PathValue("id")
	if _, err := s.Store.GetRun(r.Context(), tenantID, id); err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.Store.ListDeliveries(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CompanyConfigHandler handles GET and PUT /v1/company/config
func (s *Server) CompanyConfigHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant(r)
	switch r.Method {
	case http.MethodGet:
		c, source, err := s.companyFor(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": c, "source": source})
	case http.MethodPut:
		c := s.company
		if !decodeJSON(w, r, &c) {
			return
		}
		if err := c.Validate(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid company config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveCompanyConfig(r.Context(), tenantID, c); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": c, "source": "tenant"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}


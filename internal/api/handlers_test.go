package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"jobassign/internal/config"
	"jobassign/internal/model"
	"jobassign/internal/webhooks"
)

func testConfig() *config.Config {
	cfg := &config.Config{Port: "0", MaxConcurrentRuns: 2, DBMigrate: true}
	cfg.Rate.RPS = 1000
	cfg.Rate.Burst = 1000
	cfg.Opt.MaxIterations = 2000
	cfg.Opt.Schedule = "rising"
	cfg.Opt.InitialTemp = 1000
	cfg.Webhook.MaxAttempts = 1
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, ts
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func smallInstance() map[string]any {
	return map[string]any{
		"jobs": []map[string]any{
			{"id": "j1", "type": 1, "duration": 60, "location": map[string]float64{"x": 100, "y": 100}},
			{"id": "j2", "type": 2, "duration": 90, "location": map[string]float64{"x": 500, "y": 200}},
			{"id": "j3", "type": 3, "duration": 30, "location": map[string]float64{"x": 300, "y": 500}},
			{"id": "j4", "type": 1, "duration": 120, "location": map[string]float64{"x": 700, "y": 50}},
		},
		"workers": []map[string]any{
			{"id": "w1", "skills": []int{1, 2}},
			{"id": "w2", "skills": []int{3}},
		},
		"maxIterations": 400,
		"seed":          7,
	}
}

func TestHealthReady(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	resp := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, 200, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/readyz", nil)
	assert.Equal(t, 200, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/debug/info", nil)
	info := decode[map[string]any](t, resp)
	assert.Contains(t, info, "build")
}

func TestOptimizeSync(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	resp := do(t, http.MethodPost, ts.URL+"/v1/optimize", smallInstance())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[runResponse](t, resp)

	assert.Equal(t, model.RunCompleted, out.Status)
	assert.Equal(t, int64(7), out.Seed)
	assert.Len(t, out.Trace, 21)
	assert.Equal(t, 400, out.Stats.Iterations)
	assert.Len(t, out.Assignment, 2)
	require.Len(t, out.Roster, 2)
	assert.Equal(t, "w1", out.Roster[0].WorkerID)
	assert.Equal(t, out.Trace[len(out.Trace)-1].Utility, out.Utility)

	// Same seed, same answer.
	again := decode[runResponse](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", smallInstance()))
	assert.Equal(t, out.Assignment, again.Assignment)
	assert.Equal(t, out.Trace, again.Trace)
}

func TestOptimizeNoJobs(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	body := map[string]any{"workers": []map[string]any{{"id": "a", "skills": []int{1}}, {"id": "b", "skills": []int{2}}}}
	out := decode[runResponse](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", body))
	assert.Equal(t, model.RunCompleted, out.Status)
	require.Len(t, out.Trace, 21)
	for _, pt := range out.Trace {
		assert.Zero(t, pt.Utility)
	}
	assert.Empty(t, out.Assignment["a"])
}

func TestOptimizeRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	single := map[string]any{
		"jobs":    []map[string]any{{"type": 1, "duration": 60}},
		"workers": []map[string]any{{"skills": []int{1}}},
	}
	resp := do(t, http.MethodPost, ts.URL+"/v1/optimize", single)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	p := decode[Problem](t, resp)
	assert.Equal(t, "Invalid configuration", p.Title)

	noSkills := map[string]any{"workers": []map[string]any{{"id": "w", "skills": []int{}}}}
	resp = do(t, http.MethodPost, ts.URL+"/v1/optimize", noSkills)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request", decode[Problem](t, resp).Title)

	sched := smallInstance()
	sched["schedule"] = "linear"
	resp = do(t, http.MethodPost, ts.URL+"/v1/optimize", sched)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	unknown := map[string]any{"jobz": []int{}}
	resp = do(t, http.MethodPost, ts.URL+"/v1/optimize", unknown)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON", decode[Problem](t, resp).Title)
}

func TestUtility(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	body := map[string]any{
		"jobs":       []map[string]any{{"id": "j", "type": 1, "duration": 60, "location": map[string]float64{"x": 400, "y": 300}}},
		"workers":    []map[string]any{{"id": "w", "skills": []int{1}}},
		"assignment": map[string][]string{"w": {"j"}},
	}
	resp := do(t, http.MethodPost, ts.URL+"/v1/utility", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.InDelta(t, 128, out["utility"].(float64), 1e-9)

	body["assignment"] = map[string][]string{"w": {"nope"}}
	resp = do(t, http.MethodPost, ts.URL+"/v1/utility", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid assignment", decode[Problem](t, resp).Title)
}

func TestRunsListGetExport(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	var ids []string
	for i := 0; i < 3; i++ {
		out := decode[runResponse](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", smallInstance()))
		ids = append(ids, out.ID)
	}

	page := decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/v1/runs?limit=2", nil))
	items := page["items"].([]any)
	assert.Len(t, items, 2)
	assert.NotEmpty(t, page["nextCursor"])

	got := decode[runResponse](t, do(t, http.MethodGet, ts.URL+"/v1/runs/"+ids[0], nil))
	assert.Equal(t, ids[0], got.ID)

	resp := do(t, http.MethodGet, ts.URL+"/v1/runs/"+ids[1]+"/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var exported map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &exported))
	assert.Equal(t, ids[1], exported["id"])
	assert.Contains(t, exported, "roster")

	resp = do(t, http.MethodGet, ts.URL+"/v1/runs/"+ids[1]+"/export?format=json", nil)
	assert.Equal(t, ids[1], decode[map[string]any](t, resp)["id"])
	resp = do(t, http.MethodGet, ts.URL+"/v1/runs/"+ids[1]+"/export?format=csv", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Finished runs cannot be cancelled.
	resp = do(t, http.MethodDelete, ts.URL+"/v1/runs/"+ids[2], nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAsyncRunStreamsEvents(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	body := smallInstance()
	body["async"] = true
	body["maxIterations"] = 20000
	resp := do(t, http.MethodPost, ts.URL+"/v1/optimize", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[map[string]any](t, resp)
	id := started["runId"].(string)

	resp = do(t, http.MethodGet, ts.URL+"/v1/runs/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	defer resp.Body.Close()

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if typ, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, typ)
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "heartbeat", events[0])
	assert.Equal(t, EventRunCompleted, events[len(events)-1])

	run := decode[runResponse](t, do(t, http.MethodGet, ts.URL+"/v1/runs/"+id, nil))
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 20000, run.Stats.Iterations)
}

func TestAsyncRunWebsocket(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	body := smallInstance()
	body["async"] = true
	started := decode[map[string]any](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", body))
	id := started["runId"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"X-Tenant-Id": {"t_test"}})
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var last SSEEvent
	for {
		var evt SSEEvent
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		last = evt
	}
	assert.True(t, last.Terminal(), "last event %q", last.Type)
	assert.Equal(t, id, last.Data["runId"])
}

func longRun() map[string]any {
	jobs := make([]map[string]any, 0, 200)
	for i := 0; i < 200; i++ {
		jobs = append(jobs, map[string]any{"type": 1 + i%3, "duration": 30, "location": map[string]float64{"x": float64(i), "y": float64(i)}})
	}
	return map[string]any{
		"jobs":          jobs,
		"workers":       []map[string]any{{"skills": []int{1, 2, 3}}, {"skills": []int{1}}, {"skills": []int{2}}},
		"maxIterations": 10000000,
		"async":         true,
	}
}

func TestCancelAsyncRun(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	started := decode[map[string]any](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", longRun()))
	id := started["runId"].(string)

	resp := do(t, http.MethodDelete, ts.URL+"/v1/runs/"+id, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		run := decode[runResponse](t, do(t, http.MethodGet, ts.URL+"/v1/runs/"+id, nil))
		return run.Status == model.RunCancelled
	}, 10*time.Second, 20*time.Millisecond)

	run := decode[runResponse](t, do(t, http.MethodGet, ts.URL+"/v1/runs/"+id, nil))
	assert.Less(t, run.Stats.Iterations, 10000000)
	assert.NotEmpty(t, run.Trace)
	assert.NotEmpty(t, run.Assignment)
}

func TestBusyWhenSlotsTaken(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentRuns = 1
	_, ts := newTestServer(t, cfg)
	started := decode[map[string]any](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", longRun()))

	resp := do(t, http.MethodPost, ts.URL+"/v1/optimize", longRun())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	do(t, http.MethodDelete, ts.URL+"/v1/runs/"+started["runId"].(string), nil)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.RPS = 0.001
	cfg.Rate.Burst = 1
	_, ts := newTestServer(t, cfg)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/v1/runs", nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, do(t, http.MethodGet, ts.URL+"/v1/runs", nil).StatusCode)
	// Probes are not limited.
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/healthz", nil).StatusCode)
}

func TestCompanyConfig(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	got := decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/v1/company/config", nil))
	assert.Equal(t, "default", got["source"])

	c := model.DefaultCompany()
	c.BaseJobPay = 300
	resp := do(t, http.MethodPut, ts.URL+"/v1/company/config", c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/v1/company/config", nil))
	assert.Equal(t, "tenant", got["source"])

	// Jobs are now priced with the tenant profile.
	body := map[string]any{
		"jobs":       []map[string]any{{"id": "j", "type": 1, "duration": 60, "location": map[string]float64{"x": 400, "y": 300}}},
		"workers":    []map[string]any{{"id": "w", "skills": []int{1}}},
		"assignment": map[string][]string{"w": {"j"}},
	}
	out := decode[map[string]any](t, do(t, http.MethodPost, ts.URL+"/v1/utility", body))
	assert.InDelta(t, 300-22, out["utility"].(float64), 1e-9)

	bad := model.DefaultCompany()
	bad.MaxTime = 0
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, ts.URL+"/v1/company/config", bad).StatusCode)
}

func TestDemo(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	resp := do(t, http.MethodPost, ts.URL+"/v1/demo", map[string]any{"jobs": 30, "workers": 4, "seed": 3, "maxIterations": 500})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[runResponse](t, resp)
	assert.Len(t, out.Jobs, 30)
	assert.Len(t, out.Workers, 4)
	assert.Equal(t, model.RunCompleted, out.Status)

	again := decode[runResponse](t, do(t, http.MethodPost, ts.URL+"/v1/demo", map[string]any{"jobs": 30, "workers": 4, "seed": 3, "maxIterations": 500}))
	assert.Equal(t, out.Assignment, again.Assignment)
}

func TestWebhookOnCompletion(t *testing.T) {
	got := make(chan *http.Request, 1)
	var body []byte
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		got <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig()
	cfg.Webhook.URL = hook.URL
	cfg.Webhook.Secret = "s3cret"
	s, ts := newTestServer(t, cfg)
	out := decode[runResponse](t, do(t, http.MethodPost, ts.URL+"/v1/optimize", smallInstance()))

	select {
	case r := <-got:
		assert.Equal(t, webhooks.EventRunCompleted, r.Header.Get(webhooks.HeaderEventType))
		assert.True(t, webhooks.VerifyHMAC("s3cret", body, r.Header.Get(webhooks.HeaderSignature)))
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
	require.Eventually(t, func() bool {
		ds, err := s.Store.ListDeliveries(context.Background(), "t_test", out.ID)
		return err == nil && len(ds) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp := do(t, http.MethodGet, ts.URL+"/v1/runs/"+out.ID+"/deliveries", nil)
	assert.Len(t, decode[map[string]any](t, resp)["items"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	do(t, http.MethodPost, ts.URL+"/v1/optimize", smallInstance()).Body.Close()
	resp := do(t, http.MethodGet, ts.URL+"/metrics", nil)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), "optimizer_runs_total")
	assert.Contains(t, string(raw), `path="/v1/optimize"`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/runs", routeLabel("/v1/runs"))
	assert.Equal(t, "/v1/runs/{id}", routeLabel("/v1/runs/abc"))
	assert.Equal(t, "/v1/runs/{id}/events", routeLabel("/v1/runs/abc/events"))
	assert.Equal(t, "/healthz", routeLabel("/healthz"))
}

func TestBearerTokenPinsTenant(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Mode = "hmac"
	cfg.Auth.HMACSecret = "k"
	_, ts := newTestServer(t, cfg)

	// do sends X-Tenant-Id but no token.
	resp := do(t, http.MethodGet, ts.URL+"/v1/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/healthz", nil).StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant": "acme"}).SignedString([]byte("k"))
	require.NoError(t, err)
	post := func(url string, body any) *http.Response {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Tenant-Id", "someone-else")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}
	out := decode[runResponse](t, post(ts.URL+"/v1/optimize", smallInstance()))
	assert.Equal(t, "acme", out.TenantID)
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"http://ui.test"}
	_, ts := newTestServer(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/optimize", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://ui.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere.test")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobassign/internal/model"
	"jobassign/internal/store"
)

func testNotifier(s store.Store, url string) *Notifier {
	n := NewNotifier(s, url, "secret", 3, nil)
	n.BaseDelay = time.Millisecond
	return n
}

func TestNotifySignsAndRecords(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	n := testNotifier(mem, srv.URL)
	run := model.Run{ID: "r1", TenantID: "t1", Status: model.RunCompleted, Utility: 10}
	require.NoError(t, n.Notify(context.Background(), run))

	assert.Equal(t, EventRunCompleted, gotType)
	assert.True(t, VerifyHMAC("secret", body, gotSig))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "t1", payload["tenantId"])
	assert.Equal(t, "r1", payload["data"].(map[string]any)["runId"])

	ds, err := mem.ListDeliveries(context.Background(), "t1", "r1")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "delivered", ds[0].Status)
	assert.Equal(t, 1, ds[0].Attempts)
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(204)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	require.NoError(t, testNotifier(mem, srv.URL).Notify(context.Background(), model.Run{ID: "r", TenantID: "t", Status: model.RunCompleted}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	err := testNotifier(mem, srv.URL).Notify(context.Background(), model.Run{ID: "r", TenantID: "t", Status: model.RunFailed})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	ds, _ := mem.ListDeliveries(context.Background(), "t", "r")
	require.Len(t, ds, 1)
	assert.Equal(t, "failed", ds[0].Status)
	assert.Equal(t, EventRunFailed, ds[0].EventType)
}

func TestNotifyClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(410)
	}))
	defer srv.Close()

	err := testNotifier(store.NewMemory(), srv.URL).Notify(context.Background(), model.Run{ID: "r", TenantID: "t", Status: model.RunCompleted})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkerDelivers(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(HeaderEventType)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	w := NewWorker(testNotifier(store.NewMemory(), srv.URL), 4)
	w.Start()
	defer w.Stop()
	require.True(t, w.Enqueue(model.Run{ID: "r", TenantID: "t", Status: model.RunCompleted}))

	select {
	case typ := <-got:
		assert.Equal(t, EventRunCompleted, typ)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

func TestWorkerStopRejectsEnqueue(t *testing.T) {
	w := NewWorker(testNotifier(store.NewMemory(), "http://127.0.0.1:1"), 1)
	w.Start()
	w.Stop()
	assert.False(t, w.Enqueue(model.Run{ID: "r"}))
}

func TestVerifyHMAC(t *testing.T) {
	sig := SignHMAC("k", []byte("body"))
	assert.True(t, VerifyHMAC("k", []byte("body"), sig))
	assert.True(t, VerifyHMAC("k", []byte("body"), "sha256="+sig))
	assert.False(t, VerifyHMAC("other", []byte("body"), sig))
	assert.False(t, VerifyHMAC("k", []byte("body"), "zz"))
}

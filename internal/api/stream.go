package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"jobassign/internal/model"
)

const heartbeatEvery = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// finalEvent rebuilds the terminal event of a run that already finished.
func finalEvent(run model.Run) SSEEvent {
	typ := EventRunCompleted
	if run.Status != model.RunCompleted {
		typ = EventRunFailed
	}
	return SSEEvent{Type: typ, Data: map[string]any{
		"runId": run.ID, "status": run.Status, "utility": run.Utility,
		"initialUtility": run.InitialUtility, "iterations": run.Stats.Iterations, "error": run.Error,
	}}
}

// subscribeRun subscribes before reading the run so the terminal event
// cannot slip between the two.
func (s *Server) subscribeRun(r *http.Request, id string) (ch chan SSEEvent, run model.Run, err error) {
	ch = s.Broker.Subscribe(id)
	run, err = s.Store.GetRun(r.Context(), tenant(r), id)
	if err != nil {
		s.Broker.Unsubscribe(id, ch)
		return nil, model.Run{}, err
	}
	return ch, run, nil
}

// RunEventsHandler handles GET /v1/runs/{id}/events as Server-Sent Events.
// The stream ends after run.completed or run.failed.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, run, err := s.subscribeRun(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.Broker.Unsubscribe(id, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	heartbeat()
	if run.Done() {
		send(finalEvent(run))
		return
	}
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Terminal() {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// RunWSHandler handles GET /v1/runs/{id}/ws. Every event is one JSON text
// message {"type": ..., "data": ...}; the server closes after the terminal
// event. Client messages are ignored.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ch, run, err := s.subscribeRun(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.Broker.Unsubscribe(id, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	if run.Done() {
		_ = conn.WriteJSON(finalEvent(run))
		closeNormal()
		return
	}

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.Terminal() {
				closeNormal()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

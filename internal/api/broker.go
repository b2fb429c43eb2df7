package api

import (
	"sync"
)

// SSEEvent is one progress event of a run.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Run event types.
const (
	EventRunStarted    = "run.started"
	EventRunCheckpoint = "run.checkpoint"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
)

// Terminal reports whether no more events follow for the run.
func (e SSEEvent) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}

// subscriberBuffer holds a whole run's events (start, 21 checkpoints, end)
// so a reader that falls behind does not lose the terminal event.
const subscriberBuffer = 64

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

func (b *Broker) Publish(runID string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Broker) Close() error { return nil }

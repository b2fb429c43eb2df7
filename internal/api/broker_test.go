package api

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)

	evt := SSEEvent{Type: EventRunCheckpoint, Data: map[string]any{"epoch": 1}}
	b.Publish(rid, evt)
	b.Publish("other", SSEEvent{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt, got)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// A second unsubscribe is a no-op.
	b.Unsubscribe(rid, ch)
}

func TestBrokerBuffersWholeRun(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r")
	defer b.Unsubscribe("r", ch)
	for i := 0; i < 22; i++ {
		b.Publish("r", SSEEvent{Type: EventRunCheckpoint})
	}
	b.Publish("r", SSEEvent{Type: EventRunCompleted})
	var last SSEEvent
	for i := 0; i < 23; i++ {
		last = <-ch
	}
	assert.True(t, last.Terminal())
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis broker test")
	}
	b, err := NewRedisBroker(url, slog.Default())
	require.NoError(t, err)
	defer b.Close()

	ch := b.Subscribe("r-redis")
	b.Publish("r-redis", SSEEvent{Type: EventRunStarted, Data: map[string]any{"runId": "r-redis"}})
	select {
	case got := <-ch:
		assert.Equal(t, EventRunStarted, got.Type)
		assert.Equal(t, "r-redis", got.Data["runId"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
	b.Unsubscribe("r-redis", ch)
}

func TestChanName(t *testing.T) {
	assert.Equal(t, "run:abc", chanName("abc"))
}

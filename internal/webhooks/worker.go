package webhooks

import (
	"context"
	"sync"
	"time"

	"jobassign/internal/model"
)

// Worker delivers notifications off the request path. Runs are queued and
// sent one at a time by a single goroutine.
type Worker struct {
	Notifier *Notifier
	queue    chan model.Run
	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
	// Timeout bounds one notification including its retries.
	Timeout time.Duration
}

func NewWorker(n *Notifier, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{Notifier: n, queue: make(chan model.Run, queueSize), stop: make(chan struct{}), Timeout: 2 * time.Minute}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.stop:
				return
			case run := <-w.queue:
				w.processOnce(run)
			}
		}
	}()
}

func (w *Worker) processOnce(run model.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()
	_ = w.Notifier.Notify(ctx, run)
}

// Enqueue schedules a notification. It reports false when the queue is full
// or the worker is stopped.
func (w *Worker) Enqueue(run model.Run) bool {
	select {
	case <-w.stop:
		return false
	default:
	}
	select {
	case w.queue <- run:
		return true
	default:
		w.Notifier.Log.Warn("webhook queue full; dropping notification", "run_id", run.ID)
		return false
	}
}

// Stop ends the delivery goroutine after the in-flight notification.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

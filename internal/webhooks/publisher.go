package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"jobassign/internal/metrics"
	"jobassign/internal/model"
	"jobassign/internal/store"
)

// Event types sent to the configured endpoint.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// Notifier posts signed run notifications to one endpoint.
type Notifier struct {
	Store       store.Store
	HTTP        *http.Client
	URL         string
	Secret      string
	MaxAttempts uint64
	// BaseDelay seeds the Fibonacci backoff between attempts.
	BaseDelay time.Duration
	Log       *slog.Logger
}

func NewNotifier(s store.Store, url, secret string, maxAttempts uint64, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		URL:         url,
		Secret:      secret,
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		Log:         log,
	}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool { return n != nil && n.URL != "" }

// Payload builds the notification body for a finished run. The full
// assignment is left out; receivers fetch it from the runs API.
func Payload(eventType string, run model.Run) ([]byte, string, error) {
	id := "evt_" + uuid.NewString()
	data := map[string]any{
		"runId":          run.ID,
		"status":         run.Status,
		"schedule":       run.Schedule,
		"utility":        run.Utility,
		"initialUtility": run.InitialUtility,
		"iterations":     run.Stats.Iterations,
		"unassignable":   len(run.Unassignable),
		"durationMs":     run.DurationMs,
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	body, err := json.Marshal(map[string]any{
		"id":       id,
		"type":     eventType,
		"tenantId": run.TenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	})
	return body, id, err
}

// Notify delivers the event for run, retrying transport errors and 5xx/429
// responses. Other 4xx responses fail at once. The outcome is logged to the
// store.
func (n *Notifier) Notify(ctx context.Context, run model.Run) error {
	eventType := EventRunCompleted
	if run.Status != model.RunCompleted {
		eventType = EventRunFailed
	}
	body, eventID, err := Payload(eventType, run)
	if err != nil {
		return err
	}

	attempts, code, err := n.deliver(ctx, eventType, eventID, body)
	d := model.WebhookDelivery{
		TenantID: run.TenantID, RunID: run.ID, EventType: eventType, URL: n.URL,
		Status: "delivered", Attempts: attempts, ResponseCode: code,
	}
	if err != nil {
		d.Status = "failed"
		d.LastError = err.Error()
	}
	metrics.WebhookDeliveries.WithLabelValues(eventType, d.Status).Inc()
	if n.Store != nil {
		if _, serr := n.Store.RecordDelivery(ctx, d); serr != nil {
			n.Log.Warn("record webhook delivery", "run_id", run.ID, "err", serr)
		}
	}
	if err != nil {
		n.Log.Warn("webhook delivery failed", "run_id", run.ID, "attempts", attempts, "code", code, "err", err)
		return err
	}
	n.Log.Debug("webhook delivered", "run_id", run.ID, "attempts", attempts)
	return nil
}

func (n *Notifier) deliver(ctx context.Context, eventType, eventID string, body []byte) (attempts, code int, err error) {
	maxRetries := uint64(0)
	if n.MaxAttempts > 1 {
		maxRetries = n.MaxAttempts - 1
	}
	delay := n.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	b := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(delay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEventType, eventType)
		req.Header.Set(HeaderEventID, eventID)
		if n.Secret != "" {
			req.Header.Set(HeaderSignature, SignHMAC(n.Secret, body))
		}
		start := time.Now()
		resp, derr := n.HTTP.Do(req)
		if derr != nil {
			metrics.WebhookLatency.WithLabelValues(eventType, "error").Observe(float64(time.Since(start).Milliseconds()))
			return retry.RetryableError(derr)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		code = resp.StatusCode
		metrics.WebhookLatency.WithLabelValues(eventType, fmt.Sprint(code)).Observe(float64(time.Since(start).Milliseconds()))
		switch {
		case code >= 200 && code < 300:
			return nil
		case code == http.StatusTooManyRequests || code >= 500:
			return retry.RetryableError(fmt.Errorf("endpoint returned %d", code))
		default:
			return &PermanentError{Code: code}
		}
	})
	return attempts, code, err
}

// PermanentError is a response that retrying will not fix.
type PermanentError struct{ Code int }

func (e *PermanentError) Error() string { return fmt.Sprintf("endpoint rejected notification with %d", e.Code) }

// IsPermanent reports whether err came from a non-retryable response.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

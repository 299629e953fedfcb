package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

const webhookTimeout = 10 * time.Second

// WebhookExecutor POSTs the matched record to an external URL. Each target
// URL gets its own circuit breaker so one flapping endpoint cannot burn
// the whole execution budget; transient failures are retried exactly once.
// Config keys: "url" (required), "payload" (optional map merged over the
// default body).
type WebhookExecutor struct {
	client *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewWebhookExecutor creates a webhook executor with the default timeout.
func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{
		client:   &http.Client{Timeout: webhookTimeout},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *WebhookExecutor) Type() types.ActionType { return types.ActionWebhook }

func (e *WebhookExecutor) Execute(ctx context.Context, rec types.Record, config map[string]any) Result {
	url, err := configString(config, "url")
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}

	body := map[string]any{
		"recordId": rec.ID,
		"fields":   rec.Fields,
	}
	if payload, found := config["payload"].(map[string]any); found {
		for k, v := range payload {
			body[k] = v
		}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fail(types.FailurePermanent, "marshaling webhook payload: %v", err)
	}

	category, err := e.post(ctx, url, encoded)
	if err != nil && (category == types.FailureTransient || category == types.FailureTimeout) {
		metrics.ActionRetries.Add(1)
		category, err = e.post(ctx, url, encoded)
	}
	if err != nil {
		return fail(category, "webhook %s: %v", url, err)
	}
	return ok(map[string]any{"url": url})
}

func (e *WebhookExecutor) post(ctx context.Context, url string, body []byte) (types.FailureCategory, error) {
	_, err := e.breaker(url).Execute(func() (any, error) {
		return nil, e.doPost(ctx, url, body)
	})
	if err == nil {
		return "", nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.FailureTransient, fmt.Errorf("circuit open: %w", err)
	}
	var werr *webhookError
	if errors.As(err, &werr) {
		return werr.category, err
	}
	return types.FailureTransient, err
}

type webhookError struct {
	category types.FailureCategory
	message  string
}

func (e *webhookError) Error() string { return e.message }

func (e *WebhookExecutor) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &webhookError{category: types.FailurePermanent, message: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return &webhookError{category: types.FailureTimeout, message: "request timed out"}
		}
		return &webhookError{category: types.FailureTransient, message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode < 500:
		return &webhookError{category: types.FailurePermanent, message: fmt.Sprintf("status %d", resp.StatusCode)}
	default:
		return &webhookError{category: types.FailureTransient, message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
}

func (e *WebhookExecutor) breaker(url string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, found := e.breakers[url]
	if !found {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    url,
			Timeout: 30 * time.Second,
		})
		e.breakers[url] = cb
	}
	return cb
}

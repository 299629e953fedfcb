package funcregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stocksentry/stocksentry/pkg/types"
)

const defaultInvokeTimeout = 10 * time.Second

// Error is a function invocation failure with a retryability category.
type Error struct {
	Category types.FailureCategory
	Message  string
}

func (e *Error) Error() string { return e.Message }

// HTTPInvoker calls a function endpoint with the record as a JSON POST body
// and decodes the Output from the response.
type HTTPInvoker struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPInvoker creates an HTTP-backed function invoker.
func NewHTTPInvoker(url string) *HTTPInvoker {
	return &HTTPInvoker{
		url:     url,
		client:  &http.Client{},
		timeout: defaultInvokeTimeout,
	}
}

// Invoke posts the record and decodes the function output. HTTP 4xx is a
// permanent failure, 5xx transient, deadline expiry a timeout.
func (h *HTTPInvoker) Invoke(ctx context.Context, rec types.Record) (*Output, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, &Error{Category: types.FailurePermanent, Message: fmt.Sprintf("marshaling record: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Category: types.FailurePermanent, Message: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Category: types.FailureTimeout, Message: "function invocation timed out"}
		}
		return nil, &Error{Category: types.FailureTransient, Message: fmt.Sprintf("function request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Category: types.FailureTransient, Message: fmt.Sprintf("reading function response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Category: classifyHTTPStatus(resp.StatusCode),
			Message:  fmt.Sprintf("function returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out Output
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &Error{Category: types.FailurePermanent, Message: fmt.Sprintf("invalid function output: %v", err)}
	}
	return &out, nil
}

func classifyHTTPStatus(code int) types.FailureCategory {
	if code >= 400 && code < 500 {
		return types.FailurePermanent
	}
	return types.FailureTransient
}

// Package httprequest implements the generic HTTP request node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/template"
)

const defaultTimeout = 30 * time.Second

// Executor performs an HTTP request with optional retries. URL, headers and
// body support templating against the execution context.
type Executor struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig

	client *http.Client
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

func NewExecutor(config map[string]any) *Executor {
	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	url, _ := config["url"].(string)
	body, _ := config["body"].(string)

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	retry := RetryConfig{Attempts: 1}
	if retryConfig, ok := config["retry"].(map[string]any); ok {
		if attempts, ok := retryConfig["attempts"].(float64); ok && attempts > 0 {
			retry.Attempts = int(attempts)
		}

		if delay, ok := retryConfig["delay"].(float64); ok {
			retry.Delay = time.Duration(delay) * time.Second
		}
	}

	timeout := defaultTimeout
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Executor{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   retry,
		// The timeout lives on the client so it covers the body read too;
		// a per-attempt context would be cancelled before the caller
		// finishes streaming the response.
		client: &http.Client{Timeout: timeout},
	}
}

func (e *Executor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "http_request", "method", e.Method)

	if e.URL == "" {
		return nil, protocol.NewValidationError("url")
	}

	url, err := template.RenderString(e.URL, executionCtx)
	if err != nil {
		return nil, protocol.NewValidationError("url")
	}

	body := e.Body
	if body != "" {
		rendered, renderErr := template.RenderString(body, executionCtx)
		if renderErr != nil {
			logger.Warn("Failed to render request body template, sending raw body", "error", renderErr)
		} else {
			body = rendered
		}
	}

	logger.Info("Executing http request", "url", url)

	var (
		resp    *http.Response
		lastErr error
	)

	for attempt := 1; attempt <= e.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.Info("Retrying http request", "attempt", attempt, "max_attempts", e.Retry.Attempts)
			time.Sleep(e.Retry.Delay)
		}

		resp, lastErr = e.doRequest(ctx, url, body)
		if lastErr != nil {
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < e.Retry.Attempts {
			closeErr := resp.Body.Close()
			if closeErr != nil {
				logger.Error("Failed to close response body", "error", closeErr)
			}

			lastErr = errors.New("server error, retrying")
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		var netErr interface{ Timeout() bool }
		if ctx.Err() == context.DeadlineExceeded || (errors.As(lastErr, &netErr) && netErr.Timeout()) {
			return nil, protocol.NewTimeoutError("http request timed out")
		}

		return nil, protocol.NewUpstreamError("all retry attempts failed", lastErr)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			logger.Error("Failed to close response body", "error", err)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewUpstreamError("failed to read response body", err)
	}

	var decoded any

	err = json.Unmarshal(bodyBytes, &decoded)
	if err != nil {
		decoded = string(bodyBytes)
	}

	logger.Info("HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        decoded,
	}, nil
}

func (e *Executor) doRequest(ctx context.Context, url, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, e.Method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range e.Headers {
		req.Header.Set(key, value)
	}

	return e.client.Do(req)
}

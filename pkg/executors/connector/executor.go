// Package connector implements third-party connector node executors. Each
// connector exposes a small set of named actions, each a stateless
// request/response mapping with its own required-field validation.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

const requestTimeout = 30 * time.Second

// Action maps one named connector operation to an HTTP call.
type Action struct {
	Method   string
	URL      string
	Required []string
	// BuildBody maps the node config onto the provider's payload shape.
	BuildBody func(config map[string]any) map[string]any
}

// Executor dispatches to the named action of one connector.
type Executor struct {
	Provider    string
	ActionName  string
	Config      map[string]any
	Credentials map[string]string

	actions map[string]Action
	client  *http.Client
}

func NewExecutor(provider string, config map[string]any, actions map[string]Action) *Executor {
	actionName, _ := config["action"].(string)

	actionConfig, _ := config["config"].(map[string]any)
	if actionConfig == nil {
		actionConfig = map[string]any{}
	}

	credentials := make(map[string]string)
	if credsConfig, ok := config["credentials"].(map[string]any); ok {
		for k, v := range credsConfig {
			if strVal, ok := v.(string); ok {
				credentials[k] = strVal
			}
		}
	}

	return &Executor{
		Provider:    provider,
		ActionName:  actionName,
		Config:      actionConfig,
		Credentials: credentials,
		actions:     actions,
		client:      &http.Client{},
	}
}

func (e *Executor) Execute(ctx context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", e.Provider, "action", e.ActionName)

	if e.ActionName == "" {
		return nil, protocol.NewValidationError("action")
	}

	action, ok := e.actions[e.ActionName]
	if !ok {
		return nil, &protocol.ExecutionError{
			Kind:    protocol.ErrorKindValidation,
			Message: fmt.Sprintf("unknown %s action %q", e.Provider, e.ActionName),
		}
	}

	missing := make([]string, 0)

	for _, field := range action.Required {
		if _, ok := e.Config[field]; !ok {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return nil, protocol.NewValidationError(missing...)
	}

	logger.Info("Executing connector action")

	payload := action.BuildBody(e.Config)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, protocol.NewUpstreamError("failed to encode request payload", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, action.Method, action.URL, bytes.NewReader(body))
	if err != nil {
		return nil, protocol.NewUpstreamError("failed to build request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if token, ok := e.Credentials["token"]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, protocol.NewTimeoutError("connector call timed out")
		}

		return nil, protocol.NewUpstreamError(e.Provider+" request failed", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			logger.Error("Failed to close response body", "error", err)
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewUpstreamError("failed to read response body", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.NewUpstreamError(
			fmt.Sprintf("%s returned status %d", e.Provider, resp.StatusCode),
			fmt.Errorf("response: %s", string(respBytes)),
		)
	}

	var decoded any

	err = json.Unmarshal(respBytes, &decoded)
	if err != nil {
		decoded = string(respBytes)
	}

	logger.Info("Connector action completed", "status", resp.StatusCode)

	return map[string]any{
		"action":      e.ActionName,
		"status_code": resp.StatusCode,
		"response":    decoded,
	}, nil
}

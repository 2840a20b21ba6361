package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

func testActions(url string) map[string]Action {
	return map[string]Action{
		"send_message": {
			Method:   http.MethodPost,
			URL:      url,
			Required: []string{"channel", "text"},
			BuildBody: func(config map[string]any) map[string]any {
				return map[string]any{
					"channel": config["channel"],
					"text":    config["text"],
				}
			},
		},
	}
}

func TestExecute(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	executor := NewExecutor("slack", map[string]any{
		"action": "send_message",
		"config": map[string]any{
			"channel": "#general",
			"text":    "deploy finished",
		},
		"credentials": map[string]any{
			"token": "xoxb-token",
		},
	}, testActions(server.URL))

	executionCtx := models.NewExecutionContext("run-1", "wf-1", nil)

	output, err := executor.Execute(context.Background(), executionCtx, slog.Default())
	require.NoError(t, err)

	result := output.(map[string]any)
	assert.Equal(t, "send_message", result["action"])
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]any{"channel": "#general", "text": "deploy finished"}, received)
}

func TestExecuteUnknownAction(t *testing.T) {
	executor := NewExecutor("slack", map[string]any{
		"action": "delete_workspace",
	}, testActions("http://unused"))

	executionCtx := models.NewExecutionContext("run-1", "wf-1", nil)

	_, err := executor.Execute(context.Background(), executionCtx, slog.Default())
	require.Error(t, err)

	execErr, ok := protocol.IsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, protocol.ErrorKindValidation, execErr.Kind)
	assert.Contains(t, execErr.Message, "delete_workspace")
}

func TestExecuteMissingRequiredFields(t *testing.T) {
	executor := NewExecutor("slack", map[string]any{
		"action": "send_message",
		"config": map[string]any{"channel": "#general"},
	}, testActions("http://unused"))

	executionCtx := models.NewExecutionContext("run-1", "wf-1", nil)

	_, err := executor.Execute(context.Background(), executionCtx, slog.Default())
	require.Error(t, err)

	execErr, ok := protocol.IsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, protocol.ErrorKindValidation, execErr.Kind)
	assert.Contains(t, execErr.Message, "text")
}

func TestExecuteProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok": false, "error": "channel_not_found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	executor := NewExecutor("slack", map[string]any{
		"action": "send_message",
		"config": map[string]any{
			"channel": "#nope",
			"text":    "hello",
		},
	}, testActions(server.URL))

	executionCtx := models.NewExecutionContext("run-1", "wf-1", nil)

	_, err := executor.Execute(context.Background(), executionCtx, slog.Default())
	require.Error(t, err)

	execErr, ok := protocol.IsExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, protocol.ErrorKindUpstream, execErr.Kind)
	assert.Contains(t, execErr.Error(), "404")
}

func TestSlackFactoryActions(t *testing.T) {
	factory := NewSlackFactory()
	assert.Equal(t, "slack", factory.ID())

	executor, err := factory.Create(map[string]any{"action": "send_message"})
	require.NoError(t, err)
	assert.NotNil(t, executor)
}

func TestHubSpotFactoryActions(t *testing.T) {
	factory := NewHubSpotFactory()
	assert.Equal(t, "hubspot", factory.ID())

	executor, err := factory.Create(map[string]any{"action": "create_contact"})
	require.NoError(t, err)
	assert.NotNil(t, executor)
}

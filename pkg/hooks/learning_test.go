package hooks

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowlet-io/flowlet/pkg/eventbus"
	"github.com/flowlet-io/flowlet/pkg/events"
	"github.com/flowlet-io/flowlet/pkg/mocks"
)

func TestRunFinishedPublishesOutcome(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(event eventbus.Event) bool {
		completed, ok := event.(events.RunCompleted)
		if !ok {
			return false
		}

		return completed.WorkflowID == "wf-1" && completed.Output["node"] == "out"
	})).Return(nil)

	hook := NewLearningHook(bus, slog.Default())
	hook.RunFinished(context.Background(), "wf-1", map[string]any{"in": 1}, map[string]any{"node": "out"})

	bus.AssertExpectations(t)
}

func TestRunFinishedSwallowsPublishErrors(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bus down"))

	hook := NewLearningHook(bus, slog.Default())

	require.NotPanics(t, func() {
		hook.RunFinished(context.Background(), "wf-1", nil, nil)
	})
	bus.AssertExpectations(t)
}

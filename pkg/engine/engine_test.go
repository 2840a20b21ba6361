package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/persistence/memory"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/registry"
)

type stubExecutor struct {
	fn func(ctx context.Context, executionCtx *models.ExecutionContext) (any, error)
}

func (e stubExecutor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, _ *slog.Logger) (any, error) {
	return e.fn(ctx, executionCtx)
}

type stubFactory struct {
	id        string
	fn        func(ctx context.Context, executionCtx *models.ExecutionContext) (any, error)
	createErr error
}

func (f stubFactory) ID() string { return f.id }

func (f stubFactory) Create(_ map[string]any) (protocol.Executor, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	return stubExecutor{fn: f.fn}, nil
}

func (f stubFactory) Schema() map[string]any { return map[string]any{} }

func newTestRegistry(t *testing.T, factories ...stubFactory) *registry.Registry {
	t.Helper()

	r := registry.NewRegistry(slog.Default())
	for _, f := range factories {
		r.Register(f)
	}

	return r
}

func saveWorkflow(t *testing.T, p *memory.Persistence, nodes ...*models.Node) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		Name:   "test workflow",
		Status: models.WorkflowStatusActive,
		Trigger: models.Trigger{
			Kind: models.TriggerKindManual,
		},
		Nodes: nodes,
	}

	require.NoError(t, p.Workflows().Save(context.Background(), workflow))

	return workflow
}

func TestRunCompletesAndRecordsNodeOutputs(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "first", Type: "stub", Title: "First"},
		&models.Node{ID: "second", Type: "stub", Title: "Second"},
	)

	r := newTestRegistry(t, stubFactory{
		id: "stub",
		fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
			return map[string]any{"text": "hello"}, nil
		},
	})

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, map[string]any{"source": "test"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, map[string]any{"source": "test"}, run.Input)
	assert.Equal(t, map[string]any{"text": "hello"}, run.Output["first"])
	assert.Equal(t, map[string]any{"text": "hello"}, run.Output["second"])

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "first", run.Steps[0].NodeID)
	assert.Equal(t, models.RunStepStatusCompleted, run.Steps[0].Status)
	assert.Equal(t, "second", run.Steps[1].NodeID)
}

func TestRunContinuesPastFailedNode(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "broken", Type: "failing", Title: "Broken"},
		&models.Node{ID: "after", Type: "stub", Title: "After"},
	)

	r := newTestRegistry(t,
		stubFactory{
			id: "failing",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return nil, protocol.NewUpstreamError("service returned status 500", nil)
			},
		},
		stubFactory{
			id: "stub",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	)

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Contains(t, run.Output["broken"].(map[string]any)["error"], "service returned status 500")
	assert.Equal(t, map[string]any{"ok": true}, run.Output["after"])

	require.Len(t, run.Steps, 2)
	assert.Equal(t, models.RunStepStatusFailed, run.Steps[0].Status)
	assert.NotEmpty(t, run.Steps[0].Error)
	assert.Equal(t, models.RunStepStatusCompleted, run.Steps[1].Status)
}

func TestRunUnknownNodeTypeIsPassThrough(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "mystery", Type: "does_not_exist", Title: "Mystery"},
		&models.Node{ID: "after", Type: "stub", Title: "After"},
	)

	r := newTestRegistry(t, stubFactory{
		id: "stub",
		fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotContains(t, run.Output, "mystery")
	assert.Equal(t, models.RunStepStatusCompleted, run.Steps[0].Status)
}

func TestRunUnknownWorkflowCreatesNoRun(t *testing.T) {
	p := memory.NewPersistence()
	engine := NewEngine(slog.Default(), p, newTestRegistry(t))

	run, err := engine.Run(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	runs, err := p.Runs().ListByWorkflow(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunSkipsNodesMarkedByCondition(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "gate", Type: "gate", Title: "Gate"},
		&models.Node{ID: "skipped", Type: "stub", Title: "Skipped"},
		&models.Node{ID: "kept", Type: "stub", Title: "Kept"},
	)

	executed := make(map[string]bool)

	r := newTestRegistry(t,
		stubFactory{
			id: "gate",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return map[string]any{
					"matched":             false,
					protocol.SkipNodesKey: []string{"skipped"},
				}, nil
			},
		},
		stubFactory{
			id: "stub",
			fn: func(_ context.Context, executionCtx *models.ExecutionContext) (any, error) {
				for id := range executionCtx.NodeOutputs {
					executed[id] = true
				}

				return map[string]any{"ok": true}, nil
			},
		},
	)

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]any{"skipped": true}, run.Output["skipped"])
	assert.Equal(t, map[string]any{"ok": true}, run.Output["kept"])

	require.Len(t, run.Steps, 3)
	assert.Equal(t, models.RunStepStatusCompleted, run.Steps[1].Status)
}

func TestRunNodeTimeoutIsNodeLevel(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "slow", Type: "slow", Title: "Slow"},
		&models.Node{ID: "after", Type: "stub", Title: "After"},
	)

	r := newTestRegistry(t,
		stubFactory{
			id: "slow",
			fn: func(ctx context.Context, _ *models.ExecutionContext) (any, error) {
				<-ctx.Done()

				return nil, ctx.Err()
			},
		},
		stubFactory{
			id: "stub",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	)

	engine := NewEngine(slog.Default(), p, r, WithNodeTimeout(20*time.Millisecond))

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.RunStepStatusFailed, run.Steps[0].Status)
	assert.Contains(t, run.Steps[0].Error, "exceeded")
	assert.Equal(t, map[string]any{"ok": true}, run.Output["after"])
}

func TestRunPanicFlipsRunToFailed(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "boom", Type: "panicking", Title: "Boom"},
	)

	r := newTestRegistry(t, stubFactory{
		id: "panicking",
		fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
			panic("executor bug")
		},
	})

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "panicked")
}

func TestRunSnapshotIsolation(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "first", Type: "mutating", Title: "First"},
		&models.Node{ID: "second", Type: "stub", Title: "Second"},
	)

	r := newTestRegistry(t,
		stubFactory{
			id: "mutating",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				// Concurrent edit while the run is in flight: drop the
				// second node from the stored definition.
				stored, err := p.Workflows().GetByID(context.Background(), workflow.ID)
				if err != nil {
					return nil, err
				}

				stored.Nodes = stored.Nodes[:1]

				return map[string]any{"ok": true}, p.Workflows().Save(context.Background(), stored)
			},
		},
		stubFactory{
			id: "stub",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	)

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	// The in-flight run still executes the second node from its snapshot.
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]any{"ok": true}, run.Output["second"])
	assert.Len(t, run.Steps, 2)
}

func TestFinalizedRunIsImmutable(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "only", Type: "stub", Title: "Only"},
	)

	r := newTestRegistry(t, stubFactory{
		id: "stub",
		fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, run.Status)

	_, err = p.Runs().Finalize(context.Background(), run.ID, models.RunResult{
		Status: models.RunStatusFailed,
		Error:  "late failure",
	})
	require.Error(t, err)
	assert.True(t, persistence.IsRunFinalized(err))

	fetched, err := p.Runs().GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, fetched.Status)
	assert.Empty(t, fetched.Error)
}

type recordingHook struct {
	done chan struct{}

	workflowID string
	output     map[string]any
}

func (h *recordingHook) RunFinished(_ context.Context, workflowID string, _ map[string]any, output map[string]any) {
	h.workflowID = workflowID
	h.output = output
	close(h.done)
}

func TestRunInvokesLearningHook(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "only", Type: "stub", Title: "Only"},
	)

	r := newTestRegistry(t, stubFactory{
		id: "stub",
		fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
			return map[string]any{"text": "done"}, nil
		},
	})

	hook := &recordingHook{done: make(chan struct{})}
	engine := NewEngine(slog.Default(), p, r, WithLearningHook(hook))

	_, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	select {
	case <-hook.done:
	case <-time.After(time.Second):
		t.Fatal("learning hook was not invoked")
	}

	assert.Equal(t, workflow.ID, hook.workflowID)
	assert.Equal(t, map[string]any{"text": "done"}, hook.output["only"])
}

func TestSweeperFinalizesStaleRuns(t *testing.T) {
	p := memory.NewPersistence()

	stale, err := p.Runs().CreateRunning(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	sweeper := NewSweeper(slog.Default(), p, time.Nanosecond)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	fetched, err := p.Runs().GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, fetched.Status)
	assert.Contains(t, fetched.Error, "exceeded maximum duration")
}

func TestSweeperIgnoresFreshRuns(t *testing.T) {
	p := memory.NewPersistence()

	fresh, err := p.Runs().CreateRunning(context.Background(), "wf-1", nil)
	require.NoError(t, err)

	sweeper := NewSweeper(slog.Default(), p, time.Hour)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	fetched, err := p.Runs().GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, fetched.Status)
}

func TestRunFactoryErrorIsRecordedOnStep(t *testing.T) {
	p := memory.NewPersistence()
	workflow := saveWorkflow(t, p,
		&models.Node{ID: "unbuildable", Type: "broken", Title: "Unbuildable"},
		&models.Node{ID: "after", Type: "stub", Title: "After"},
	)

	r := newTestRegistry(t,
		stubFactory{id: "broken", createErr: errors.New("missing credentials")},
		stubFactory{
			id: "stub",
			fn: func(_ context.Context, _ *models.ExecutionContext) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	)

	engine := NewEngine(slog.Default(), p, r)

	run, err := engine.Run(context.Background(), workflow.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, models.RunStepStatusFailed, run.Steps[0].Status)
	assert.Contains(t, run.Steps[0].Error, "missing credentials")

	slot, ok := run.Output["unbuildable"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, slot["error"], "missing credentials")
}

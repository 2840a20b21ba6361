package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

func testWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name:   name,
		Status: models.WorkflowStatusActive,
		Trigger: models.Trigger{
			Kind: models.TriggerKindSchedule,
			Cron: "* * * * *",
		},
		Nodes: []*models.Node{
			{ID: "first", Type: "ai", Config: map[string]any{"prompt": "hi"}},
		},
	}
}

func TestWorkflowSaveAndGet(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	workflow := testWorkflow("digest")
	require.NoError(t, p.Workflows().Save(ctx, workflow))
	assert.NotEmpty(t, workflow.ID)

	fetched, err := p.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "digest", fetched.Name)
	require.Len(t, fetched.Nodes, 1)
}

func TestWorkflowGetReturnsSnapshot(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	workflow := testWorkflow("digest")
	require.NoError(t, p.Workflows().Save(ctx, workflow))

	first, err := p.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	first.Nodes[0].Config["prompt"] = "changed"
	first.Name = "changed"

	second, err := p.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "digest", second.Name)
	assert.Equal(t, "hi", second.Nodes[0].Config["prompt"])
}

func TestWorkflowGetMissing(t *testing.T) {
	p := NewPersistence()

	_, err := p.Workflows().GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestListActiveByTriggerKind(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	active := testWorkflow("active")
	require.NoError(t, p.Workflows().Save(ctx, active))

	paused := testWorkflow("paused")
	paused.Status = models.WorkflowStatusPaused
	require.NoError(t, p.Workflows().Save(ctx, paused))

	webhook := testWorkflow("hooked")
	webhook.Trigger = models.Trigger{Kind: models.TriggerKindWebhook, Path: "/x"}
	require.NoError(t, p.Workflows().Save(ctx, webhook))

	scheduled, err := p.Workflows().ListActiveByTriggerKind(ctx, models.TriggerKindSchedule)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "active", scheduled[0].Name)
}

func TestWorkflowDelete(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	workflow := testWorkflow("digest")
	require.NoError(t, p.Workflows().Save(ctx, workflow))
	require.NoError(t, p.Workflows().Delete(ctx, workflow.ID))

	err := p.Workflows().Delete(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestRunLifecycle(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	run, err := p.Runs().CreateRunning(ctx, "wf-1", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)

	step := &models.RunStep{ID: "step-1", RunID: run.ID, NodeID: "first", Status: models.RunStepStatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, p.Runs().AppendStep(ctx, run.ID, step))

	step.Status = models.RunStepStatusCompleted
	require.NoError(t, p.Runs().UpdateStep(ctx, run.ID, step))

	finalized, err := p.Runs().Finalize(ctx, run.ID, models.RunResult{
		Status: models.RunStatusCompleted,
		Output: map[string]any{"first": map[string]any{"ok": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, finalized.Status)
	assert.NotNil(t, finalized.FinishedAt)
	require.Len(t, finalized.Steps, 1)
	assert.Equal(t, models.RunStepStatusCompleted, finalized.Steps[0].Status)
}

func TestRunTerminalStateIsImmutable(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	run, err := p.Runs().CreateRunning(ctx, "wf-1", nil)
	require.NoError(t, err)

	_, err = p.Runs().Finalize(ctx, run.ID, models.RunResult{Status: models.RunStatusFailed, Error: "boom"})
	require.NoError(t, err)

	_, err = p.Runs().Finalize(ctx, run.ID, models.RunResult{Status: models.RunStatusCompleted})
	assert.True(t, persistence.IsRunFinalized(err))

	err = p.Runs().AppendStep(ctx, run.ID, &models.RunStep{ID: "late"})
	assert.True(t, persistence.IsRunFinalized(err))
}

func TestUpdateStepMissing(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	run, err := p.Runs().CreateRunning(ctx, "wf-1", nil)
	require.NoError(t, err)

	err = p.Runs().UpdateStep(ctx, run.ID, &models.RunStep{ID: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrStepNotFound)
}

func TestListByWorkflow(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	_, err := p.Runs().CreateRunning(ctx, "wf-1", nil)
	require.NoError(t, err)
	_, err = p.Runs().CreateRunning(ctx, "wf-1", nil)
	require.NoError(t, err)
	_, err = p.Runs().CreateRunning(ctx, "wf-2", nil)
	require.NoError(t, err)

	runs, err := p.Runs().ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// Package engine implements the workflow execution engine: it loads a
// workflow snapshot, walks its nodes in declared order and records the run
// outcome in the run log.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowlet-io/flowlet/pkg/eventbus"
	"github.com/flowlet-io/flowlet/pkg/events"
	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/otelhelper"
	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/registry"
)

const defaultNodeTimeout = 60 * time.Second

// Engine executes workflows. Each Run call owns a freshly allocated Run
// record and ExecutionContext; nothing is shared between concurrent runs.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger

	publisher   eventbus.EventPublisher
	hook        protocol.LearningHook
	tracer      trace.Tracer
	nodeTimeout time.Duration
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithPublisher sets the event publisher for run lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithLearningHook sets the fire-and-forget hook invoked after each run.
func WithLearningHook(hook protocol.LearningHook) Option {
	return func(e *Engine) {
		e.hook = hook
	}
}

// WithTracer enables per-run and per-node tracing spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithNodeTimeout overrides the per-node execution timeout.
func WithNodeTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.nodeTimeout = timeout
	}
}

func NewEngine(logger *slog.Logger, p persistence.Persistence, r *registry.Registry, opts ...Option) *Engine {
	engine := &Engine{
		persistence: p,
		registry:    r,
		logger:      logger.With("module", "engine"),
		nodeTimeout: defaultNodeTimeout,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Run executes the workflow against the trigger payload and returns the
// finalized run. When the workflow id does not resolve it fails before any
// run record is created. Node-level failures are recorded inline and do
// not abort the run; only infrastructure errors escaping the per-node
// boundary flip the run to failed.
func (e *Engine) Run(ctx context.Context, workflowID string, triggerPayload map[string]any) (run *models.Run, err error) {
	logger := e.logger.With("workflow_id", workflowID)
	logger.InfoContext(ctx, "Starting workflow run")

	// Snapshot load: repositories return deep copies, so later updates to
	// the stored definition cannot affect this run.
	workflow, err := e.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.run",
			attribute.String(otelhelper.WorkflowIDKey, workflowID),
		)
		defer span.End()
	}

	run, err = e.persistence.Runs().CreateRunning(ctx, workflowID, triggerPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to create run for workflow %s: %w", workflowID, err)
	}

	logger = logger.With("run_id", run.ID)
	e.publishRunStarted(ctx, workflow, run)

	executionCtx := models.NewExecutionContext(run.ID, workflowID, triggerPayload)

	defer func() {
		// A panic escaping a node executor is an infrastructure failure;
		// salvage a terminal state instead of leaving the run stuck.
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow run panicked: %v", r)
			run = e.finalizeFailed(ctx, logger, run, err)
		}
	}()

	loopErr := e.runNodes(ctx, logger, workflow, run, executionCtx)
	if loopErr != nil {
		finalized := e.finalizeFailed(ctx, logger, run, loopErr)

		return finalized, loopErr
	}

	finalized, err := e.persistence.Runs().Finalize(ctx, run.ID, models.RunResult{
		Status: models.RunStatusCompleted,
		Output: executionCtx.NodeOutputs,
	})
	if err != nil {
		return run, fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}

	logger.InfoContext(ctx, "Workflow run completed", "duration", time.Since(run.StartedAt))

	e.invokeHook(ctx, logger, workflowID, triggerPayload, executionCtx.NodeOutputs)

	return finalized, nil
}

// runNodes walks the snapshot's nodes strictly sequentially. The returned
// error is run-level: it means the run log itself failed, not a node.
func (e *Engine) runNodes(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, run *models.Run, executionCtx *models.ExecutionContext) error {
	runs := e.persistence.Runs()
	skip := make(map[string]bool)
	priorIDs := make([]string, 0, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		nodeLogger := logger.With("node_id", node.ID, "node_type", node.Type)

		step := &models.RunStep{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			NodeID:    node.ID,
			Name:      node.Title,
			Status:    models.RunStepStatusRunning,
			StartedAt: time.Now().UTC(),
		}

		if skip[node.ID] {
			nodeLogger.InfoContext(ctx, "Node skipped by upstream condition")
			executionCtx.RecordOutput(node.ID, map[string]any{"skipped": true})

			now := time.Now().UTC()
			step.Status = models.RunStepStatusCompleted
			step.FinishedAt = &now

			err := runs.AppendStep(ctx, run.ID, step)
			if err != nil {
				return err
			}

			priorIDs = append(priorIDs, node.ID)

			continue
		}

		err := runs.AppendStep(ctx, run.ID, step)
		if err != nil {
			return err
		}

		output, execErr := e.executeNode(ctx, node, priorIDs, executionCtx, nodeLogger)

		now := time.Now().UTC()
		step.FinishedAt = &now

		if execErr != nil {
			nodeLogger.WarnContext(ctx, "Node failed, continuing run", "error", execErr)

			// The failure lands in the node's output slot, not in the
			// run-level error.
			executionCtx.RecordOutput(node.ID, map[string]any{"error": execErr.Error()})

			step.Status = models.RunStepStatusFailed
			step.Error = execErr.Error()

			e.publishNodeFailed(ctx, workflow.ID, run.ID, node, execErr)
		} else {
			if output != nil {
				executionCtx.RecordOutput(node.ID, output)
				e.collectSkips(output, skip)
			}

			step.Status = models.RunStepStatusCompleted

			e.publishNodeCompleted(ctx, workflow.ID, run.ID, node)
		}

		err = runs.UpdateStep(ctx, run.ID, step)
		if err != nil {
			return err
		}

		priorIDs = append(priorIDs, node.ID)
	}

	return nil
}

// executeNode dispatches one node to its executor under the per-node
// timeout. Any error returned here is node-level.
func (e *Engine) executeNode(ctx context.Context, node *models.Node, priorIDs []string, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	config := make(map[string]any, len(node.Config)+2)
	for k, v := range node.Config {
		config[k] = v
	}

	config["id"] = node.ID
	config["node_order"] = append([]string(nil), priorIDs...)

	executor, err := e.registry.Create(node.Type, config)
	if err != nil {
		return nil, &protocol.ExecutionError{
			Kind:    protocol.ErrorKindValidation,
			Message: "executor creation failed",
			Err:     err,
		}
	}

	nodeCtx, cancel := context.WithTimeout(ctx, e.nodeTimeout)
	defer cancel()

	if e.tracer != nil {
		var span trace.Span

		nodeCtx, span = otelhelper.StartSpan(nodeCtx, e.tracer, "engine.node",
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, node.Type),
		)
		defer span.End()

		defer func() {
			if err != nil {
				otelhelper.SetError(span, err)
			}
		}()
	}

	output, err := executor.Execute(nodeCtx, executionCtx, logger)
	if err != nil {
		if nodeCtx.Err() == context.DeadlineExceeded {
			return nil, protocol.NewTimeoutError("node execution exceeded " + e.nodeTimeout.String())
		}

		return nil, err
	}

	return output, nil
}

// collectSkips folds a branching node's skip list into the skip set.
func (e *Engine) collectSkips(output any, skip map[string]bool) {
	outputMap, ok := output.(map[string]any)
	if !ok {
		return
	}

	skipList, ok := outputMap[protocol.SkipNodesKey]
	if !ok {
		return
	}

	switch ids := skipList.(type) {
	case []string:
		for _, id := range ids {
			skip[id] = true
		}
	case []any:
		for _, v := range ids {
			if id, ok := v.(string); ok {
				skip[id] = true
			}
		}
	}
}

func (e *Engine) finalizeFailed(ctx context.Context, logger *slog.Logger, run *models.Run, cause error) *models.Run {
	finalized, err := e.persistence.Runs().Finalize(ctx, run.ID, models.RunResult{
		Status: models.RunStatusFailed,
		Error:  cause.Error(),
	})
	if err != nil {
		// The run stays RUNNING; the stale-run sweep reconciles it.
		logger.ErrorContext(ctx, "Failed to finalize failed run", "error", err)

		return run
	}

	e.publishRunFailed(ctx, finalized, cause)

	return finalized
}

// invokeHook calls the learning hook in its own error boundary. Hook
// failure must never fail the run.
func (e *Engine) invokeHook(ctx context.Context, logger *slog.Logger, workflowID string, input, output map[string]any) {
	if e.hook == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Learning hook panicked", "panic", r)
			}
		}()

		e.hook.RunFinished(context.WithoutCancel(ctx), workflowID, input, output)
	}()
}

func (e *Engine) publishRunStarted(ctx context.Context, workflow *models.Workflow, run *models.Run) {
	if e.publisher == nil {
		return
	}

	event := events.RunStarted{
		BaseEvent:   e.baseEvent(events.RunStartedEvent, workflow.ID, run.ID),
		TriggerKind: string(workflow.Trigger.Kind),
		Input:       run.Input,
	}

	err := e.publisher.Publish(ctx, workflow.ID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish run started event", "error", err)
	}
}

func (e *Engine) publishRunFailed(ctx context.Context, run *models.Run, cause error) {
	if e.publisher == nil {
		return
	}

	event := events.RunFailed{
		BaseEvent: e.baseEvent(events.RunFailedEvent, run.WorkflowID, run.ID),
		Error:     cause.Error(),
		Duration:  time.Since(run.StartedAt),
	}

	err := e.publisher.Publish(ctx, run.WorkflowID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish run failed event", "error", err)
	}
}

func (e *Engine) publishNodeCompleted(ctx context.Context, workflowID, runID string, node *models.Node) {
	if e.publisher == nil {
		return
	}

	event := events.NodeCompleted{
		BaseEvent: e.baseEvent(events.NodeCompletedEvent, workflowID, runID),
		NodeID:    node.ID,
		NodeType:  node.Type,
	}

	err := e.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish node completed event", "error", err)
	}
}

func (e *Engine) publishNodeFailed(ctx context.Context, workflowID, runID string, node *models.Node, cause error) {
	if e.publisher == nil {
		return
	}

	event := events.NodeFailed{
		BaseEvent: e.baseEvent(events.NodeFailedEvent, workflowID, runID),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Error:     cause.Error(),
	}

	err := e.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish node failed event", "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID, runID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

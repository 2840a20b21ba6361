// Package condition implements the conditional-branch node executor.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/template"
)

// SkipKey is the output field the engine inspects: when a condition node
// reports matched=false, the listed node ids are skipped.
const SkipKey = protocol.SkipNodesKey

// Executor evaluates a templated predicate against the execution context
// and, when false, marks the configured downstream nodes to skip.
type Executor struct {
	Expression string
	SkipNodes  []string
}

func NewExecutor(config map[string]any) *Executor {
	expression, _ := config["expression"].(string)

	var skipNodes []string
	if rawSkip, ok := config["skip_nodes"].([]any); ok {
		for _, v := range rawSkip {
			if id, ok := v.(string); ok {
				skipNodes = append(skipNodes, id)
			}
		}
	}

	return &Executor{
		Expression: expression,
		SkipNodes:  skipNodes,
	}
}

func (e *Executor) Execute(_ context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "condition")

	matched, err := e.evaluate(executionCtx)
	if err != nil {
		return nil, &protocol.ExecutionError{
			Kind:    protocol.ErrorKindValidation,
			Message: fmt.Sprintf("cannot evaluate condition %q", e.Expression),
			Err:     err,
		}
	}

	logger.Info("Condition evaluated", "matched", matched)

	output := map[string]any{"matched": matched}

	if !matched && len(e.SkipNodes) > 0 {
		output[SkipKey] = e.SkipNodes
	}

	return output, nil
}

// evaluate renders the expression against the context and coerces the
// result to a boolean. Empty expressions default to true.
func (e *Executor) evaluate(executionCtx *models.ExecutionContext) (bool, error) {
	if e.Expression == "" {
		return true, nil
	}

	rendered, err := template.RenderWithContext(e.Expression, executionCtx)
	if err != nil {
		return false, err
	}

	switch v := rendered.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return true, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", rendered)
	}
}

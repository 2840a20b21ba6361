// Package ai implements the AI text-generation node executor.
package ai

import (
	"context"
	"log/slog"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/template"
)

const defaultModel = "gpt-4o-mini"

// Executor calls the external text-generation collaborator with the node's
// prompt and records the generated text.
type Executor struct {
	Prompt      string
	Model       string
	Temperature float64

	generator protocol.TextGenerator
}

func NewExecutor(config map[string]any, generator protocol.TextGenerator) *Executor {
	prompt, _ := config["prompt"].(string)

	model, _ := config["model"].(string)
	if model == "" {
		model = defaultModel
	}

	temperature, ok := config["temperature"].(float64)
	if !ok {
		temperature = 0.7
	}

	return &Executor{
		Prompt:      prompt,
		Model:       model,
		Temperature: temperature,
		generator:   generator,
	}
}

func (e *Executor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "ai", "model", e.Model)

	if e.Prompt == "" {
		return nil, protocol.NewValidationError("prompt")
	}

	prompt, err := template.RenderString(e.Prompt, executionCtx)
	if err != nil {
		return nil, protocol.NewValidationError("prompt")
	}

	logger.Info("Executing ai generation")

	text, err := e.generator.Generate(ctx, protocol.GenerationRequest{
		Prompt:      prompt,
		Model:       e.Model,
		Temperature: e.Temperature,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, protocol.NewTimeoutError("text generation timed out")
		}

		return nil, protocol.NewUpstreamError("text generation failed", err)
	}

	logger.Info("AI generation completed", "length", len(text))

	return map[string]any{
		"text":  text,
		"model": e.Model,
	}, nil
}

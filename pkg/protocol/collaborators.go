package protocol

import "context"

// TextGenerator is the external AI text-generation collaborator used by the
// ai node executor.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest carries the model parameters the ai node reads from its
// config.
type GenerationRequest struct {
	Prompt      string
	Model       string
	Temperature float64
}

// EmailSender is the external email transport collaborator used by the
// email node executor.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// LearningHook receives the final outcome of each run. Implementations are
// fire-and-forget: the engine never fails a run over a hook error.
type LearningHook interface {
	RunFinished(ctx context.Context, workflowID string, input, output map[string]any)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// MockTextGenerator is a mock implementation of protocol.TextGenerator.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Generate(ctx context.Context, req protocol.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

// MockEmailSender is a mock implementation of protocol.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg protocol.EmailMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

// MockLearningHook is a mock implementation of protocol.LearningHook.
type MockLearningHook struct {
	mock.Mock
}

func (m *MockLearningHook) RunFinished(ctx context.Context, workflowID string, input, output map[string]any) {
	m.Called(ctx, workflowID, input, output)
}

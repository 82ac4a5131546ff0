package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
)

const mockProviderName = "mock"

// MockProvider accepts everything unless told to fail. Used for local runs.
type MockProvider struct {
	logger         *slog.Logger
	FailUpload     bool
	FailSubmit     bool
	SimulatedDelay time.Duration
}

func NewMockProvider(logger *slog.Logger, failUpload, failSubmit bool, delay time.Duration) *MockProvider {
	return &MockProvider{
		logger:         logger.With("provider", mockProviderName),
		FailUpload:     failUpload,
		FailSubmit:     failSubmit,
		SimulatedDelay: delay,
	}
}

func (p *MockProvider) UploadMedia(ctx context.Context, name, mimeType string, content []byte) (string, error) {
	p.logger.InfoContext(ctx, "MockProvider: UploadMedia called", "name", name, "mime_type", mimeType, "size_bytes", len(content))
	if err := p.wait(ctx); err != nil {
		return "", &domain.ProviderError{Provider: mockProviderName, Phase: domain.PhaseUpload, Err: err}
	}
	if p.FailUpload {
		return "", &domain.ProviderError{Provider: mockProviderName, Phase: domain.PhaseUpload, Err: errors.New("mock provider simulated upload failure")}
	}
	return "mock-media-" + uuid.NewString(), nil
}

func (p *MockProvider) SubmitMessage(ctx context.Context, recipient string, payload domain.OutboundPayload) (string, error) {
	p.logger.InfoContext(ctx, "MockProvider: SubmitMessage called", "recipient", recipient, "kind", payload.Kind())
	if err := p.wait(ctx); err != nil {
		return "", &domain.ProviderError{Provider: mockProviderName, Phase: domain.PhaseSubmit, Err: err}
	}
	if p.FailSubmit {
		return "", &domain.ProviderError{Provider: mockProviderName, Phase: domain.PhaseSubmit, Err: errors.New("mock provider simulated submit failure")}
	}
	providerMsgID := "wamid.mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "MockProvider: message accepted (simulated)", "recipient", recipient, "provider_message_id", providerMsgID)
	return providerMsgID, nil
}

func (p *MockProvider) GetName() string {
	return mockProviderName
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.SimulatedDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.SimulatedDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

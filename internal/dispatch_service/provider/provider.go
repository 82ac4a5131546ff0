package provider

import (
	"context"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
)

// Provider is a messaging provider that accepts media uploads and message submissions.
// Implementations return *domain.ProviderError so callers can tell the phase and HTTP status.
type Provider interface {
	// UploadMedia stores the content at the provider and returns its media handle.
	UploadMedia(ctx context.Context, name, mimeType string, content []byte) (string, error)
	// SubmitMessage sends the payload and returns the provider message id.
	SubmitMessage(ctx context.Context, recipient string, payload domain.OutboundPayload) (string, error)
	GetName() string
}

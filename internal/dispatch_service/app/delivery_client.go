package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/provider"
	"github.com/prometheus/client_golang/prometheus"
)

// MessageSender delivers a composed payload and returns the provider message id.
type MessageSender interface {
	Send(ctx context.Context, recipient string, payload domain.OutboundPayload, asset *domain.MediaAsset) (string, error)
	ProviderName() string
}

// DeliveryClient sends payloads through a provider in two strict phases: media upload,
// then message submission. Nothing is retried.
type DeliveryClient struct {
	provider provider.Provider
	logger   *slog.Logger
}

func NewDeliveryClient(p provider.Provider, logger *slog.Logger) *DeliveryClient {
	return &DeliveryClient{
		provider: p,
		logger:   logger.With("component", "delivery_client", "provider", p.GetName()),
	}
}

func (c *DeliveryClient) ProviderName() string {
	return c.provider.GetName()
}

func (c *DeliveryClient) Send(ctx context.Context, recipient string, payload domain.OutboundPayload, asset *domain.MediaAsset) (string, error) {
	if media, ok := payload.(domain.MediaPayload); ok {
		handle, err := c.upload(ctx, asset)
		if err != nil {
			// Submission is never attempted after a failed upload.
			return "", err
		}
		payload = media.WithHandle(handle)
	}
	return c.submit(ctx, recipient, payload)
}

func (c *DeliveryClient) upload(ctx context.Context, asset *domain.MediaAsset) (string, error) {
	if asset == nil || len(asset.Content) == 0 {
		return "", c.providerError(domain.PhaseUpload, errors.New("media payload without asset content"))
	}

	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(c.provider.GetName(), string(domain.PhaseUpload)))
	handle, err := c.provider.UploadMedia(ctx, asset.Name, asset.MimeType, asset.Content)
	timer.ObserveDuration()
	if err != nil {
		c.logger.WarnContext(ctx, "Media upload failed", "asset_id", asset.ID, "error", err)
		return "", c.wrap(domain.PhaseUpload, err)
	}
	if handle == "" {
		return "", c.providerError(domain.PhaseUpload, errors.New("provider returned an empty media handle"))
	}
	c.logger.DebugContext(ctx, "Media uploaded", "asset_id", asset.ID, "media_handle", handle)
	return handle, nil
}

func (c *DeliveryClient) submit(ctx context.Context, recipient string, payload domain.OutboundPayload) (string, error) {
	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(c.provider.GetName(), string(domain.PhaseSubmit)))
	providerMsgID, err := c.provider.SubmitMessage(ctx, recipient, payload)
	timer.ObserveDuration()
	if err != nil {
		c.logger.WarnContext(ctx, "Message submission failed", "kind", payload.Kind(), "error", err)
		return "", c.wrap(domain.PhaseSubmit, err)
	}
	if providerMsgID == "" {
		return "", c.providerError(domain.PhaseSubmit, errors.New("provider accepted the message without an id"))
	}
	return providerMsgID, nil
}

func (c *DeliveryClient) wrap(phase domain.ProviderPhase, err error) error {
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}
	return c.providerError(phase, err)
}

func (c *DeliveryClient) providerError(phase domain.ProviderPhase, err error) error {
	return &domain.ProviderError{Provider: c.provider.GetName(), Phase: phase, Err: err}
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AradIT/wadispatch/golang_services/internal/delivery_retrieval_service/domain"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/messagebroker"
)

// ReceiptHandler is satisfied by StatusReconciler.
type ReceiptHandler interface {
	OnReceipt(ctx context.Context, receipt domain.Receipt) string
}

// ReceiptConsumer feeds receipts published on dlr.raw.<provider> into a handler.
type ReceiptConsumer struct {
	natsClient messagebroker.NATSClient
	handler    ReceiptHandler
	logger     *slog.Logger
}

func NewReceiptConsumer(natsClient messagebroker.NATSClient, handler ReceiptHandler, logger *slog.Logger) *ReceiptConsumer {
	return &ReceiptConsumer{
		natsClient: natsClient,
		handler:    handler,
		logger:     logger.With("component", "receipt_consumer"),
	}
}

// StartConsuming subscribes to subject on queueGroup. The subscription lives until ctx is done.
func (c *ReceiptConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) (messagebroker.Subscription, error) {
	c.logger.InfoContext(ctx, "Starting NATS receipt subscription", "subject", subject, "queue_group", queueGroup)
	sub, err := c.natsClient.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg messagebroker.Message) {
		natsMessagesReceivedCounter.WithLabelValues(subject).Inc()
		c.HandleMessage(ctx, msg)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS receipt subscription failed", "error", err, "subject", subject)
		return nil, fmt.Errorf("subscribe to receipts: %w", err)
	}
	return sub, nil
}

// HandleMessage decodes one receipt message and hands it on. Malformed messages are dropped.
func (c *ReceiptConsumer) HandleMessage(ctx context.Context, msg messagebroker.Message) {
	providerName, err := ProviderFromSubject(msg.Subject)
	if err != nil {
		c.logger.ErrorContext(ctx, "Invalid receipt subject", "subject", msg.Subject, "error", err)
		return
	}

	var event domain.ReceiptEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to deserialize receipt event", "error", err, "subject", msg.Subject, "data_len", len(msg.Data))
		return
	}

	c.handler.OnReceipt(ctx, event.ToReceipt(providerName))
}

// ProviderFromSubject extracts the provider from dlr.raw.<provider>.
func ProviderFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "dlr" || parts[1] != "raw" {
		return "", fmt.Errorf("subject %q does not match dlr.raw.<provider>", subject)
	}
	name := parts[2]
	if name == "" || name == "*" || name == ">" {
		return "", fmt.Errorf("subject %q has no concrete provider", subject)
	}
	return name, nil
}

// ReceiptSubject is the subject receipts for providerName are published on.
func ReceiptSubject(providerName string) string {
	return "dlr.raw." + providerName
}

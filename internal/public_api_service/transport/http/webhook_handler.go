package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/delivery_retrieval_service/app"
	"github.com/AradIT/wadispatch/golang_services/internal/delivery_retrieval_service/domain"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/messagebroker"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
)

const (
	maxWebhookBodyBytes = 1 << 20
	signatureHeader     = "X-Hub-Signature-256"
)

// WebhookHandler accepts provider delivery reports and queues them on NATS.
type WebhookHandler struct {
	natsClient  messagebroker.NATSClient
	appSecret   string // Empty disables signature verification
	verifyToken string
	logger      *slog.Logger
}

func NewWebhookHandler(nc messagebroker.NATSClient, appSecret, verifyToken string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		natsClient:  nc,
		appSecret:   appSecret,
		verifyToken: verifyToken,
		logger:      logger.With("handler", "webhook"),
	}
}

// VerifySubscription answers the provider's subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) VerifySubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "provider_name", chi.URLParam(r, "provider_name"))

	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.verifyToken == "" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.verifyToken)) {
		logger.WarnContext(ctx, "Webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}

	logger.InfoContext(ctx, "Webhook subscription verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// HandleReceipts verifies and unpacks a status callback and publishes one ReceiptEvent per status.
func (h *WebhookHandler) HandleReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	providerName := chi.URLParam(r, "provider_name")
	if providerName == "" || strings.ContainsAny(providerName, ".*> ") {
		logger.WarnContext(ctx, "Invalid provider name in webhook URL", "provider_name", providerName)
		http.Error(w, "Provider name is required", http.StatusBadRequest)
		return
	}
	logger = logger.With("provider_name", providerName)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "Webhook body too large", "limit_bytes", tooLarge.Limit)
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !validSignature(h.appSecret, r.Header.Get(signatureHeader), body) {
		logger.WarnContext(ctx, "Webhook signature mismatch")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload WhatsAppWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.WarnContext(ctx, "Failed to decode webhook JSON", "error", err)
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	subject := app.ReceiptSubject(providerName)
	published := 0
	for _, event := range receiptEvents(payload) {
		data, err := json.Marshal(event)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to marshal receipt event", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if err := h.natsClient.Publish(ctx, subject, data); err != nil {
			// A non-2xx reply makes the provider redeliver the whole callback.
			logger.ErrorContext(ctx, "Failed to publish receipt to NATS", "error", err, "subject", subject, "provider_message_id", event.ProviderMessageID)
			http.Error(w, "Failed to queue receipt for processing", http.StatusInternalServerError)
			return
		}
		published++
	}

	logger.InfoContext(ctx, "Webhook processed", "receipts_published", published)
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "receipts": published})
}

func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func receiptEvents(payload WhatsAppWebhookPayload) []domain.ReceiptEvent {
	var events []domain.ReceiptEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				if st.ID == "" {
					continue
				}
				event := domain.ReceiptEvent{
					ProviderMessageID: st.ID,
					Status:            st.Status,
					Recipient:         st.RecipientID,
					Timestamp:         parseUnixTimestamp(st.Timestamp),
				}
				if len(st.Errors) > 0 {
					event.ErrorCode = strconv.Itoa(st.Errors[0].Code)
					event.ErrorDescription = st.Errors[0].Title
					if st.Errors[0].Message != "" {
						event.ErrorDescription = st.Errors[0].Message
					}
				}
				events = append(events, event)
			}
		}
	}
	return events
}

func parseUnixTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

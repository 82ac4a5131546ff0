package http

import (
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
)

// --- Request DTOs ---

// CreateScheduledMessageRequestDTO schedules a text or media message.
type CreateScheduledMessageRequestDTO struct {
	Recipient   string     `json:"recipient"`
	Text        string     `json:"text,omitempty"`
	MediaRef    *uuid.UUID `json:"media_ref,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
}

// --- Response DTOs ---

// ScheduledMessageDTO represents a scheduled entry in API responses.
type ScheduledMessageDTO struct {
	ID                string     `json:"id"`
	Recipient         string     `json:"recipient"`
	Text              string     `json:"text,omitempty"`
	MediaRef          string     `json:"media_ref,omitempty"`
	ScheduledAt       time.Time  `json:"scheduled_at"`
	Status            string     `json:"status"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	ReceiptStatus     string     `json:"receipt_status,omitempty"`
	ReceiptAt         *time.Time `json:"receipt_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListScheduledMessagesResponseDTO is the response for listing scheduled messages.
type ListScheduledMessagesResponseDTO struct {
	Messages []ScheduledMessageDTO `json:"messages"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// MediaAssetDTO is returned after a media upload.
type MediaAssetDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func toScheduledMessageDTO(e *domain.ScheduledEntry) ScheduledMessageDTO {
	dto := ScheduledMessageDTO{
		ID:                e.ID.String(),
		Recipient:         e.Recipient,
		Text:              e.Text,
		ScheduledAt:       e.ScheduledAt,
		Status:            string(e.Status),
		ProviderMessageID: e.ProviderMessageID.String,
		LastError:         e.LastError.String,
		ReceiptStatus:     e.ReceiptStatus.String,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.MediaRef.Valid {
		dto.MediaRef = e.MediaRef.UUID.String()
	}
	if e.ReceiptAt.Valid {
		at := e.ReceiptAt.Time
		dto.ReceiptAt = &at
	}
	return dto
}

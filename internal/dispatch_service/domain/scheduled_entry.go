package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the local submission outcome of a scheduled entry.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusSent    EntryStatus = "sent"   // Accepted by the provider
	StatusFailed  EntryStatus = "failed" // Rejected, unresolvable, or unreachable provider
)

// IsTerminal reports whether dispatch may no longer change the status.
func (s EntryStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// ScheduledEntry is one outbound send intent.
type ScheduledEntry struct {
	ID                uuid.UUID      `json:"id"`
	Recipient         string         `json:"recipient"`
	Text              string         `json:"text"`
	MediaRef          uuid.NullUUID  `json:"media_ref"`
	ScheduledAt       time.Time      `json:"scheduled_at"` // Always UTC
	Status            EntryStatus    `json:"status"`
	ProviderMessageID sql.NullString `json:"provider_message_id"` // Set only after the provider accepted the message
	LastError         sql.NullString `json:"last_error,omitempty"`
	ReceiptStatus     sql.NullString `json:"receipt_status,omitempty"` // Latest delivery receipt, informational
	ReceiptAt         sql.NullTime   `json:"receipt_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewScheduledEntry creates a pending entry. scheduledAt is converted to UTC here and
// nowhere else.
func NewScheduledEntry(recipient, text string, mediaRef uuid.NullUUID, scheduledAt time.Time) *ScheduledEntry {
	now := time.Now().UTC()
	return &ScheduledEntry{
		ID:          uuid.New(),
		Recipient:   recipient,
		Text:        text,
		MediaRef:    mediaRef,
		ScheduledAt: scheduledAt.UTC(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasMedia reports whether the entry references a media asset.
func (e *ScheduledEntry) HasMedia() bool {
	return e.MediaRef.Valid
}

package domain

import (
	"strings"
	"time"
)

// ReceiptStatus is a provider delivery report mapped onto the states the service understands.
type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "sent"
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptRead      ReceiptStatus = "read"
	ReceiptFailed    ReceiptStatus = "failed"
	ReceiptUnknown   ReceiptStatus = "unknown"
)

// ParseReceiptStatus maps a raw provider status string. Unrecognised values map to ReceiptUnknown.
func ParseReceiptStatus(raw string) ReceiptStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "accepted", "enroute":
		return ReceiptSent
	case "delivered":
		return ReceiptDelivered
	case "read", "seen":
		return ReceiptRead
	case "failed", "undelivered", "rejected", "expired", "deleted":
		return ReceiptFailed
	default:
		return ReceiptUnknown
	}
}

// Confirms reports whether the receipt confirms a successful submission.
func (s ReceiptStatus) Confirms() bool {
	return s == ReceiptDelivered || s == ReceiptRead
}

// IsFailure reports whether the receipt is failure-class.
func (s ReceiptStatus) IsFailure() bool {
	return s == ReceiptFailed
}

func (s ReceiptStatus) rank() int {
	switch s {
	case ReceiptSent:
		return 1
	case ReceiptFailed:
		return 2
	case ReceiptDelivered:
		return 3
	case ReceiptRead:
		return 4
	default:
		return 0
	}
}

// Supersedes reports whether s should replace the recorded receipt status current.
// Late or duplicate receipts never move the recorded status backwards.
func (s ReceiptStatus) Supersedes(current string) bool {
	if s == ReceiptUnknown {
		return false
	}
	if current == "" {
		return true
	}
	return s.rank() > ReceiptStatus(current).rank()
}

// Receipt is a delivery report correlated by provider message id only.
type Receipt struct {
	ProviderName      string
	ProviderMessageID string
	Status            ReceiptStatus
	RawStatus         string
	ErrorCode         string
	ErrorDescription  string
	Timestamp         time.Time
}

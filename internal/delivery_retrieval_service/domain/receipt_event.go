package domain

import (
	"time"
)

// ReceiptEvent is the JSON body published on dlr.raw.<provider> by the webhook handler.
type ReceiptEvent struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Status            string    `json:"status"` // Provider's raw status string
	Recipient         string    `json:"recipient,omitempty"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorDescription  string    `json:"error_description,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// ToReceipt maps the wire event for the given provider.
func (e ReceiptEvent) ToReceipt(providerName string) Receipt {
	return Receipt{
		ProviderName:      providerName,
		ProviderMessageID: e.ProviderMessageID,
		Status:            ParseReceiptStatus(e.Status),
		RawStatus:         e.Status,
		ErrorCode:         e.ErrorCode,
		ErrorDescription:  e.ErrorDescription,
		Timestamp:         e.Timestamp,
	}
}

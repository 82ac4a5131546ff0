package http

// WhatsAppWebhookPayload is the envelope the WhatsApp Cloud API posts to the webhook.
type WhatsAppWebhookPayload struct {
	Object string                 `json:"object"`
	Entry  []WhatsAppWebhookEntry `json:"entry"`
}

type WhatsAppWebhookEntry struct {
	ID      string                  `json:"id"`
	Changes []WhatsAppWebhookChange `json:"changes"`
}

type WhatsAppWebhookChange struct {
	Field string               `json:"field"`
	Value WhatsAppWebhookValue `json:"value"`
}

type WhatsAppWebhookValue struct {
	MessagingProduct string                  `json:"messaging_product"`
	Statuses         []WhatsAppWebhookStatus `json:"statuses"`
}

// WhatsAppWebhookStatus is one delivery status update. Timestamp is unix seconds as a string.
type WhatsAppWebhookStatus struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Timestamp   string                 `json:"timestamp"`
	RecipientID string                 `json:"recipient_id"`
	Errors      []WhatsAppWebhookError `json:"errors,omitempty"`
}

type WhatsAppWebhookError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

package app

import (
	"strings"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
)

// Compose builds the outbound payload for an entry. It performs no I/O: asset must
// already be resolved when the entry carries a media reference. The returned
// MediaPayload has an empty handle, which the delivery client fills after upload.
func Compose(entry *domain.ScheduledEntry, asset *domain.MediaAsset) (domain.OutboundPayload, error) {
	if !entry.HasMedia() {
		if strings.TrimSpace(entry.Text) == "" {
			return nil, &domain.ValidationError{Field: "text", Reason: "text is required when no media is attached"}
		}
		return domain.TextPayload{Body: entry.Text}, nil
	}

	if asset == nil {
		return nil, &domain.ResolutionError{MediaRef: entry.MediaRef.UUID.String(), Err: domain.ErrNotFound}
	}
	category, err := domain.ClassifyMimeType(asset.MimeType)
	if err != nil {
		return nil, &domain.ValidationError{Field: "mime_type", Reason: err.Error(), Err: err}
	}
	return domain.MediaPayload{Category: category, Caption: entry.Text}, nil
}

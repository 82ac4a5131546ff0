package domain

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaCategory is the provider-facing kind of an attachment.
type MediaCategory string

const (
	MediaImage    MediaCategory = "image"
	MediaVideo    MediaCategory = "video"
	MediaAudio    MediaCategory = "audio"
	MediaDocument MediaCategory = "document"
)

// allowedMimeTypes is the fixed allow-list. Anything absent is rejected.
var allowedMimeTypes = map[string]MediaCategory{
	"image/jpeg": MediaImage,
	"image/png":  MediaImage,
	"image/webp": MediaImage,

	"video/mp4":  MediaVideo,
	"video/3gpp": MediaVideo,

	"audio/aac":  MediaAudio,
	"audio/mp4":  MediaAudio,
	"audio/mpeg": MediaAudio,
	"audio/amr":  MediaAudio,
	"audio/ogg":  MediaAudio,
	"audio/opus": MediaAudio,

	"application/pdf":               MediaDocument,
	"application/msword":            MediaDocument,
	"application/vnd.ms-powerpoint": MediaDocument,
	"application/vnd.ms-excel":      MediaDocument,
	"text/plain":                    MediaDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   MediaDocument,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": MediaDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         MediaDocument,
}

// ClassifyMimeType maps an allow-listed MIME type to its category. Parameters
// ("; codecs=opus") are ignored and matching is case-insensitive.
func ClassifyMimeType(mimeType string) (MediaCategory, error) {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if mediaType, _, err := mime.ParseMediaType(base); err == nil {
		base = mediaType
	}
	category, ok := allowedMimeTypes[base]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mimeType)
	}
	return category, nil
}

// IsAllowedMimeType is ClassifyMimeType without the category.
func IsAllowedMimeType(mimeType string) bool {
	_, err := ClassifyMimeType(mimeType)
	return err == nil
}

// MediaAsset is a reusable attachment.
type MediaAsset struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	MimeType string    `json:"mime_type"`
	Content  []byte    `json:"-"`
	// StorageKey is set when Content lives in the blob store instead of the row.
	StorageKey string    `json:"storage_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
)

// MaxMediaBytes is the largest attachment accepted for upload.
const MaxMediaBytes = 16 << 20

// MediaService registers reusable attachments.
type MediaService struct {
	media  domain.MediaAssetRepository
	logger *slog.Logger
}

func NewMediaService(media domain.MediaAssetRepository, logger *slog.Logger) *MediaService {
	return &MediaService{media: media, logger: logger.With("component", "media_service")}
}

// RegisterAsset validates and stores an attachment.
func (s *MediaService) RegisterAsset(ctx context.Context, name, mimeType string, content []byte) (*domain.MediaAsset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "name is required"}
	}
	if len(content) == 0 {
		return nil, &domain.ValidationError{Field: "content", Reason: "content is empty"}
	}
	if len(content) > MaxMediaBytes {
		return nil, &domain.ValidationError{Field: "content", Reason: fmt.Sprintf("content exceeds %d bytes", MaxMediaBytes)}
	}
	if _, err := domain.ClassifyMimeType(mimeType); err != nil {
		return nil, &domain.ValidationError{Field: "mime_type", Reason: err.Error(), Err: err}
	}

	asset := &domain.MediaAsset{
		ID:        uuid.New(),
		Name:      name,
		MimeType:  mimeType,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.media.Create(ctx, asset); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store media asset", "name", name, "error", err)
		return nil, fmt.Errorf("failed to store media asset: %w", err)
	}
	s.logger.InfoContext(ctx, "Media asset registered", "asset_id", asset.ID, "mime_type", mimeType, "size_bytes", len(content))
	return asset, nil
}

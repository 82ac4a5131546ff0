package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BlobStore holds media content outside the database.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type PgMediaAssetRepository struct {
	db     DBTX
	blobs  BlobStore // nil keeps content in the row
	logger *slog.Logger
}

func NewPgMediaAssetRepository(db DBTX, blobs BlobStore, logger *slog.Logger) *PgMediaAssetRepository {
	return &PgMediaAssetRepository{db: db, blobs: blobs, logger: logger.With("component", "media_repository_pg")}
}

func (r *PgMediaAssetRepository) Create(ctx context.Context, asset *domain.MediaAsset) error {
	content := asset.Content
	storageKey := sql.NullString{}
	if r.blobs != nil {
		key := asset.ID.String()
		if err := r.blobs.Put(ctx, key, asset.MimeType, asset.Content); err != nil {
			r.logger.ErrorContext(ctx, "Error storing media content", "error", err, "asset_id", asset.ID)
			return fmt.Errorf("store media content: %w", err)
		}
		asset.StorageKey = key
		storageKey = sql.NullString{String: key, Valid: true}
		content = nil
	}

	query := `
		INSERT INTO media_assets (id, name, mime_type, content, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query, asset.ID, asset.Name, asset.MimeType, content, storageKey, asset.CreatedAt); err != nil {
		r.logger.ErrorContext(ctx, "Error creating media asset", "error", err, "asset_id", asset.ID)
		return fmt.Errorf("insert media asset: %w", err)
	}
	return nil
}

func (r *PgMediaAssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaAsset, error) {
	query := `SELECT id, name, mime_type, content, storage_key, created_at FROM media_assets WHERE id = $1`
	asset := &domain.MediaAsset{}
	var storageKey sql.NullString
	err := r.db.QueryRow(ctx, query, id).Scan(&asset.ID, &asset.Name, &asset.MimeType, &asset.Content, &storageKey, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting media asset", "error", err, "asset_id", id)
		return nil, fmt.Errorf("get media asset: %w", err)
	}

	if storageKey.Valid && len(asset.Content) == 0 {
		if r.blobs == nil {
			return nil, fmt.Errorf("media asset %s is stored externally but no blob store is configured", id)
		}
		content, err := r.blobs.Get(ctx, storageKey.String)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error loading media content", "error", err, "asset_id", id, "storage_key", storageKey.String)
			return nil, fmt.Errorf("load media content: %w", err)
		}
		asset.Content = content
		asset.StorageKey = storageKey.String
	}
	return asset, nil
}

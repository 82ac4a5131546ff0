package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EntryRepository persists scheduled entries.
type EntryRepository interface {
	Create(ctx context.Context, entry *ScheduledEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledEntry, error)
	// GetByProviderMessageID is the only lookup receipts may use.
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*ScheduledEntry, error)
	// ListDue returns pending entries with scheduled_at <= dueBefore, oldest first.
	ListDue(ctx context.Context, dueBefore time.Time, limit int) ([]*ScheduledEntry, error)
	List(ctx context.Context, status EntryStatus, limit, offset int) ([]*ScheduledEntry, error)
	// UpdateStatus moves an entry from `from` to `to`. It returns ErrStatusConflict if the
	// entry is no longer in `from`, which makes the terminal write single-shot.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to EntryStatus, providerMessageID, lastError sql.NullString) error
	// RecordReceipt stores the latest receipt status without touching Status.
	RecordReceipt(ctx context.Context, id uuid.UUID, receiptStatus string, at time.Time) error
}

// MediaAssetRepository stores media assets. GetByID returns the asset with its content loaded.
type MediaAssetRepository interface {
	Create(ctx context.Context, asset *MediaAsset) error
	GetByID(ctx context.Context, id uuid.UUID) (*MediaAsset, error)
}

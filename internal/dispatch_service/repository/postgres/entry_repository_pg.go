package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `id, recipient, text, media_ref, scheduled_at, status, provider_message_id, last_error, receipt_status, receipt_at, created_at, updated_at`

type PgEntryRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgEntryRepository(db DBTX, logger *slog.Logger) *PgEntryRepository {
	return &PgEntryRepository{db: db, logger: logger.With("component", "entry_repository_pg")}
}

func (r *PgEntryRepository) Create(ctx context.Context, entry *domain.ScheduledEntry) error {
	query := `
		INSERT INTO scheduled_entries (id, recipient, text, media_ref, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.Recipient, entry.Text, entry.MediaRef, entry.ScheduledAt, entry.Status,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating scheduled entry", "error", err, "entry_id", entry.ID)
		return fmt.Errorf("insert scheduled entry: %w", err)
	}
	return nil
}

func (r *PgEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM scheduled_entries WHERE id = $1`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting scheduled entry by ID", "error", err, "entry_id", id)
		return nil, fmt.Errorf("get scheduled entry: %w", err)
	}
	return entry, nil
}

func (r *PgEntryRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.ScheduledEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM scheduled_entries WHERE provider_message_id = $1`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting scheduled entry by provider message ID", "error", err, "provider_message_id", providerMessageID)
		return nil, fmt.Errorf("get scheduled entry by provider message id: %w", err)
	}
	return entry, nil
}

func (r *PgEntryRepository) ListDue(ctx context.Context, dueBefore time.Time, limit int) ([]*domain.ScheduledEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM scheduled_entries
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3`
	rows, err := r.db.Query(ctx, query, domain.StatusPending, dueBefore, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing due entries", "error", err)
		return nil, fmt.Errorf("list due entries: %w", err)
	}
	return r.collect(ctx, rows)
}

// List returns entries newest first. An empty status matches every status.
func (r *PgEntryRepository) List(ctx context.Context, status domain.EntryStatus, limit, offset int) ([]*domain.ScheduledEntry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		query := `SELECT ` + entryColumns + ` FROM scheduled_entries ORDER BY scheduled_at DESC LIMIT $1 OFFSET $2`
		rows, err = r.db.Query(ctx, query, limit, offset)
	} else {
		query := `SELECT ` + entryColumns + ` FROM scheduled_entries WHERE status = $1 ORDER BY scheduled_at DESC LIMIT $2 OFFSET $3`
		rows, err = r.db.Query(ctx, query, status, limit, offset)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing entries", "error", err, "status", status)
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return r.collect(ctx, rows)
}

// UpdateStatus is conditional on the current status, so at most one writer moves an
// entry out of pending.
func (r *PgEntryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.EntryStatus, providerMessageID, lastError sql.NullString) error {
	query := `
		UPDATE scheduled_entries
		SET status = $1, provider_message_id = COALESCE($2, provider_message_id), last_error = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, to, providerMessageID, lastError, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating entry status", "error", err, "entry_id", id, "new_status", to)
		return fmt.Errorf("update entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	r.logger.InfoContext(ctx, "Entry status updated", "entry_id", id, "from_status", from, "new_status", to)
	return nil
}

func (r *PgEntryRepository) RecordReceipt(ctx context.Context, id uuid.UUID, receiptStatus string, at time.Time) error {
	query := `UPDATE scheduled_entries SET receipt_status = $1, receipt_at = $2, updated_at = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, receiptStatus, at, time.Now().UTC(), id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error recording receipt", "error", err, "entry_id", id)
		return fmt.Errorf("record receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// missOrConflict tells an absent row apart from one that left the expected status.
func (r *PgEntryRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_entries WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check entry existence: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrStatusConflict
}

func (r *PgEntryRepository) collect(ctx context.Context, rows pgx.Rows) ([]*domain.ScheduledEntry, error) {
	defer rows.Close()
	var entries []*domain.ScheduledEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning entry row", "error", err)
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating entry rows", "error", err)
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*domain.ScheduledEntry, error) {
	e := &domain.ScheduledEntry{}
	var status string
	err := row.Scan(
		&e.ID, &e.Recipient, &e.Text, &e.MediaRef, &e.ScheduledAt, &status,
		&e.ProviderMessageID, &e.LastError, &e.ReceiptStatus, &e.ReceiptAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EntryStatus(status)
	e.ScheduledAt = e.ScheduledAt.UTC()
	return e, nil
}

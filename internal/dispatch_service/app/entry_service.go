package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EntryScheduler is the part of the Scheduler the entry service hands new entries to.
type EntryScheduler interface {
	OnCreate(ctx context.Context, entry *domain.ScheduledEntry)
}

// CreateEntryRequest is the input for scheduling a message.
type CreateEntryRequest struct {
	Recipient   string     `json:"recipient" validate:"required,min=5,max=32"`
	Text        string     `json:"text" validate:"max=4096"`
	MediaRef    *uuid.UUID `json:"media_ref,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at" validate:"required"`
}

// EntryService is the creation and query path for scheduled entries.
type EntryService struct {
	entries   domain.EntryRepository
	media     domain.MediaAssetRepository
	scheduler EntryScheduler
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewEntryService(entries domain.EntryRepository, media domain.MediaAssetRepository, scheduler EntryScheduler, logger *slog.Logger) *EntryService {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &EntryService{
		entries:   entries,
		media:     media,
		scheduler: scheduler,
		validate:  validate,
		logger:    logger.With("component", "entry_service"),
	}
}

// CreateEntry validates and persists a pending entry, then schedules it.
func (s *EntryService) CreateEntry(ctx context.Context, req CreateEntryRequest) (*domain.ScheduledEntry, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		entriesCreatedCounter.WithLabelValues("rejected").Inc()
		return nil, toValidationError(err)
	}

	mediaRef := uuid.NullUUID{}
	if req.MediaRef != nil {
		if err := s.checkMedia(ctx, *req.MediaRef); err != nil {
			entriesCreatedCounter.WithLabelValues("rejected").Inc()
			return nil, err
		}
		mediaRef = uuid.NullUUID{UUID: *req.MediaRef, Valid: true}
	} else if strings.TrimSpace(req.Text) == "" {
		entriesCreatedCounter.WithLabelValues("rejected").Inc()
		return nil, &domain.ValidationError{Field: "text", Reason: "text is required when no media is attached"}
	}

	entry := domain.NewScheduledEntry(req.Recipient, req.Text, mediaRef, req.ScheduledAt)
	if err := s.entries.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist scheduled entry", "error", err)
		entriesCreatedCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to persist scheduled entry: %w", err)
	}
	entriesCreatedCounter.WithLabelValues("created").Inc()
	s.logger.InfoContext(ctx, "Scheduled entry created", "entry_id", entry.ID, "scheduled_at", entry.ScheduledAt, "has_media", entry.HasMedia())

	s.scheduler.OnCreate(ctx, entry)
	return entry, nil
}

func (s *EntryService) checkMedia(ctx context.Context, ref uuid.UUID) error {
	asset, err := s.media.GetByID(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ValidationError{Field: "media_ref", Reason: "media asset does not exist", Err: err}
		}
		return fmt.Errorf("failed to load media asset %s: %w", ref, err)
	}
	if _, err := domain.ClassifyMimeType(asset.MimeType); err != nil {
		return &domain.ValidationError{Field: "media_ref", Reason: err.Error(), Err: err}
	}
	return nil
}

// GetEntry returns a single entry.
func (s *EntryService) GetEntry(ctx context.Context, id uuid.UUID) (*domain.ScheduledEntry, error) {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return entry, nil
}

// ListEntries returns entries filtered by status. Persistence failures degrade to
// an empty list so that read paths stay available.
func (s *EntryService) ListEntries(ctx context.Context, status domain.EntryStatus, limit, offset int) []*domain.ScheduledEntry {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.entries.List(ctx, status, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list entries, returning empty result", "status", status, "error", err)
		return []*domain.ScheduledEntry{}
	}
	return entries
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &domain.ValidationError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Err:    err,
		}
	}
	return &domain.ValidationError{Reason: err.Error(), Err: err}
}

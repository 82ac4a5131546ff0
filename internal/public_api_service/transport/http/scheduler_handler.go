package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	dispatchapp "github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/app"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// EntryService is the scheduled-entry API the handler serves.
type EntryService interface {
	CreateEntry(ctx context.Context, req dispatchapp.CreateEntryRequest) (*domain.ScheduledEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*domain.ScheduledEntry, error)
	ListEntries(ctx context.Context, status domain.EntryStatus, limit, offset int) []*domain.ScheduledEntry
}

// MediaService registers attachments.
type MediaService interface {
	RegisterAsset(ctx context.Context, name, mimeType string, content []byte) (*domain.MediaAsset, error)
}

type SchedulerHandler struct {
	entries EntryService
	media   MediaService
	logger  *slog.Logger
}

func NewSchedulerHandler(entries EntryService, media MediaService, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		entries: entries,
		media:   media,
		logger:  logger.With("handler", "scheduler"),
	}
}

func (h *SchedulerHandler) CreateScheduledMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO CreateScheduledMessageRequestDTO
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&reqDTO); err != nil {
		logger.WarnContext(ctx, "Failed to decode request body for CreateScheduledMessage", "error", err)
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid request body"})
		return
	}

	entry, err := h.entries.CreateEntry(ctx, dispatchapp.CreateEntryRequest{
		Recipient:   reqDTO.Recipient,
		Text:        reqDTO.Text,
		MediaRef:    reqDTO.MediaRef,
		ScheduledAt: reqDTO.ScheduledAt,
	})
	if err != nil {
		h.writeServiceError(ctx, w, logger, err, "CreateScheduledMessage")
		return
	}
	respondJSON(w, http.StatusCreated, toScheduledMessageDTO(entry))
}

func (h *SchedulerHandler) GetScheduledMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid id", Field: "id"})
		return
	}
	entry, err := h.entries.GetEntry(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, logger, err, "GetScheduledMessage")
		return
	}
	respondJSON(w, http.StatusOK, toScheduledMessageDTO(entry))
}

func (h *SchedulerHandler) ListScheduledMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	status := domain.EntryStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid status", Field: "status"})
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid limit", Field: "limit"})
		return
	}
	offset, err := optionalInt(q.Get("offset"))
	if err != nil {
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid offset", Field: "offset"})
		return
	}

	entries := h.entries.ListEntries(ctx, status, limit, offset)
	resp := ListScheduledMessagesResponseDTO{Messages: make([]ScheduledMessageDTO, 0, len(entries)), Limit: limit, Offset: offset}
	for _, e := range entries {
		resp.Messages = append(resp.Messages, toScheduledMessageDTO(e))
	}
	respondJSON(w, http.StatusOK, resp)
}

// UploadMedia accepts multipart/form-data with a "file" part.
func (h *SchedulerHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, dispatchapp.MaxMediaBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, GenericErrorResponse{Error: "Upload too large"})
			return
		}
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Invalid multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Missing file part", Field: "file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read uploaded file", "error", err)
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Failed to read file"})
		return
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	asset, err := h.media.RegisterAsset(ctx, name, mimeType, content)
	if err != nil {
		h.writeServiceError(ctx, w, logger, err, "UploadMedia")
		return
	}
	respondJSON(w, http.StatusCreated, MediaAssetDTO{
		ID:        asset.ID.String(),
		Name:      asset.Name,
		MimeType:  asset.MimeType,
		SizeBytes: len(content),
		CreatedAt: asset.CreatedAt,
	})
}

func (h *SchedulerHandler) writeServiceError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error, operation string) {
	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &valErr):
		logger.WarnContext(ctx, "Request rejected", "operation", operation, "field", valErr.Field, "reason", valErr.Reason)
		respondError(w, http.StatusBadRequest, GenericErrorResponse{Error: "Validation failed", Field: valErr.Field, Details: valErr.Reason})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, GenericErrorResponse{Error: "Resource not found"})
	default:
		logger.ErrorContext(ctx, "Request failed", "operation", operation, "error", err)
		respondError(w, http.StatusInternalServerError, GenericErrorResponse{Error: "Internal server error"})
	}
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	dispatchapp "github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/app"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEntryService struct {
	mock.Mock
}

func (m *MockEntryService) CreateEntry(ctx context.Context, req dispatchapp.CreateEntryRequest) (*domain.ScheduledEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryService) GetEntry(ctx context.Context, id uuid.UUID) (*domain.ScheduledEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryService) ListEntries(ctx context.Context, status domain.EntryStatus, limit, offset int) []*domain.ScheduledEntry {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]*domain.ScheduledEntry)
}

type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) RegisterAsset(ctx context.Context, name, mimeType string, content []byte) (*domain.MediaAsset, error) {
	args := m.Called(ctx, name, mimeType, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaAsset), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSchedulerRouter(entries *MockEntryService, media *MockMediaService) chi.Router {
	h := NewSchedulerHandler(entries, media, testLogger())
	r := chi.NewRouter()
	r.Post("/v1/scheduled-messages", h.CreateScheduledMessage)
	r.Get("/v1/scheduled-messages", h.ListScheduledMessages)
	r.Get("/v1/scheduled-messages/{id}", h.GetScheduledMessage)
	r.Post("/v1/media", h.UploadMedia)
	return r
}

func TestSchedulerHandler_CreateScheduledMessage(t *testing.T) {
	scheduledAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entry := domain.NewScheduledEntry("+15550001111", "hello", uuid.NullUUID{}, scheduledAt)

	t.Run("created", func(t *testing.T) {
		entries := new(MockEntryService)
		entries.On("CreateEntry", mock.Anything, dispatchapp.CreateEntryRequest{
			Recipient:   "+15550001111",
			Text:        "hello",
			ScheduledAt: scheduledAt,
		}).Return(entry, nil).Once()

		body, _ := json.Marshal(CreateScheduledMessageRequestDTO{Recipient: "+15550001111", Text: "hello", ScheduledAt: scheduledAt})
		rr := httptest.NewRecorder()
		newTestSchedulerRouter(entries, new(MockMediaService)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/scheduled-messages", bytes.NewReader(body)))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp ScheduledMessageDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, entry.ID.String(), resp.ID)
		assert.Equal(t, "pending", resp.Status)
		assert.Empty(t, resp.MediaRef)
		entries.AssertExpectations(t)
	})

	t.Run("validation error maps to 400 with field", func(t *testing.T) {
		entries := new(MockEntryService)
		entries.On("CreateEntry", mock.Anything, mock.Anything).
			Return(nil, &domain.ValidationError{Field: "recipient", Reason: "failed on the 'required' rule"}).Once()

		rr := httptest.NewRecorder()
		newTestSchedulerRouter(entries, new(MockMediaService)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/scheduled-messages", bytes.NewBufferString(`{"text":"hi"}`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var resp GenericErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "recipient", resp.Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		entries := new(MockEntryService)
		rr := httptest.NewRecorder()
		newTestSchedulerRouter(entries, new(MockMediaService)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/scheduled-messages", bytes.NewBufferString(`{`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		entries.AssertNotCalled(t, "CreateEntry", mock.Anything, mock.Anything)
	})

	t.Run("persistence failure maps to 500", func(t *testing.T) {
		entries := new(MockEntryService)
		entries.On("CreateEntry", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

		rr := httptest.NewRecorder()
		newTestSchedulerRouter(entries, new(MockMediaService)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/scheduled-messages", bytes.NewBufferString(`{"recipient":"+15550001111","text":"x","scheduled_at":"2026-03-01T09:00:00Z"}`)))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "db down")
	})
}

func TestSchedulerHandler_GetScheduledMessage(t *testing.T) {
	mediaID := uuid.New()
	entry := domain.NewScheduledEntry("+15550001111", "", uuid.NullUUID{UUID: mediaID, Valid: true}, time.Now())
	entry.ReceiptStatus.String, entry.ReceiptStatus.Valid = "delivered", true
	entry.ReceiptAt.Time, entry.ReceiptAt.Valid = time.Now().UTC(), true

	entries := new(MockEntryService)
	entries.On("GetEntry", mock.Anything, entry.ID).Return(entry, nil).Once()
	missing := uuid.New()
	entries.On("GetEntry", mock.Anything, missing).Return(nil, domain.ErrNotFound).Once()
	router := newTestSchedulerRouter(entries, new(MockMediaService))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages/"+entry.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp ScheduledMessageDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, mediaID.String(), resp.MediaRef)
	assert.Equal(t, "delivered", resp.ReceiptStatus)
	assert.NotNil(t, resp.ReceiptAt)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	entries.AssertExpectations(t)
}

func TestSchedulerHandler_ListScheduledMessages(t *testing.T) {
	entries := new(MockEntryService)
	pending := domain.NewScheduledEntry("+15550001111", "a", uuid.NullUUID{}, time.Now())
	entries.On("ListEntries", mock.Anything, domain.StatusPending, 10, 5).Return([]*domain.ScheduledEntry{pending}).Once()
	entries.On("ListEntries", mock.Anything, domain.EntryStatus(""), 0, 0).Return([]*domain.ScheduledEntry{}).Once()
	router := newTestSchedulerRouter(entries, new(MockMediaService))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages?status=pending&limit=10&offset=5", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp ListScheduledMessagesResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, pending.ID.String(), resp.Messages[0].ID)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"messages":[]`)

	for _, q := range []string{"status=queued", "limit=-1", "offset=abc"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scheduled-messages?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
	entries.AssertExpectations(t)
}

func TestSchedulerHandler_UploadMedia(t *testing.T) {
	content := []byte("\x89PNG fake image")

	buildBody := func(t *testing.T) (*bytes.Buffer, string) {
		t.Helper()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="promo.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		return &buf, mw.FormDataContentType()
	}

	t.Run("registers asset", func(t *testing.T) {
		media := new(MockMediaService)
		asset := &domain.MediaAsset{ID: uuid.New(), Name: "promo.png", MimeType: "image/png", CreatedAt: time.Now().UTC()}
		media.On("RegisterAsset", mock.Anything, "promo.png", "image/png", content).Return(asset, nil).Once()

		body, ct := buildBody(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/media", body)
		req.Header.Set("Content-Type", ct)
		rr := httptest.NewRecorder()
		newTestSchedulerRouter(new(MockEntryService), media).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp MediaAssetDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, asset.ID.String(), resp.ID)
		assert.Equal(t, len(content), resp.SizeBytes)
		media.AssertExpectations(t)
	})

	t.Run("unsupported type", func(t *testing.T) {
		media := new(MockMediaService)
		media.On("RegisterAsset", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &domain.ValidationError{Field: "mime_type", Reason: "unsupported", Err: domain.ErrUnsupportedMediaType}).Once()

		body, ct := buildBody(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/media", body)
		req.Header.Set("Content-Type", ct)
		rr := httptest.NewRecorder()
		newTestSchedulerRouter(new(MockEntryService), media).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing file part", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("name", "x"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/v1/media", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		newTestSchedulerRouter(new(MockEntryService), new(MockMediaService)).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) Create(ctx context.Context, entry *domain.ScheduledEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.ScheduledEntry, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryRepository) ListDue(ctx context.Context, dueBefore time.Time, limit int) ([]*domain.ScheduledEntry, error) {
	args := m.Called(ctx, dueBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryRepository) List(ctx context.Context, status domain.EntryStatus, limit, offset int) ([]*domain.ScheduledEntry, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledEntry), args.Error(1)
}

func (m *MockEntryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.EntryStatus, providerMessageID, lastError sql.NullString) error {
	args := m.Called(ctx, id, from, to, providerMessageID, lastError)
	return args.Error(0)
}

func (m *MockEntryRepository) RecordReceipt(ctx context.Context, id uuid.UUID, receiptStatus string, at time.Time) error {
	args := m.Called(ctx, id, receiptStatus, at)
	return args.Error(0)
}

type MockMediaAssetRepository struct {
	mock.Mock
}

func (m *MockMediaAssetRepository) Create(ctx context.Context, asset *domain.MediaAsset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockMediaAssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaAsset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaAsset), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) UploadMedia(ctx context.Context, name, mimeType string, content []byte) (string, error) {
	args := m.Called(ctx, name, mimeType, content)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) SubmitMessage(ctx context.Context, recipient string, payload domain.OutboundPayload) (string, error) {
	args := m.Called(ctx, recipient, payload)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GetName() string {
	return "mock"
}

type MockDispatchLocker struct {
	mock.Mock
}

func (m *MockDispatchLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(func(context.Context) error)
	return unlock, args.Bool(1), args.Error(2)
}

type MockEntryScheduler struct {
	mock.Mock
}

func (m *MockEntryScheduler) OnCreate(ctx context.Context, entry *domain.ScheduledEntry) {
	m.Called(ctx, entry)
}

// --- Fakes ---

// memoryEntryRepository is an EntryRepository with the same conditional-update
// semantics as the Postgres one.
type memoryEntryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]domain.ScheduledEntry
	writes  int
}

func newMemoryEntryRepository(entries ...*domain.ScheduledEntry) *memoryEntryRepository {
	r := &memoryEntryRepository{entries: make(map[uuid.UUID]domain.ScheduledEntry)}
	for _, e := range entries {
		r.entries[e.ID] = *e
	}
	return r
}

func (r *memoryEntryRepository) Create(_ context.Context, entry *domain.ScheduledEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = *entry
	return nil
}

func (r *memoryEntryRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.ScheduledEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *memoryEntryRepository) GetByProviderMessageID(_ context.Context, providerMessageID string) (*domain.ScheduledEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ProviderMessageID.Valid && e.ProviderMessageID.String == providerMessageID {
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryEntryRepository) ListDue(_ context.Context, dueBefore time.Time, limit int) ([]*domain.ScheduledEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.ScheduledEntry
	for _, e := range r.entries {
		if e.Status == domain.StatusPending && !e.ScheduledAt.After(dueBefore) {
			e := e
			due = append(due, &e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memoryEntryRepository) List(_ context.Context, status domain.EntryStatus, limit, offset int) ([]*domain.ScheduledEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScheduledEntry
	for _, e := range r.entries {
		if status == "" || e.Status == status {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memoryEntryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.EntryStatus, providerMessageID, lastError sql.NullString) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status != from {
		return domain.ErrStatusConflict
	}
	e.Status = to
	e.ProviderMessageID = providerMessageID
	e.LastError = lastError
	e.UpdatedAt = time.Now().UTC()
	r.entries[id] = e
	r.writes++
	return nil
}

func (r *memoryEntryRepository) RecordReceipt(_ context.Context, id uuid.UUID, receiptStatus string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.ReceiptStatus = sql.NullString{String: receiptStatus, Valid: true}
	e.ReceiptAt = sql.NullTime{Time: at, Valid: true}
	r.entries[id] = e
	return nil
}

func (r *memoryEntryRepository) get(id uuid.UUID) domain.ScheduledEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

func (r *memoryEntryRepository) statusWrites() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type memoryMediaRepository map[uuid.UUID]*domain.MediaAsset

func (r memoryMediaRepository) Create(_ context.Context, asset *domain.MediaAsset) error {
	r[asset.ID] = asset
	return nil
}

func (r memoryMediaRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.MediaAsset, error) {
	a, ok := r[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

// countingProvider records provider calls and holds each submit for delay.
type countingProvider struct {
	uploads  atomic.Int32
	submits  atomic.Int32
	delay    time.Duration
	mu       sync.Mutex
	payloads []domain.OutboundPayload
}

func (p *countingProvider) UploadMedia(_ context.Context, _, _ string, _ []byte) (string, error) {
	p.uploads.Add(1)
	return "media-handle-1", nil
}

func (p *countingProvider) SubmitMessage(ctx context.Context, _ string, payload domain.OutboundPayload) (string, error) {
	n := p.submits.Add(1)
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("wamid.test-%d", n), nil
}

func (p *countingProvider) GetName() string { return "counting" }

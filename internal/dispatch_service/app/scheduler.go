package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
)

// SchedulerConfig holds configuration specific to the Scheduler.
type SchedulerConfig struct {
	RecoveryHorizon time.Duration `mapstructure:"SCHEDULER_RECOVERY_HORIZON"`
	SweepInterval   time.Duration `mapstructure:"SCHEDULER_SWEEP_INTERVAL"`
	SweepBatchSize  int           `mapstructure:"SCHEDULER_SWEEP_BATCH_SIZE"`
	DispatchTimeout time.Duration `mapstructure:"SCHEDULER_DISPATCH_TIMEOUT"`
	LockTTL         time.Duration `mapstructure:"SCHEDULER_LOCK_TTL"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RecoveryHorizon: time.Minute,
		SweepInterval:   30 * time.Second,
		SweepBatchSize:  100,
		DispatchTimeout: 30 * time.Second,
		LockTTL:         2 * time.Minute,
	}
}

// DispatchLocker grants a cross-process mutual-exclusion token for one entry.
// acquired is false when another holder owns the key.
type DispatchLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// statusWriteTimeout bounds the terminal status write, which runs detached from the dispatch deadline.
const statusWriteTimeout = 5 * time.Second

// SweepResult summarises one due-set sweep. Dispatched counts entries that reached
// a terminal status; Skipped counts due entries left alone (in flight, locked,
// no longer pending, or interrupted).
type SweepResult struct {
	Found      int
	Dispatched int
	Skipped    int
	Armed      int
}

const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeAborted = "aborted"
)

// Scheduler owns the in-process timers for pending entries and the single dispatch
// routine that both timers and sweeps go through.
type Scheduler struct {
	entries domain.EntryRepository
	media   domain.MediaAssetRepository
	sender  MessageSender
	locker  DispatchLocker // nil in single-instance deployments
	logger  *slog.Logger
	config  SchedulerConfig
	now     func() time.Time

	mu       sync.Mutex
	timers   map[uuid.UUID]*time.Timer
	inFlight map[uuid.UUID]struct{}
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. locker may be nil.
func NewScheduler(
	entries domain.EntryRepository,
	media domain.MediaAssetRepository,
	sender MessageSender,
	locker DispatchLocker,
	logger *slog.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries:  entries,
		media:    media,
		sender:   sender,
		locker:   locker,
		logger:   logger.With("component", "scheduler"),
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
		timers:   make(map[uuid.UUID]*time.Timer),
		inFlight: make(map[uuid.UUID]struct{}),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// OnCreate schedules a newly persisted pending entry. Entries already due are
// dispatched in the background; the caller does not wait for the provider.
func (s *Scheduler) OnCreate(ctx context.Context, entry *domain.ScheduledEntry) {
	delay := entry.ScheduledAt.Sub(s.now())
	if delay <= 0 {
		s.logger.InfoContext(ctx, "Entry is due, dispatching immediately", "entry_id", entry.ID)
		s.dispatchAsync(entry.ID)
		return
	}
	if s.arm(entry.ID, delay) {
		s.logger.InfoContext(ctx, "Armed dispatch timer", "entry_id", entry.ID, "scheduled_at", entry.ScheduledAt, "delay", delay.String())
	}
}

// OnStartup rediscovers pending entries after a restart. Timers from a previous
// process are gone, so this sweep is what keeps pending entries from being lost.
func (s *Scheduler) OnStartup(ctx context.Context) (SweepResult, error) {
	s.logger.InfoContext(ctx, "Running startup recovery sweep", "recovery_horizon", s.config.RecoveryHorizon.String())
	return s.sweep(ctx, s.config.RecoveryHorizon)
}

// DueSweep dispatches pending entries that are due and arms timers for those due
// within the next sweep interval. Running it repeatedly never sends an entry twice.
func (s *Scheduler) DueSweep(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, s.config.SweepInterval)
}

func (s *Scheduler) sweep(ctx context.Context, horizon time.Duration) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	due, err := s.entries.ListDue(ctx, now.Add(horizon), s.config.SweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load due entries", "error", err)
		return result, fmt.Errorf("failed to load due entries: %w", err)
	}
	result.Found = len(due)
	if len(due) == 0 {
		s.logger.DebugContext(ctx, "No pending entries within horizon")
		return result, nil
	}

	s.logger.InfoContext(ctx, "Loaded pending entries", "count", len(due), "due_before", now.Add(horizon))
	for _, entry := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if s.isClosed() {
			return result, nil
		}
		delay := entry.ScheduledAt.Sub(s.now())
		if delay > 0 {
			if s.arm(entry.ID, delay) {
				result.Armed++
			}
			continue
		}
		s.Cancel(entry.ID)
		switch s.dispatch(ctx, entry.ID) {
		case outcomeSent, outcomeFailed:
			result.Dispatched++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

// arm registers a timer for id unless one is already armed. It reports whether a
// new timer was created.
func (s *Scheduler) arm(id uuid.UUID, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.timers[id]; ok {
		return false
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
	armedTimersGauge.Set(float64(len(s.timers)))
	return true
}

func (s *Scheduler) fire(id uuid.UUID) {
	s.mu.Lock()
	delete(s.timers, id)
	armedTimersGauge.Set(float64(len(s.timers)))
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.Dispatch(s.baseCtx, id)
}

func (s *Scheduler) dispatchAsync(id uuid.UUID) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.Dispatch(s.baseCtx, id)
	}()
}

// Cancel stops the armed timer for id, if any. It reports whether a timer was stopped.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, id)
	armedTimersGauge.Set(float64(len(s.timers)))
	return true
}

// Armed returns the number of timers waiting to fire.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops all timers and waits for background dispatches until ctx is done.
// Dispatches still running after that are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	armedTimersGauge.Set(0)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		s.logger.InfoContext(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler shutdown timed out with dispatches in flight")
		return ctx.Err()
	}
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) tryEnter(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) leave(id uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// Dispatch performs the single send attempt for an entry. It never returns an error:
// every failure ends as a failed status, a skipped duplicate, or a log line.
// Cancelling ctx mid-send leaves the entry pending.
func (s *Scheduler) Dispatch(ctx context.Context, id uuid.UUID) {
	s.dispatch(ctx, id)
}

func (s *Scheduler) dispatch(ctx context.Context, id uuid.UUID) (outcome string) {
	start := time.Now()
	kind := "unknown"
	outcome = "error_internal"
	defer func() {
		dispatchDurationHist.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		entriesDispatchedCounter.WithLabelValues(kind, outcome).Inc()
	}()

	if !s.tryEnter(id) {
		s.logger.InfoContext(ctx, "Dispatch already in flight, skipping", "entry_id", id)
		outcome = "skipped_in_flight"
		return
	}
	defer s.leave(id)

	ctx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx, "dispatch:"+id.String(), s.config.LockTTL)
		if err != nil {
			// Leave the entry pending; the next sweep picks it up again.
			s.logger.ErrorContext(ctx, "Failed to acquire dispatch lock", "entry_id", id, "error", err)
			outcome = "error_lock"
			return
		}
		if !acquired {
			s.logger.InfoContext(ctx, "Entry locked by another dispatcher, skipping", "entry_id", id)
			outcome = "skipped_locked"
			return
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "Failed to release dispatch lock", "entry_id", id, "error", err)
			}
		}()
	}

	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load entry for dispatch", "entry_id", id, "error", err)
		outcome = "error_load"
		return
	}
	if entry.Status != domain.StatusPending {
		s.logger.InfoContext(ctx, "Entry no longer pending, skipping", "entry_id", id, "status", entry.Status)
		outcome = "skipped_not_pending"
		return
	}

	providerMsgID, sendErr := s.send(ctx, entry, &kind)
	if sendErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		s.logger.WarnContext(ctx, "Dispatch interrupted, entry stays pending", "entry_id", id, "error", sendErr)
		outcome = outcomeAborted
		return
	}
	if sendErr != nil {
		s.logger.WarnContext(ctx, "Dispatch failed", "entry_id", id, "recipient", entry.Recipient, "error", sendErr)
		outcome = s.finalize(ctx, entry, domain.StatusFailed, sql.NullString{}, sql.NullString{String: sendErr.Error(), Valid: true})
		return
	}
	s.logger.InfoContext(ctx, "Entry sent", "entry_id", id, "provider_message_id", providerMsgID)
	outcome = s.finalize(ctx, entry, domain.StatusSent, sql.NullString{String: providerMsgID, Valid: true}, sql.NullString{})
	return
}

func (s *Scheduler) send(ctx context.Context, entry *domain.ScheduledEntry, kind *string) (string, error) {
	var asset *domain.MediaAsset
	if entry.HasMedia() {
		var err error
		asset, err = s.media.GetByID(ctx, entry.MediaRef.UUID)
		if err != nil {
			return "", &domain.ResolutionError{MediaRef: entry.MediaRef.UUID.String(), Err: err}
		}
	}

	payload, err := Compose(entry, asset)
	if err != nil {
		return "", err
	}
	*kind = string(payload.Kind())

	return s.sender.Send(ctx, entry.Recipient, payload, asset)
}

// finalize performs the one terminal status write and returns the metric outcome.
func (s *Scheduler) finalize(ctx context.Context, entry *domain.ScheduledEntry, to domain.EntryStatus, providerMsgID, lastError sql.NullString) string {
	// A provider-accepted message must be recorded even if the dispatch deadline has passed.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	err := s.entries.UpdateStatus(writeCtx, entry.ID, domain.StatusPending, to, providerMsgID, lastError)
	switch {
	case err == nil:
		return string(to)
	case errors.Is(err, domain.ErrStatusConflict):
		s.logger.WarnContext(ctx, "Entry status changed during dispatch", "entry_id", entry.ID, "wanted_status", to)
		return "error_status_conflict"
	default:
		s.logger.ErrorContext(ctx, "Failed to record dispatch outcome", "entry_id", entry.ID, "wanted_status", to, "provider_message_id", providerMsgID.String, "error", err)
		return "error_update_status"
	}
}

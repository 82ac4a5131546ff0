package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/delivery_retrieval_service/domain"
	dispatchdomain "github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation outcomes, also used as metric labels.
const (
	OutcomeConfirmed       = "confirmed"
	OutcomeDiscrepancy     = "discrepancy"
	OutcomeFailureAgreed   = "failure_agreed"
	OutcomeCorrelationMiss = "correlation_miss"
	OutcomeIgnoredPending  = "ignored_pending"
	OutcomeIgnoredStatus   = "ignored_status"
	OutcomeError           = "error"
)

// EntryStore is the persistence a reconciler needs.
type EntryStore interface {
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*dispatchdomain.ScheduledEntry, error)
	RecordReceipt(ctx context.Context, id uuid.UUID, receiptStatus string, at time.Time) error
}

// StatusReconciler applies delivery receipts to entries. Receipts never change an
// entry's dispatch status; they are recorded alongside it.
type StatusReconciler struct {
	entries EntryStore
	logger  *slog.Logger
}

func NewStatusReconciler(entries EntryStore, logger *slog.Logger) *StatusReconciler {
	return &StatusReconciler{entries: entries, logger: logger.With("component", "status_reconciler")}
}

// OnReceipt correlates a receipt by provider message id and returns the outcome.
// Applying the same receipt twice leaves the same state.
func (r *StatusReconciler) OnReceipt(ctx context.Context, receipt domain.Receipt) string {
	timer := prometheus.NewTimer(receiptProcessingDurationHist.WithLabelValues(receipt.ProviderName))
	defer timer.ObserveDuration()

	outcome := r.reconcile(ctx, receipt)
	receiptsProcessedCounter.WithLabelValues(outcome).Inc()
	return outcome
}

func (r *StatusReconciler) reconcile(ctx context.Context, receipt domain.Receipt) string {
	logger := r.logger.With("provider_message_id", receipt.ProviderMessageID, "receipt_status", receipt.RawStatus)

	if receipt.ProviderMessageID == "" {
		logger.WarnContext(ctx, "Receipt without provider message id discarded")
		return OutcomeCorrelationMiss
	}

	entry, err := r.entries.GetByProviderMessageID(ctx, receipt.ProviderMessageID)
	if err != nil {
		if errors.Is(err, dispatchdomain.ErrNotFound) {
			logger.InfoContext(ctx, "No entry for receipt, discarding")
			return OutcomeCorrelationMiss
		}
		logger.ErrorContext(ctx, "Failed to look up entry for receipt", "error", err)
		return OutcomeError
	}
	logger = logger.With("entry_id", entry.ID)

	if entry.Status == dispatchdomain.StatusPending {
		logger.WarnContext(ctx, "Receipt for an entry still pending, ignoring")
		return OutcomeIgnoredPending
	}

	outcome := OutcomeIgnoredStatus
	switch {
	case receipt.Status.Confirms():
		outcome = OutcomeConfirmed
		if entry.Status != dispatchdomain.StatusSent {
			logger.WarnContext(ctx, "Delivery confirmed for an entry not marked sent", "status", entry.Status)
			outcome = OutcomeDiscrepancy
		}
	case receipt.Status.IsFailure():
		if entry.Status == dispatchdomain.StatusFailed {
			outcome = OutcomeFailureAgreed
			logger.InfoContext(ctx, "Provider reports failure for an entry already failed",
				"error_code", receipt.ErrorCode, "error_description", receipt.ErrorDescription)
			break
		}
		outcome = OutcomeDiscrepancy
		logger.WarnContext(ctx, "Provider reports failure for a sent entry, keeping sent",
			"error_code", receipt.ErrorCode, "error_description", receipt.ErrorDescription)
	case receipt.Status == domain.ReceiptUnknown:
		logger.InfoContext(ctx, "Unrecognised receipt status")
		return OutcomeIgnoredStatus
	}

	if receipt.Status.Supersedes(entry.ReceiptStatus.String) {
		at := receipt.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if err := r.entries.RecordReceipt(ctx, entry.ID, string(receipt.Status), at.UTC()); err != nil {
			logger.ErrorContext(ctx, "Failed to record receipt", "error", err)
			return OutcomeError
		}
	}

	logger.InfoContext(ctx, "Receipt reconciled", "outcome", outcome, "status", entry.Status)
	return outcome
}

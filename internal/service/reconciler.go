package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileResult reports what a notification did to a payment. Duplicate
// and OutOfOrder are informational outcomes, not errors: the notification
// was acknowledged but caused no mutation.
type ReconcileResult struct {
	Applied    bool   `json:"applied"`
	Duplicate  bool   `json:"duplicate"`
	OutOfOrder bool   `json:"out_of_order"`
	Status     string `json:"status"`
}

// ReconcilerConfig tunes the reconciliation policy.
type ReconcilerConfig struct {
	// MaxRetries bounds the compare-and-swap retry loop per notification.
	MaxRetries int

	// SignatureCapacity bounds the per-payment seen-signature history.
	SignatureCapacity int

	// TerminalOverride preserves the provider's literal behavior: a
	// later-timestamped notification overrides a terminal status the
	// same as any other. When false, payments in a terminal status
	// reject every further notification as out-of-order.
	TerminalOverride bool
}

// Reconciler applies provider notifications to payments under the
// watermark ordering rule. For one payment the effective state is a
// function of the set of delivered notifications, independent of
// delivery order; notifications for different payments proceed in
// parallel.
type Reconciler struct {
	payments  store.PaymentStore
	publisher EventPublisher
	cfg       ReconcilerConfig
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(payments store.PaymentStore, publisher EventPublisher, cfg ReconcilerConfig) *Reconciler {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.SignatureCapacity <= 0 {
		cfg.SignatureCapacity = 32
	}
	return &Reconciler{
		payments:  payments,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Apply applies one notification. It returns store.ErrNotFound for an
// unknown payment id; an orphan notification never originates a payment.
//
// Checks run in order: exact-retransmission suppression on the signature
// history, then the watermark rule (an event timestamp at or below the
// watermark never mutates state), then the atomic apply. A lost
// compare-and-swap re-reads and re-evaluates, so a notification that
// raced with a newer one is correctly reclassified as out-of-order.
func (r *Reconciler) Apply(ctx context.Context, event *models.NotificationEvent) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Apply")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	if !models.ValidStatus(event.Status) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", event.Status)}
	}

	sig := event.Signature()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		payment, err := r.payments.GetPayment(ctx, event.PaymentID)
		if errors.Is(err, store.ErrNotFound) {
			util.NotificationsOrphanTotal.Inc()
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load payment: %w", err)
		}

		if payment.HasSeenSignature(sig) {
			util.NotificationsDuplicateTotal.Inc()
			r.logger.Info("Notification already processed",
				zap.String("payment_id", payment.ID),
				zap.String("status", event.Status),
				zap.Time("event_timestamp", event.EventTimestamp))
			return &ReconcileResult{Duplicate: true, Status: payment.Status}, nil
		}

		if r.rejects(payment, event) {
			util.NotificationsOutOfOrderTotal.Inc()
			r.logger.Info("Notification ignored, older than current state",
				zap.String("payment_id", payment.ID),
				zap.String("status", event.Status),
				zap.Time("event_timestamp", event.EventTimestamp),
				zap.Time("watermark", payment.LastEventAt))
			return &ReconcileResult{OutOfOrder: true, Status: payment.Status}, nil
		}

		oldStatus := payment.Status
		expectedVersion := payment.Version

		payment.Status = event.Status
		payment.LastEventAt = event.EventTimestamp
		payment.AppliedEventCount++
		payment.RecordSignature(sig, r.cfg.SignatureCapacity)

		err = r.payments.UpdatePayment(ctx, payment, expectedVersion)
		if errors.Is(err, store.ErrVersionConflict) {
			util.ReconcileConflictsTotal.Inc()
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			util.NotificationsOrphanTotal.Inc()
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}

		util.NotificationsAppliedTotal.Inc()
		r.logger.Info("Notification applied",
			zap.String("payment_id", payment.ID),
			zap.String("old_status", oldStatus),
			zap.String("new_status", payment.Status),
			zap.Time("event_timestamp", event.EventTimestamp))

		r.publishStatusChanged(ctx, payment, oldStatus, event.EventTimestamp)
		return &ReconcileResult{Applied: true, Status: payment.Status}, nil
	}

	return nil, fmt.Errorf("apply for payment %q: %w", event.PaymentID, ErrContention)
}

// rejects implements the watermark rule. An event timestamp at or below
// the watermark is stale or concurrent and never reverts newer state.
func (r *Reconciler) rejects(payment *models.Payment, event *models.NotificationEvent) bool {
	if !r.cfg.TerminalOverride && models.TerminalStatus(payment.Status) {
		return true
	}
	return !event.EventTimestamp.After(payment.LastEventAt)
}

func (r *Reconciler) publishStatusChanged(ctx context.Context, p *models.Payment, oldStatus string, eventTS time.Time) {
	if r.publisher == nil {
		return
	}

	event := &models.PaymentStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Timestamp: time.Now(),
		},
		PaymentID:         p.ID,
		OldStatus:         oldStatus,
		NewStatus:         p.Status,
		EventTimestamp:    eventTS,
		AppliedEventCount: p.AppliedEventCount,
	}

	if err := r.publisher.PublishPaymentStatusChanged(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentStatusChanged event", zap.Error(err))
	}
}

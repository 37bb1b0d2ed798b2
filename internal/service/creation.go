package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes payment lifecycle events to the broker.
// Services tolerate a nil publisher (no events emitted).
type EventPublisher interface {
	PublishPaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error
	PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error
}

// maxCreateAttempts bounds the retry loop around a stale idempotency
// entry (key still mapped after its payment was deleted by cleanup).
const maxCreateAttempts = 3

// CreationService validates and atomically creates-or-returns payments.
type CreationService struct {
	payments  store.PaymentStore
	index     store.IdempotencyIndex
	publisher EventPublisher
	keyTTL    time.Duration
	logger    *zap.Logger
}

// NewCreationService creates a new creation service. keyTTL is the
// idempotency key lifetime.
func NewCreationService(
	payments store.PaymentStore,
	index store.IdempotencyIndex,
	publisher EventPublisher,
	keyTTL time.Duration,
) *CreationService {
	return &CreationService{
		payments:  payments,
		index:     index,
		publisher: publisher,
		keyTTL:    keyTTL,
		logger:    util.GetLogger(),
	}
}

// CreateRequest represents a request to create a payment
type CreateRequest struct {
	Amount         string          `json:"amount" binding:"required"`
	Currency       string          `json:"currency" binding:"required"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	Bank           string          `json:"bank,omitempty"`
	Customer       models.Customer `json:"customer" binding:"required"`
	RedirectURL    string          `json:"redirect_url" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Create atomically creates a payment for the request's idempotency key,
// or returns the existing one. The second return value is true when this
// call allocated a new record.
//
// The loser of a concurrent race with the same key observes the winner's
// record; a second payment is never left behind.
func (s *CreationService) Create(ctx context.Context, req *CreateRequest) (*models.Payment, bool, error) {
	ctx, span := util.StartSpan(ctx, "CreationService.Create")
	defer span.End()

	if err := validateCreateRequest(req); err != nil {
		return nil, false, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		now := time.Now().UTC()
		payment := &models.Payment{
			ID:            newPaymentID(),
			Status:        models.StatusPending,
			Amount:        req.Amount,
			Currency:      req.Currency,
			PaymentMethod: req.PaymentMethod,
			Bank:          req.Bank,
			Customer:      req.Customer,
			RedirectURL:   req.RedirectURL,
			CreationKey:   key,
			CreatedAt:     now,
			LastEventAt:   now,
		}

		// The record is stored before the key is claimed so the index
		// never points at a payment that does not exist yet.
		if err := s.payments.CreatePayment(ctx, payment); err != nil {
			return nil, false, fmt.Errorf("failed to create payment: %w", err)
		}

		winnerID, inserted, err := s.index.PutIfAbsent(ctx, key, payment.ID, s.keyTTL)
		if err != nil {
			_ = s.payments.DeletePayment(ctx, payment.ID)
			return nil, false, fmt.Errorf("idempotency check failed: %w", err)
		}

		if inserted {
			util.PaymentsCreatedTotal.Inc()
			s.logger.Info("Payment created",
				zap.String("payment_id", payment.ID),
				zap.String("payment_method", payment.PaymentMethod))

			s.publishCreated(ctx, payment)
			return payment, true, nil
		}

		// Lost the race: discard our record and return the winner's.
		_ = s.payments.DeletePayment(ctx, payment.ID)

		existing, err := s.payments.GetPayment(ctx, winnerID)
		if errors.Is(err, store.ErrNotFound) {
			// Stale entry: the mapped payment was deleted while the key
			// lived on. Drop the entry and claim the key again.
			s.logger.Warn("Stale idempotency entry, retrying",
				zap.String("idempotency_key", key),
				zap.String("stale_payment_id", winnerID))
			if err := s.index.Delete(ctx, key); err != nil {
				return nil, false, fmt.Errorf("failed to drop stale idempotency entry: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing payment: %w", err)
		}

		util.PaymentsReplayedTotal.Inc()
		s.logger.Info("Duplicate creation request, returning existing payment",
			zap.String("idempotency_key", key),
			zap.String("payment_id", existing.ID))
		return existing, false, nil
	}

	return nil, false, fmt.Errorf("creation for key %q: %w", key, ErrContention)
}

// Remove deletes a payment and its idempotency entry (test cleanup).
func (s *CreationService) Remove(ctx context.Context, paymentID string) error {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	if payment.CreationKey != "" {
		if err := s.index.Delete(ctx, payment.CreationKey); err != nil {
			return fmt.Errorf("failed to delete idempotency entry: %w", err)
		}
	}

	return s.payments.DeletePayment(ctx, paymentID)
}

// RemoveAll deletes every payment (test cleanup). Idempotency entries
// are not enumerated; any left behind become stale entries that Create
// detects and replaces.
func (s *CreationService) RemoveAll(ctx context.Context) error {
	return s.payments.DeleteAllPayments(ctx)
}

func (s *CreationService) publishCreated(ctx context.Context, p *models.Payment) {
	if s.publisher == nil {
		return
	}

	event := &models.PaymentCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentCreated,
			Timestamp: time.Now(),
		},
		PaymentID:     p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.PaymentMethod,
	}

	if err := s.publisher.PublishPaymentCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentCreated event", zap.Error(err))
	}
}

func validateCreateRequest(req *CreateRequest) error {
	fail := func(field, reason string) error {
		util.PaymentsValidationFailedTotal.WithLabelValues(field).Inc()
		return &ValidationError{Field: field, Reason: reason}
	}

	if strings.TrimSpace(req.Amount) == "" {
		return fail("amount", "must not be empty")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return fail("currency", "must not be empty")
	}
	if !models.ValidMethod(req.PaymentMethod) {
		return fail("payment_method", fmt.Sprintf("unsupported method %q", req.PaymentMethod))
	}
	if strings.TrimSpace(req.Customer.Email) == "" {
		return fail("customer.email", "must not be empty")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return fail("customer.name", "must not be empty")
	}
	if strings.TrimSpace(req.Customer.Document) == "" {
		return fail("customer.document", "must not be empty")
	}
	if strings.TrimSpace(req.RedirectURL) == "" {
		return fail("redirect_url", "must not be empty")
	}
	return nil
}

// newPaymentID returns an id in the provider's pay_<16 hex> format.
func newPaymentID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "pay_" + hex[:16]
}

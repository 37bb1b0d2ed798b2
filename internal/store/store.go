package store

import (
	"context"
	"errors"
	"time"

	"payment-service/internal/models"
)

var (
	// ErrNotFound is returned when a payment id is unknown.
	ErrNotFound = errors.New("payment not found")

	// ErrAlreadyExists is returned on a payment id collision.
	ErrAlreadyExists = errors.New("payment already exists")

	// ErrVersionConflict is returned when a compare-and-swap write lost
	// a race with a concurrent writer. Callers re-read and retry.
	ErrVersionConflict = errors.New("payment version conflict")
)

// PaymentStore is keyed storage for payment records with atomic
// read-modify-write primitives. Reads return consistent snapshots;
// a caller never observes a partially applied write.
type PaymentStore interface {
	// CreatePayment inserts a new payment. ErrAlreadyExists on id collision.
	CreatePayment(ctx context.Context, p *models.Payment) error

	// GetPayment returns a copy of the payment. ErrNotFound if unknown.
	GetPayment(ctx context.Context, id string) (*models.Payment, error)

	// UpdatePayment writes p if the stored version still equals
	// expectedVersion, then bumps the version. ErrVersionConflict if a
	// concurrent writer got there first, ErrNotFound if the payment is gone.
	UpdatePayment(ctx context.Context, p *models.Payment, expectedVersion int64) error

	// DeletePayment removes a payment. ErrNotFound if unknown.
	DeletePayment(ctx context.Context, id string) error

	// DeleteAllPayments removes every payment (test cleanup).
	DeleteAllPayments(ctx context.Context) error

	// CountPayments returns the number of stored payments.
	CountPayments(ctx context.Context) (int, error)

	Close() error
}

// IdempotencyIndex maps a client creation key to a payment id for the
// key's TTL. One creation key never resolves to two different payment
// ids while unexpired.
type IdempotencyIndex interface {
	// PutIfAbsent atomically installs key -> paymentID unless an
	// unexpired entry exists. It returns the winning payment id and
	// whether this call inserted it; the loser of a race observes the
	// winner's id.
	PutIfAbsent(ctx context.Context, key, paymentID string, ttl time.Duration) (string, bool, error)

	// Get returns the payment id for key, if present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete drops the entry for key, if any.
	Delete(ctx context.Context, key string) error

	Close() error
}

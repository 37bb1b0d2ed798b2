package service

import (
	"context"

	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"
)

// QueryService is the read-only status lookup used by polling clients.
// It reports current state only and never blocks waiting for a future
// state; caller deadlines propagate through the context.
type QueryService struct {
	payments store.PaymentStore
}

// NewQueryService creates a new query service.
func NewQueryService(payments store.PaymentStore) *QueryService {
	return &QueryService{payments: payments}
}

// Get returns a consistent snapshot of the payment. store.ErrNotFound if
// unknown.
func (s *QueryService) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.Get")
	defer span.End()

	return s.payments.GetPayment(ctx, paymentID)
}

// Count returns the number of stored payments, for the health endpoint.
func (s *QueryService) Count(ctx context.Context) (int, error) {
	return s.payments.CountPayments(ctx)
}

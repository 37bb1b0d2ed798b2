package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCreationFixture(t *testing.T) (*CreationService, *store.MemoryStore, *store.MemoryIndex) {
	t.Helper()
	payments := store.NewMemoryStore()
	index := store.NewMemoryIndex(0)
	t.Cleanup(func() { _ = index.Close() })
	return NewCreationService(payments, index, nil, time.Hour), payments, index
}

func validRequest(key string) *CreateRequest {
	return &CreateRequest{
		Amount:        "50000",
		Currency:      "COP",
		PaymentMethod: models.MethodPSE,
		Bank:          "banco_azul",
		Customer: models.Customer{
			Email:    "maria@example.com",
			Name:     "Maria Gomez",
			Document: "CC-1020304050",
		},
		RedirectURL:    "https://shop.example.com/return",
		IdempotencyKey: key,
	}
}

func TestCreateNewPayment(t *testing.T) {
	svc, payments, _ := newCreationFixture(t)
	ctx := context.Background()

	payment, isNew, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Equal(t, "k1", payment.CreationKey)
	assert.Regexp(t, `^pay_[0-9a-f]{16}$`, payment.ID)
	assert.Equal(t, payment.CreatedAt, payment.LastEventAt)
	assert.Zero(t, payment.AppliedEventCount)

	stored, err := payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)
}

func TestCreateIdempotentReplay(t *testing.T) {
	svc, payments, _ := newCreationFixture(t)
	ctx := context.Background()

	first, isNew, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)

	// A second payment is never allocated.
	count, err := payments.CountPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateDistinctKeysDistinctPayments(t *testing.T) {
	svc, _, _ := newCreationFixture(t)
	ctx := context.Background()

	p1, _, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	p2, _, err := svc.Create(ctx, validRequest("k2"))
	require.NoError(t, err)

	assert.NotEqual(t, p1.ID, p2.ID)
}

func TestCreateGeneratesKeyWhenMissing(t *testing.T) {
	svc, _, _ := newCreationFixture(t)
	ctx := context.Background()

	payment, isNew, err := svc.Create(ctx, validRequest(""))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, payment.CreationKey)
}

func TestCreateValidation(t *testing.T) {
	svc, payments, _ := newCreationFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing amount", func(r *CreateRequest) { r.Amount = "" }},
		{"missing currency", func(r *CreateRequest) { r.Currency = "" }},
		{"unknown method", func(r *CreateRequest) { r.PaymentMethod = "WIRE" }},
		{"missing email", func(r *CreateRequest) { r.Customer.Email = "" }},
		{"missing name", func(r *CreateRequest) { r.Customer.Name = "" }},
		{"missing document", func(r *CreateRequest) { r.Customer.Document = "" }},
		{"missing redirect", func(r *CreateRequest) { r.RedirectURL = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("k-" + tc.name)
			tc.mutate(req)

			_, _, err := svc.Create(ctx, req)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// No record is created on validation failure.
	count, err := payments.CountPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateConcurrentSameKey(t *testing.T) {
	svc, payments, _ := newCreationFixture(t)
	ctx := context.Background()

	const n = 32
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payment, _, err := svc.Create(ctx, validRequest("race-key"))
			if assert.NoError(t, err) {
				ids[i] = payment.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "all concurrent creators must resolve to one payment")
	}

	count, err := payments.CountPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRecoversFromStaleIndexEntry(t *testing.T) {
	svc, payments, index := newCreationFixture(t)
	ctx := context.Background()

	payment, _, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)

	// Simulate cleanup deleting the record but leaving the key mapped.
	require.NoError(t, payments.DeletePayment(ctx, payment.ID))
	_, ok, err := index.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	replacement, isNew, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, payment.ID, replacement.ID)
}

func TestRemoveDeletesIdempotencyEntry(t *testing.T) {
	svc, _, index := newCreationFixture(t)
	ctx := context.Background()

	payment, _, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, payment.ID))

	_, ok, err := index.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The key is free for a fresh payment.
	replacement, isNew, err := svc.Create(ctx, validRequest("k1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, payment.ID, replacement.ID)
}

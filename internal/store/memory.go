package store

import (
	"context"
	"sync"
	"time"

	"payment-service/internal/models"
)

// MemoryStore is the default PaymentStore backing: a map guarded by a
// RWMutex, with copy-in/copy-out semantics so readers always see a
// consistent snapshot. Writes go through the version check, so two
// reconcilers racing on the same payment serialize through
// ErrVersionConflict rather than clobbering each other.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
}

// NewMemoryStore creates an empty in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*models.Payment)}
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.ID]; ok {
		return ErrAlreadyExists
	}
	s.payments[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *models.Payment, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	next := p.Clone()
	next.Version = expectedVersion + 1
	s.payments[p.ID] = next
	p.Version = next.Version
	return nil
}

func (s *MemoryStore) DeletePayment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[id]; !ok {
		return ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *MemoryStore) DeleteAllPayments(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = make(map[string]*models.Payment)
	return nil
}

func (s *MemoryStore) CountPayments(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.payments), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

type indexEntry struct {
	paymentID string
	expiresAt time.Time
}

// MemoryIndex is an in-memory IdempotencyIndex with TTL expiry. Expired
// entries are dropped lazily on access and swept periodically so the map
// does not grow without bound.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]indexEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryIndex creates an in-memory idempotency index. sweepInterval
// controls how often expired entries are evicted; <= 0 disables the sweeper.
func NewMemoryIndex(sweepInterval time.Duration) *MemoryIndex {
	idx := &MemoryIndex{
		entries: make(map[string]indexEntry),
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go idx.sweep(sweepInterval)
	}
	return idx
}

func (idx *MemoryIndex) PutIfAbsent(ctx context.Context, key, paymentID string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := time.Now()
	if e, ok := idx.entries[key]; ok && now.Before(e.expiresAt) {
		return e.paymentID, false, nil
	}
	idx.entries[key] = indexEntry{paymentID: paymentID, expiresAt: now.Add(ttl)}
	return paymentID, true, nil
}

func (idx *MemoryIndex) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[key]
	if !ok {
		return "", false, nil
	}
	if !time.Now().Before(e.expiresAt) {
		delete(idx.entries, key)
		return "", false, nil
	}
	return e.paymentID, true, nil
}

func (idx *MemoryIndex) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.entries, key)
	return nil
}

// Close stops the background sweeper.
func (idx *MemoryIndex) Close() error {
	idx.once.Do(func() { close(idx.stop) })
	return nil
}

func (idx *MemoryIndex) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-idx.stop:
			return
		case <-ticker.C:
			now := time.Now()
			idx.mu.Lock()
			for key, e := range idx.entries {
				if !now.Before(e.expiresAt) {
					delete(idx.entries, key)
				}
			}
			idx.mu.Unlock()
		}
	}
}

package discount

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsageStore is an in-memory Repository guarded by a mutex, standing in
// for the conditional UPDATE of the SQL store.
type memUsageStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*Code
	only  uuid.UUID

	increments atomic.Int64
	failWith   error

	// beforeReplace runs under the lock ahead of the limit check.
	beforeReplace func(stored *Code)
}

func newMemUsageStore(codes ...*Code) *memUsageStore {
	s := &memUsageStore{codes: make(map[uuid.UUID]*Code)}
	for _, c := range codes {
		s.codes[c.ID] = c
		s.only = c.ID
	}
	return s
}

func (s *memUsageStore) FindByCode(_ context.Context, sellerID uuid.UUID, code string) (*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.SellerID == sellerID && c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (s *memUsageStore) IncrementUsage(_ context.Context, id uuid.UUID) (Usage, bool, error) {
	s.increments.Add(1)
	if s.failWith != nil {
		return Usage{}, false, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return Usage{}, false, ErrCodeNotFound
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return Usage{}, false, nil
	}
	c.UsageCount++
	return Usage{Count: c.UsageCount, Limit: c.UsageLimit}, true, nil
}

func (s *memUsageStore) DecrementUsage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return ErrCodeNotFound
	}
	if c.UsageCount > 0 {
		c.UsageCount--
	}
	return nil
}

func (s *memUsageStore) Create(_ context.Context, c *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.codes {
		if existing.SellerID == c.SellerID && existing.Code == c.Code {
			return ErrCodeExists
		}
	}
	cp := *c
	s.codes[c.ID] = &cp
	return nil
}

func (s *memUsageStore) Replace(_ context.Context, c *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[c.ID]
	if !ok {
		return ErrCodeNotFound
	}
	for _, existing := range s.codes {
		if existing.ID != c.ID && existing.SellerID == c.SellerID && existing.Code == c.Code {
			return ErrCodeExists
		}
	}
	if s.beforeReplace != nil {
		s.beforeReplace(stored)
	}
	if c.UsageLimit != nil && stored.UsageCount > *c.UsageLimit {
		return ErrUsageBelowCount
	}
	c.UsageCount = stored.UsageCount
	cp := *c
	s.codes[c.ID] = &cp
	return nil
}

func (s *memUsageStore) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return ErrCodeNotFound
	}
	c.Active = false
	return nil
}

func (s *memUsageStore) Get(_ context.Context, id uuid.UUID) (*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memUsageStore) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Code
	for _, c := range s.codes {
		if c.SellerID == sellerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memUsageStore) Exists(_ context.Context, sellerID uuid.UUID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.SellerID == sellerID && c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func TestUsageCounter_Consume(t *testing.T) {
	code := baseCode()
	code.UsageLimit = intPtr(2)
	store := newMemUsageStore(code)
	counter := NewUsageCounter(store)
	ctx := context.Background()

	u, err := counter.Consume(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Count)
	assert.False(t, u.Exhausted())

	u, err = counter.Consume(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, u.Count)
	assert.True(t, u.Exhausted())

	_, err = counter.Consume(ctx, code.ID)
	require.ErrorIs(t, err, ErrUsageLimitReached)
	assert.Equal(t, 2, store.codes[code.ID].UsageCount)
}

func TestUsageCounter_Unlimited(t *testing.T) {
	code := baseCode()
	store := newMemUsageStore(code)
	counter := NewUsageCounter(store)

	for i := 1; i <= 50; i++ {
		u, err := counter.Consume(context.Background(), code.ID)
		require.NoError(t, err)
		assert.Equal(t, i, u.Count)
		assert.False(t, u.Exhausted())
	}
}

func TestUsageCounter_StorageError(t *testing.T) {
	store := newMemUsageStore(baseCode())
	store.failWith = errors.New("connection refused")
	counter := NewUsageCounter(store)

	_, err := counter.Consume(context.Background(), store.only)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUsageLimitReached)
	assert.Contains(t, err.Error(), "increment usage")
}

func TestUsageCounter_Release(t *testing.T) {
	code := baseCode()
	code.UsageLimit = intPtr(1)
	store := newMemUsageStore(code)
	counter := NewUsageCounter(store)
	ctx := context.Background()

	_, err := counter.Consume(ctx, code.ID)
	require.NoError(t, err)
	_, err = counter.Consume(ctx, code.ID)
	require.ErrorIs(t, err, ErrUsageLimitReached)

	require.NoError(t, counter.Release(ctx, code.ID))
	_, err = counter.Consume(ctx, code.ID)
	require.NoError(t, err)

	// Releasing more than was consumed never goes below zero.
	require.NoError(t, counter.Release(ctx, code.ID))
	require.NoError(t, counter.Release(ctx, code.ID))
	assert.Equal(t, 0, store.codes[code.ID].UsageCount)
}

func TestUsageCounter_ConcurrentLastUses(t *testing.T) {
	const limit = 25

	code := baseCode()
	code.UsageLimit = intPtr(limit)
	store := newMemUsageStore(code)
	counter := NewUsageCounter(store)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
		start     = make(chan struct{})
	)
	for range 2 * limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := counter.Consume(context.Background(), code.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrUsageLimitReached):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, limit, succeeded.Load())
	assert.EqualValues(t, limit, rejected.Load())
	assert.Equal(t, limit, store.codes[code.ID].UsageCount)
}

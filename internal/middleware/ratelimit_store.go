package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/bloggers/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local rate limiting. It is concurrency-safe.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// MemoryStoreOption customises a MemoryRateStore.
type MemoryStoreOption func(*MemoryRateStore)

// WithRateClock overrides the clock, mainly for tests.
func WithRateClock(clock func() time.Time) MemoryStoreOption {
	return func(s *MemoryRateStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore(opts ...MemoryStoreOption) *MemoryRateStore {
	store := &MemoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Run evicts expired counters every interval until ctx is cancelled.
func (s *MemoryRateStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryRateStore) evictExpired() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, counter := range s.data {
		if now.After(counter.windowEnd) {
			delete(s.data, key)
		}
	}
}

func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}

	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// counterRateStore adapts a shared cache.Counter (Redis) to RateStore.
type counterRateStore struct {
	counter cache.Counter
}

// NewCounterRateStore wraps a shared counter in a RateStore implementation.
func NewCounterRateStore(counter cache.Counter) RateStore {
	if counter == nil {
		return nil
	}
	return &counterRateStore{counter: counter}
}

func (s *counterRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.counter.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}

// Package cache holds encoded transform results in a bounded in-memory LRU and
// makes sure each key is computed at most once at a time.
//
// # Thread Safety
//
// Manager is safe for concurrent use. The LRU index has its own lock and is
// only touched through Manager; computations run outside any lock, so a slow
// resize never blocks lookups, insertions or evictions for other keys.
//
// # Single Flight
//
// Concurrent GetOrCompute calls for the same key share one invocation of the
// compute function. Joined callers that give up (context cancelled) simply
// stop waiting; the computation carries on for the others. Failures are
// delivered to everyone who joined and are never cached.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/imgresize/internal/errs"
	"github.com/ironsheep/imgresize/internal/logging"
)

// Key addresses one cached result.
type Key string

// Entry is an immutable encoded result. Once returned, an Entry stays valid
// for as long as the caller holds it, even if it is evicted from the index.
// Callers must not modify Bytes.
type Entry struct {
	Key         Key
	Bytes       []byte
	ContentType string
	// Weight is the size of Bytes; capacity is counted in entries, not weight.
	Weight int
}

// ComputeFunc produces the bytes and content type for a missing key. The
// context carries the values of the first caller's context but is never
// cancelled, since other callers may be waiting on the result.
type ComputeFunc func(ctx context.Context) (data []byte, contentType string, err error)

// ComputeError is returned by GetOrCompute when the computation failed. Every
// caller that joined the computation receives the same underlying error.
type ComputeError struct {
	Key Key
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Evictions    uint64 `json:"evictions"`
	Computations uint64 `json:"computations"`
	Failures     uint64 `json:"failures"`
	Entries      int    `json:"entries"`
	Capacity     int    `json:"capacity"`
}

// Manager is a bounded LRU of encoded results with per-key single flight.
type Manager struct {
	capacity int
	// index is nil when capacity is zero: nothing is retained, but
	// concurrent identical requests are still coalesced.
	index   *lru.Cache[Key, *Entry]
	flights singleflight.Group
	log     *zap.Logger

	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	computations atomic.Uint64
	failures     atomic.Uint64
}

// New creates a Manager holding at most capacity entries.
func New(capacity int, log *zap.Logger) (*Manager, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("cache capacity must not be negative, got %d", capacity)
	}
	if log == nil {
		log = logging.Nop()
	}

	m := &Manager{capacity: capacity, log: log}
	if capacity > 0 {
		index, err := lru.NewWithEvict(capacity, m.onEvict)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache index: %w", err)
		}
		m.index = index
	}
	return m, nil
}

// Get returns the entry for key and marks it most recently used.
func (m *Manager) Get(key Key) (*Entry, bool) {
	if m.index == nil {
		m.misses.Add(1)
		return nil, false
	}
	e, ok := m.index.Get(key)
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return e, ok
}

// GetOrCompute returns the cached entry for key, computing and inserting it on
// a miss. At most one compute runs per key at any time.
//
// If ctx ends while waiting, GetOrCompute returns ctx.Err() without affecting
// the computation. Compute failures come back as *ComputeError.
func (m *Manager) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*Entry, error) {
	if e, ok := m.Get(key); ok {
		return e, nil
	}
	return m.Compute(ctx, key, compute)
}

// Compute is GetOrCompute for callers that already missed with Get and did
// work of their own before deciding to compute. It joins an in-flight
// computation for key if there is one, and returns an entry inserted since
// the caller's miss without running compute.
func (m *Manager) Compute(ctx context.Context, key Key, compute ComputeFunc) (*Entry, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(string(key), func() (any, error) {
		// A flight for this key may have finished between our miss and
		// joining; its result is already in the index.
		if m.index != nil {
			if e, ok := m.index.Get(key); ok {
				return e, nil
			}
		}

		m.computations.Add(1)
		e, err := m.run(detached, key, compute)
		if err != nil {
			m.failures.Add(1)
			return nil, err
		}
		if m.index != nil {
			m.index.Add(key, e)
		}
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, &ComputeError{Key: key, Err: res.Err}
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run invokes compute, turning a panic into an errs.Internal failure so a bad
// input cannot take the process down or wedge the key.
func (m *Manager) run(ctx context.Context, key Key, compute ComputeFunc) (e *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("compute panicked", zap.String("key", string(key)), zap.Any("panic", r))
			e, err = nil, errs.E(errs.Internal, "cache.compute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	data, contentType, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	return &Entry{Key: key, Bytes: data, ContentType: contentType, Weight: len(data)}, nil
}

func (m *Manager) onEvict(key Key, e *Entry) {
	m.evictions.Add(1)
	m.log.Debug("evicted", zap.String("key", string(key)), zap.Int("weight", e.Weight))
}

// Len returns the number of entries currently held.
func (m *Manager) Len() int {
	if m.index == nil {
		return 0
	}
	return m.index.Len()
}

// Capacity returns the maximum number of entries.
func (m *Manager) Capacity() int {
	return m.capacity
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Evictions:    m.evictions.Load(),
		Computations: m.computations.Load(),
		Failures:     m.failures.Load(),
		Entries:      m.Len(),
		Capacity:     m.capacity,
	}
}

// Package idem remembers which order an idempotency key produced.
package idem

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTTL is how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// Record is the confirmation a key produced plus a fingerprint of the request
// that produced it.
type Record struct {
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Fingerprint uint64          `json:"fingerprint"`
}

type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	// Put stores rec unless key is already present; it reports whether rec
	// was stored.
	Put(ctx context.Context, key string, rec Record) (bool, error)
}

type memEntry struct {
	rec     Record
	expires time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{entries: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Record{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return Record{}, false, nil
	}
	return e.rec, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return false, nil
	}
	m.entries[key] = memEntry{rec: rec, expires: now.Add(m.ttl)}
	return true, nil
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLockTimeout       = errors.New("inventory lock timeout")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// DefaultLockTimeout bounds how long Reserve waits for a product lock.
const DefaultLockTimeout = 250 * time.Millisecond

type StockEntry struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Shortage is returned (wrapping ErrInsufficientStock) when a reservation
// asks for more than is on hand.
type Shortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (s *Shortage) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %d, available %d", s.ProductID, s.Required, s.Available)
}

func (s *Shortage) Unwrap() error { return ErrInsufficientStock }

// entry is one stock counter. qty is written only while sem is held; reads
// are lock-free.
type entry struct {
	sem *semaphore.Weighted
	qty atomic.Int64
}

// Ledger owns per-product stock counters. Check-and-decrement happens under
// a lock per product, so unrelated products never wait on each other.
type Ledger struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	lockTimeout time.Duration
}

func NewLedger(lockTimeout time.Duration) *Ledger {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Ledger{
		entries:     make(map[string]*entry),
		lockTimeout: lockTimeout,
	}
}

// Seed provisions a product with the given quantity, replacing any previous
// level.
func (l *Ledger) Seed(productID string, qty int) error {
	if productID == "" || qty < 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	e, ok := l.entries[productID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		e.qty.Store(int64(qty))
		l.entries[productID] = e
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	lock(e)
	defer e.sem.Release(1)
	e.qty.Store(int64(qty))
	return nil
}

func (l *Ledger) lookup(productID string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[productID]
	return e, ok
}

func (l *Ledger) Get(productID string) (int, error) {
	e, ok := l.lookup(productID)
	if !ok {
		return 0, ErrNotFound
	}
	return int(e.qty.Load()), nil
}

// Reserve atomically checks that qty units are available and takes them.
// It gives up with ErrLockTimeout if the product lock is not acquired within
// the ledger's lock timeout or before ctx is done.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	_, err := l.Take(ctx, productID, qty)
	return err
}

// Take is Reserve that also reports the level left right after the
// decrement, read under the same lock.
func (l *Ledger) Take(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	e, ok := l.lookup(productID)
	if !ok {
		return 0, ErrNotFound
	}

	lctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()
	if err := e.sem.Acquire(lctx, 1); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrLockTimeout, productID, err)
	}
	defer e.sem.Release(1)

	available := int(e.qty.Load())
	if available < qty {
		return 0, &Shortage{ProductID: productID, Required: qty, Available: available}
	}
	left := available - qty
	e.qty.Store(int64(left))
	return left, nil
}

// Release puts qty units back. It is used for compensation and therefore
// takes no context: it waits for the product lock until it gets it.
func (l *Ledger) Release(productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	e, ok := l.lookup(productID)
	if !ok {
		return ErrNotFound
	}
	lock(e)
	defer e.sem.Release(1)
	e.qty.Add(int64(qty))
	return nil
}

// Snapshot returns every stock level ordered by product id.
func (l *Ledger) Snapshot() []StockEntry {
	l.mu.RLock()
	out := make([]StockEntry, 0, len(l.entries))
	for id, e := range l.entries {
		out = append(out, StockEntry{ProductID: id, Quantity: int(e.qty.Load())})
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func lock(e *entry) {
	// Acquire with a background context only fails on a weight larger than
	// the semaphore size.
	_ = e.sem.Acquire(context.Background(), 1)
}

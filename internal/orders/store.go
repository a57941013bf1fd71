package orders

import (
	"context"
	"fmt"
	"sync"
)

// JournalEntry is one durable change to the store.
type JournalEntry struct {
	Type  string // EventOrderPlaced | EventOrderCancelled
	Order Order
}

// Journal makes store changes durable. Record must be atomic: either the
// entry is persisted or an error is returned and nothing is.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// userOrders holds one user's orders in creation order.
type userOrders struct {
	mu     sync.RWMutex
	orders []Order
	pos    map[string]int
}

// Store owns all order records and the per-user index. Appends for different
// users only share the short critical section on the id map.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*userOrders // nil value: id reserved, insert in flight
	byUser  map[string]*userOrders
	byKey   map[string]string // idempotency key -> order id
	journal Journal
}

// NewStore returns an empty store. A nil journal keeps the store in memory
// only.
func NewStore(j Journal) *Store {
	return &Store{
		byID:    make(map[string]*userOrders),
		byUser:  make(map[string]*userOrders),
		byKey:   make(map[string]string),
		journal: j,
	}
}

// Append inserts o and indexes it under its user and idempotency key in one
// step. It never overwrites: a known id fails with ErrAlreadyExists and a
// known key with ErrKeyTaken. The journal write, when configured, happens
// before the record becomes visible.
func (s *Store) Append(ctx context.Context, o Order) error {
	if o.ID == "" || o.UserID == "" {
		return fmt.Errorf("append order: missing id or user id")
	}
	u, err := s.reserve(o)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Record(ctx, JournalEntry{Type: EventOrderPlaced, Order: o}); err != nil {
			s.mu.Lock()
			delete(s.byID, o.ID)
			if o.IdempotencyKey != "" {
				delete(s.byKey, o.IdempotencyKey)
			}
			s.mu.Unlock()
			return fmt.Errorf("journal order %s: %w", o.ID, err)
		}
	}
	s.insertLocked(u, o)
	return nil
}

func (s *Store) reserve(o Order) (*userOrders, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[o.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, o.ID)
	}
	if o.IdempotencyKey != "" {
		if id, taken := s.byKey[o.IdempotencyKey]; taken {
			return nil, fmt.Errorf("%w: %q by %s", ErrKeyTaken, o.IdempotencyKey, id)
		}
		s.byKey[o.IdempotencyKey] = o.ID
	}
	s.byID[o.ID] = nil
	u, ok := s.byUser[o.UserID]
	if !ok {
		u = &userOrders{pos: make(map[string]int)}
		s.byUser[o.UserID] = u
	}
	return u, nil
}

// insertLocked publishes o; u.mu must be held.
func (s *Store) insertLocked(u *userOrders, o Order) {
	u.orders = append(u.orders, o.clone())
	u.pos[o.ID] = len(u.orders) - 1

	s.mu.Lock()
	s.byID[o.ID] = u
	s.mu.Unlock()
}

func (s *Store) owner(id string) (*userOrders, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok && u != nil
}

func (s *Store) ByID(id string) (Order, error) {
	u, ok := s.owner(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.orders[u.pos[id]].clone(), nil
}

// ByIdempotencyKey returns the visible order placed under key.
func (s *Store) ByIdempotencyKey(key string) (Order, bool) {
	s.mu.RLock()
	id, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return Order{}, false
	}
	o, err := s.ByID(id)
	return o, err == nil
}

// ByUser returns the user's orders in creation order; empty for unknown
// users.
func (s *Store) ByUser(userID string) []Order {
	s.mu.RLock()
	u, ok := s.byUser[userID]
	s.mu.RUnlock()
	if !ok {
		return []Order{}
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Order, 0, len(u.orders))
	for _, o := range u.orders {
		out = append(out, o.clone())
	}
	return out
}

// Cancel moves a Processing order to Cancelled and returns the updated
// record. Only one caller can win the transition.
func (s *Store) Cancel(ctx context.Context, id string) (Order, error) {
	u, ok := s.owner(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	i := u.pos[id]
	o := u.orders[i]
	if !CanTransition(o.Status, StatusCancelled) {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, o.Status)
	}
	o.Status = StatusCancelled
	if s.journal != nil {
		if err := s.journal.Record(ctx, JournalEntry{Type: EventOrderCancelled, Order: o}); err != nil {
			return Order{}, fmt.Errorf("journal cancel %s: %w", id, err)
		}
	}
	u.orders[i] = o
	return o.clone(), nil
}

// Replay applies a journaled entry without writing it back. Used on restore,
// in journal order.
func (s *Store) Replay(e JournalEntry) error {
	switch e.Type {
	case EventOrderPlaced:
		u, err := s.reserve(e.Order)
		if err != nil {
			return err
		}
		u.mu.Lock()
		defer u.mu.Unlock()
		s.insertLocked(u, e.Order)
		return nil
	case EventOrderCancelled:
		u, ok := s.owner(e.Order.ID)
		if !ok {
			return fmt.Errorf("replay cancel: %w: %s", ErrNotFound, e.Order.ID)
		}
		u.mu.Lock()
		defer u.mu.Unlock()
		u.orders[u.pos[e.Order.ID]].Status = StatusCancelled
		return nil
	default:
		return fmt.Errorf("replay: unknown entry type %q", e.Type)
	}
}

// Len is the number of stored orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.byID {
		if u != nil {
			n++
		}
	}
	return n
}

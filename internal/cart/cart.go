// Package cart keeps each user's shopping cart. Carts carry no stock
// guarantees; stock is only taken at checkout.
package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrMissingProduct  = errors.New("product_id is required")
)

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Store interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	// Add merges qty into the product's line and returns the updated cart.
	Add(ctx context.Context, userID, productID string, qty int) ([]Item, error)
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

func validate(productID string, qty int) error {
	if productID == "" {
		return ErrMissingProduct
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func sorted(m map[string]int) []Item {
	out := make([]Item, 0, len(m))
	for id, q := range m {
		out = append(out, Item{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]map[string]int)}
}

func (m *MemoryStore) Items(_ context.Context, userID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sorted(m.carts[userID]), nil
}

func (m *MemoryStore) Add(_ context.Context, userID, productID string, qty int) ([]Item, error) {
	if err := validate(productID, qty); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = make(map[string]int)
		m.carts[userID] = c
	}
	c[productID] += qty
	return sorted(c), nil
}

func (m *MemoryStore) Remove(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[userID]
	if _, ok := c[productID]; !ok {
		return ErrItemNotFound
	}
	delete(c, productID)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

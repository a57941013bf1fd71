// Package catalog is the read-only product catalog the order flow resolves
// prices and part attributes from.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/ariefcatur/go-pcparts-orders/internal/compat"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Socket      string          `json:"socket,omitempty"`
	MemoryType  string          `json:"memory_type,omitempty"`
	VRAM        string          `json:"vram,omitempty"`
}

// Part describes the product for compatibility checks.
func (p Product) Part() compat.PartDescriptor {
	return compat.PartDescriptor{Name: p.Category, Socket: p.Socket, MemoryType: p.MemoryType}
}

type Catalog struct {
	products map[string]Product
}

func New(products ...Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Get(id string) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// List returns products ordered by id, filtered by category when one is
// given (case-insensitive).
func (c *Catalog) List(category string) []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Default is the built-in catalog.
func Default() *Catalog {
	return New(
		Product{
			ID: "P001", Name: "AMD Ryzen 5 5600X", Category: "cpu",
			Price:       decimal.RequireFromString("199.99"),
			Description: "High-performance 6-core processor.",
			Socket:      "AM4",
		},
		Product{
			ID: "P002", Name: "NVIDIA GeForce RTX 4070", Category: "gpu",
			Price:       decimal.RequireFromString("599.99"),
			Description: "Next-gen ray tracing graphics card.",
			VRAM:        "12GB",
		},
		Product{
			ID: "P003", Name: "ASUS ROG B550-F", Category: "motherboard",
			Price:       decimal.RequireFromString("159.99"),
			Description: "ATX Motherboard with PCIe 4.0 support.",
			Socket:      "AM4",
			MemoryType:  "DDR4",
		},
		Product{
			ID: "P004", Name: "Intel Core i5-13600K", Category: "cpu",
			Price:       decimal.RequireFromString("289.99"),
			Description: "14-core hybrid desktop processor.",
			Socket:      "LGA1700",
		},
	)
}

// SeedStock is the stock provisioned for Default on a fresh start.
func SeedStock() map[string]int {
	return map[string]int{
		"P001": 50,
		"P002": 30,
		"P003": 75,
		"P004": 0,
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-pcparts-orders/internal/inventory"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the journal needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS order_events (
		seq         BIGSERIAL PRIMARY KEY,
		event_type  TEXT        NOT NULL,
		order_id    TEXT        NOT NULL,
		user_id     TEXT        NOT NULL,
		payload     JSONB       NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_events_user_idx ON order_events (user_id, seq)`,
	`CREATE TABLE IF NOT EXISTS stock_snapshots (
		product_id TEXT        PRIMARY KEY,
		quantity   BIGINT      NOT NULL CHECK (quantity >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		seq         BIGSERIAL PRIMARY KEY,
		product_id  TEXT        NOT NULL,
		delta       BIGINT      NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Journal is the durable side of the order store: an append-only event log
// plus stock levels kept current in the same transaction as each event.
type Journal struct{ DB DB }

func NewJournal(db DB) *Journal { return &Journal{DB: db} }

func (j *Journal) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := j.DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Record appends the entry and applies its stock delta atomically.
func (j *Journal) Record(ctx context.Context, e orders.JournalEntry) error {
	sign := 0
	switch e.Type {
	case orders.EventOrderPlaced:
		sign = -1
	case orders.EventOrderCancelled:
		sign = 1
	default:
		return fmt.Errorf("journal: unknown entry type %q", e.Type)
	}
	payload, err := json.Marshal(e.Order)
	if err != nil {
		return fmt.Errorf("journal: encode order: %w", err)
	}

	return inTx(ctx, j.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_events (event_type, order_id, user_id, payload)
			VALUES ($1, $2, $3, $4)`,
			e.Type, e.Order.ID, e.Order.UserID, payload,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		for _, d := range orders.Demands(e.Order.Items) {
			if err := applyDelta(ctx, tx, d.ProductID, sign*d.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordStockDelta logs a stock change made outside of an order and applies
// it to the snapshot in one transaction.
func (j *Journal) RecordStockDelta(ctx context.Context, productID string, delta int) error {
	return inTx(ctx, j.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_adjustments (product_id, delta) VALUES ($1, $2)`,
			productID, delta,
		); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
		return applyDelta(ctx, tx, productID, delta)
	})
}

func applyDelta(ctx context.Context, tx pgx.Tx, productID string, delta int) error {
	ct, err := tx.Exec(ctx, `
		UPDATE stock_snapshots SET quantity = quantity + $2, updated_at = now()
		WHERE product_id = $1`,
		productID, delta,
	)
	if err != nil {
		return fmt.Errorf("update stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("update stock %s: no snapshot row", productID)
	}
	return nil
}

// ProvisionStock inserts seed levels for products that have no snapshot yet.
func (j *Journal) ProvisionStock(ctx context.Context, seed map[string]int) error {
	ids := make([]string, 0, len(seed))
	for id := range seed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return inTx(ctx, j.DB, func(tx pgx.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(ctx, `
				INSERT INTO stock_snapshots (product_id, quantity) VALUES ($1, $2)
				ON CONFLICT (product_id) DO NOTHING`,
				id, seed[id],
			); err != nil {
				return fmt.Errorf("provision %s: %w", id, err)
			}
		}
		return nil
	})
}

func (j *Journal) LoadStock(ctx context.Context) ([]inventory.StockEntry, error) {
	rows, err := j.DB.Query(ctx, `SELECT product_id, quantity FROM stock_snapshots ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}
	defer rows.Close()

	var out []inventory.StockEntry
	for rows.Next() {
		var (
			id  string
			qty int64
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out = append(out, inventory.StockEntry{ProductID: id, Quantity: int(qty)})
	}
	return out, rows.Err()
}

// Replay feeds every journaled entry to fn in the order it was recorded.
func (j *Journal) Replay(ctx context.Context, fn func(orders.JournalEntry) error) (int, error) {
	rows, err := j.DB.Query(ctx, `SELECT event_type, payload FROM order_events ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			typ     string
			payload []byte
		)
		if err := rows.Scan(&typ, &payload); err != nil {
			return n, err
		}
		var o orders.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return n, fmt.Errorf("replay: decode event %d: %w", n+1, err)
		}
		if err := fn(orders.JournalEntry{Type: typ, Order: o}); err != nil {
			return n, fmt.Errorf("replay: apply event %d: %w", n+1, err)
		}
		n++
	}
	return n, rows.Err()
}

type RestoreStats struct {
	Products int
	Events   int
}

// Restore rebuilds the ledger from stock snapshots (provisioning seed on a
// fresh database) and the store from the event log.
func (j *Journal) Restore(ctx context.Context, seed map[string]int, ledger *inventory.Ledger, store *orders.Store) (RestoreStats, error) {
	if err := j.ProvisionStock(ctx, seed); err != nil {
		return RestoreStats{}, err
	}
	stock, err := j.LoadStock(ctx)
	if err != nil {
		return RestoreStats{}, err
	}
	for _, s := range stock {
		if err := ledger.Seed(s.ProductID, s.Quantity); err != nil {
			return RestoreStats{}, fmt.Errorf("restore stock %s: %w", s.ProductID, err)
		}
	}
	n, err := j.Replay(ctx, store.Replay)
	if err != nil {
		return RestoreStats{}, err
	}
	return RestoreStats{Products: len(stock), Events: n}, nil
}

func inTx(ctx context.Context, db DB, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

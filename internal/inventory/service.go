package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotRecorded means the ledger change could not be made durable and was
// undone.
var ErrNotRecorded = errors.New("stock change not recorded")

const defaultJournalTimeout = 2 * time.Second

// StockJournal persists stock changes made outside of an order.
type StockJournal interface {
	RecordStockDelta(ctx context.Context, productID string, delta int) error
}

// Service adjusts stock directly. With a journal every change is durable
// before it is reported, so a restore from snapshots sees it.
type Service struct {
	Ledger  *Ledger
	Journal StockJournal
	Timeout time.Duration
}

// Decrement takes qty units and returns the level left. A failed journal
// write puts the units back and returns ErrNotRecorded.
func (s *Service) Decrement(ctx context.Context, productID string, qty int) (int, error) {
	left, err := s.Ledger.Take(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	if s.Journal == nil {
		return left, nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultJournalTimeout
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Journal.RecordStockDelta(jctx, productID, -qty); err != nil {
		if rerr := s.Ledger.Release(productID, qty); rerr != nil {
			log.Error().Err(rerr).Str("product_id", productID).Int("qty", qty).Msg("undo decrement failed")
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrNotRecorded, productID, err)
	}
	log.Info().Str("product_id", productID).Int("qty", qty).Int("left", left).Msg("stock decremented")
	return left, nil
}

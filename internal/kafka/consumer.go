package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler returns nil only when the message is processed and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	maxAttempts = 3
	baseBackoff = 200 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	backoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit synchronously
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, backoff: baseBackoff}
}

// Start fetches until ctx is cancelled, fanning messages out to the worker
// pool. Messages with the same key always go to the same worker, so they are
// handled in partition order. A message that keeps failing is logged and
// committed so it cannot block the partition.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan *pending, c.workers)
	commits := newCommitTracker()

	for i := range queues {
		queues[i] = make(chan *pending, 1)
		jobs := queues[i]
		g.Go(func() error {
			for p := range jobs {
				if !c.handle(gctx, h, p.msg) {
					return nil
				}
				if err := commits.done(gctx, c.r, p); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					log.Error().Err(err).Int("partition", p.msg.Partition).Int64("offset", p.msg.Offset).Msg("commit failed")
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("fetch: %w", err)
			}
			p := commits.track(m)
			select {
			case queues[xxhash.Sum64(m.Key)%uint64(len(queues))] <- p:
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

type pending struct {
	msg  kafka.Message
	done bool
}

// commitTracker commits a partition only up to its oldest unfinished
// message, so a crash never skips work that was still in flight.
type commitTracker struct {
	mu     sync.Mutex
	queues map[int][]*pending
}

func newCommitTracker() *commitTracker {
	return &commitTracker{queues: make(map[int][]*pending)}
}

// track registers m in fetch order.
func (t *commitTracker) track(m kafka.Message) *pending {
	p := &pending{msg: m}
	t.mu.Lock()
	t.queues[m.Partition] = append(t.queues[m.Partition], p)
	t.mu.Unlock()
	return p
}

// done marks p handled and commits the longest finished prefix of its
// partition. Commits are serialized so offsets never move backwards.
func (t *commitTracker) done(ctx context.Context, r messageReader, p *pending) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p.done = true
	q := t.queues[p.msg.Partition]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	last := q[n-1].msg
	t.queues[p.msg.Partition] = q[n:]
	return r.CommitMessages(ctx, last)
}

// handle reports whether the offset should be committed; it is false only
// when ctx ended before the message was dealt with.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if attempt == maxAttempts {
			log.Error().Err(err).Int("attempts", attempt).Int("partition", m.Partition).Int64("offset", m.Offset).
				Msg("giving up on message")
			return true
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("handler failed, retrying")
		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
		}
	}
}

package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

var ErrProducerClosed = errors.New("producer closed")

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and writes them from one goroutine, so request
// handlers never wait on the broker.
type Producer struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{w: w, inbox: make(chan kafka.Message, buf), done: make(chan struct{})}
}

// Start runs the write loop until Close.
func (p *Producer) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Error().Err(err).Str("key", string(m.Key)).Str("event_type", Header(m, HeaderEventType)).
					Msg("kafka write failed")
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			log.Error().Err(err).Msg("kafka writer close")
		}
	}()
}

func (p *Producer) Publish(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishEvent implements orders.Publisher.
func (p *Producer) PublishEvent(ctx context.Context, ev orders.Envelope) error {
	m, err := EnvelopeMessage(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, m)
}

// Close stops accepting messages, flushes what is buffered and closes the
// writer. Safe to call more than once.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
	<-p.done
}

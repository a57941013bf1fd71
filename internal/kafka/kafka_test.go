package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	err    error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testEnvelope(t *testing.T) orders.Envelope {
	t.Helper()
	ev, err := orders.NewEnvelope(orders.EventOrderPlaced, "order-api", orders.Order{
		ID:          "ord-1",
		UserID:      "u1",
		Items:       []orders.LineItem{{ProductID: "P001", Quantity: 1, UnitPrice: decimal.RequireFromString("199.99")}},
		TotalAmount: decimal.RequireFromString("199.99"),
		Status:      orders.StatusProcessing,
	}, time.Now())
	require.NoError(t, err)
	return ev
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16)
	p.Start()

	ev := testEnvelope(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.PublishEvent(context.Background(), ev))
	}
	p.Close()
	p.Close()

	assert.True(t, w.closed)
	require.Len(t, w.msgs, 5)
	assert.Equal(t, []byte("ord-1"), w.msgs[0].Key)
	assert.Equal(t, orders.EventOrderPlaced, Header(w.msgs[0], HeaderEventType))
	assert.Equal(t, "1", Header(w.msgs[0], HeaderEventVersion))
	assert.False(t, w.msgs[0].Time.IsZero())

	assert.ErrorIs(t, p.PublishEvent(context.Background(), ev), ErrProducerClosed)
}

func TestProducer_WriteErrorsDoNotStopLoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, 4)
	p.Start()

	require.NoError(t, p.Publish(context.Background(), kafka.Message{Key: []byte("a")}))
	require.NoError(t, p.Publish(context.Background(), kafka.Message{Key: []byte("b")}))
	p.Close()

	assert.Len(t, w.msgs, 2)
}

func TestProducer_PublishRespectsContext(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1)
	// Not started: the buffer fills after one message.
	require.NoError(t, p.Publish(context.Background(), kafka.Message{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Publish(ctx, kafka.Message{}), context.DeadlineExceeded)

	p.Start()
	p.Close()
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ev := testEnvelope(t)
	m, err := EnvelopeMessage(ev)
	require.NoError(t, err)

	got, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)

	payload, err := UnwrapPayload[orders.OrderPlacedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "199.99", payload.TotalAmount.StringFixed(2))

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(offsets ...int64) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(offsets))}
	for _, o := range offsets {
		r.msgs <- kafka.Message{Offset: o, Value: []byte("v")}
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) lastCommit() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) == 0 {
		return -1
	}
	return r.committed[len(r.committed)-1]
}

func (r *fakeReader) commitLog() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	r := newFakeReader(1, 2, 3, 4)
	c := newConsumer(r, 2)
	c.backoff = time.Millisecond

	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 3 {
			return errors.New("poison")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return r.lastCommit() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts[1])
	assert.Equal(t, maxAttempts, attempts[3])
	assert.True(t, r.closed)
}

func TestConsumer_KeepsPerKeyOrder(t *testing.T) {
	keys := []string{"ord-a", "ord-b", "ord-c"}
	const total = 30
	r := &fakeReader{msgs: make(chan kafka.Message, total)}
	for i := 0; i < total; i++ {
		r.msgs <- kafka.Message{Offset: int64(i), Key: []byte(keys[i%len(keys)])}
	}
	c := newConsumer(r, 4)

	var (
		mu   sync.Mutex
		seen = map[string][]int64{}
	)
	h := func(_ context.Context, m kafka.Message) error {
		time.Sleep(time.Duration(m.Offset%3) * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		seen[string(m.Key)] = append(seen[string(m.Key)], m.Offset)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return r.lastCommit() == total-1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		require.Len(t, seen[k], total/len(keys))
		assert.IsIncreasing(t, seen[k], k)
	}
	assert.IsIncreasing(t, r.commitLog())
}

func TestCommitTracker_CommitsFinishedPrefixOnly(t *testing.T) {
	r := newFakeReader()
	tr := newCommitTracker()
	ctx := context.Background()
	p1 := tr.track(kafka.Message{Partition: 0, Offset: 1})
	p2 := tr.track(kafka.Message{Partition: 0, Offset: 2})
	p3 := tr.track(kafka.Message{Partition: 0, Offset: 3})
	other := tr.track(kafka.Message{Partition: 1, Offset: 9})

	require.NoError(t, tr.done(ctx, r, p3))
	assert.Empty(t, r.commitLog(), "offset 3 must wait for 1 and 2")

	require.NoError(t, tr.done(ctx, r, p1))
	assert.Equal(t, []int64{1}, r.commitLog())

	require.NoError(t, tr.done(ctx, r, other))
	require.NoError(t, tr.done(ctx, r, p2))
	assert.Equal(t, []int64{1, 9, 3}, r.commitLog())
}

package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLedger(t *testing.T, stock map[string]int) *Ledger {
	t.Helper()
	l := NewLedger(50 * time.Millisecond)
	for id, qty := range stock {
		require.NoError(t, l.Seed(id, qty))
	}
	return l
}

func TestLedger_GetUnknownProduct(t *testing.T) {
	l := newTestLedger(t, nil)

	_, err := l.Get("P404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_ReserveAndRelease(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P001": 5})
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, "P001", 3))
	qty, err := l.Get("P001")
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	require.NoError(t, l.Release("P001", 3))
	qty, _ = l.Get("P001")
	assert.Equal(t, 5, qty)
}

func TestLedger_ReserveInsufficient(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P004": 1})

	err := l.Reserve(context.Background(), "P004", 2)

	require.ErrorIs(t, err, ErrInsufficientStock)
	var shortage *Shortage
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, Shortage{ProductID: "P004", Required: 2, Available: 1}, *shortage)
	qty, _ := l.Get("P004")
	assert.Equal(t, 1, qty)
}

func TestLedger_ReserveValidation(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P001": 1})
	ctx := context.Background()

	assert.ErrorIs(t, l.Reserve(ctx, "P001", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, l.Reserve(ctx, "P001", -1), ErrInvalidQuantity)
	assert.ErrorIs(t, l.Reserve(ctx, "nope", 1), ErrNotFound)
	assert.ErrorIs(t, l.Release("nope", 1), ErrNotFound)
	assert.ErrorIs(t, l.Release("P001", 0), ErrInvalidQuantity)
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	const stock = 50
	l := newTestLedger(t, map[string]int{"P001": stock})
	l.lockTimeout = 5 * time.Second

	var (
		wg       sync.WaitGroup
		reserved atomic.Int64
		short    atomic.Int64
		start    = make(chan struct{})
	)
	// 40 workers asking for 1..3 units each: 79 units requested against 50.
	for i := 0; i < 40; i++ {
		qty := i%3 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := l.Reserve(context.Background(), "P001", qty)
			switch {
			case err == nil:
				reserved.Add(int64(qty))
			case errors.Is(err, ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	left, err := l.Get("P001")
	require.NoError(t, err)
	assert.LessOrEqual(t, reserved.Load(), int64(stock))
	assert.Equal(t, stock-int(reserved.Load()), left)
	assert.GreaterOrEqual(t, left, 0)
	assert.Positive(t, short.Load())
}

func TestLedger_ReserveTimesOutOnHeldLock(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P001": 5, "P002": 5})
	e, _ := l.lookup("P001")
	lock(e)
	defer e.sem.Release(1)

	err := l.Reserve(context.Background(), "P001", 1)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.NotErrorIs(t, err, ErrInsufficientStock)

	// A different product is not blocked by the held lock.
	assert.NoError(t, l.Reserve(context.Background(), "P002", 1))
}

func TestLedger_ReleaseWaitsForLock(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P001": 0})
	e, _ := l.lookup("P001")
	lock(e)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, l.Release("P001", 2))
	}()

	select {
	case <-done:
		t.Fatal("release should wait for the product lock")
	case <-time.After(20 * time.Millisecond):
	}
	e.sem.Release(1)
	<-done

	qty, _ := l.Get("P001")
	assert.Equal(t, 2, qty)
}

func TestLedger_SnapshotSorted(t *testing.T) {
	l := newTestLedger(t, map[string]int{"P003": 75, "P001": 50, "P002": 30})
	require.NoError(t, l.Seed("P001", 49))

	assert.Equal(t, []StockEntry{
		{ProductID: "P001", Quantity: 49},
		{ProductID: "P002", Quantity: 30},
		{ProductID: "P003", Quantity: 75},
	}, l.Snapshot())
}

func TestLedger_SeedRejectsNegative(t *testing.T) {
	l := NewLedger(0)
	assert.ErrorIs(t, l.Seed("P001", -1), ErrInvalidQuantity)
	assert.Equal(t, DefaultLockTimeout, l.lockTimeout)
}

func TestLedger_TakeReportsLevelUnderLock(t *testing.T) {
	l := NewLedger(5 * time.Second)
	require.NoError(t, l.Seed("P001", 100))
	ctx := context.Background()

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			left, err := l.Take(ctx, "P001", 2)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[left], "level %d reported twice", left)
			seen[left] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for left := 0; left < 100; left += 2 {
		assert.True(t, seen[left], "level %d missing", left)
	}
}

package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stockJournalMock struct{ mock.Mock }

func (j *stockJournalMock) RecordStockDelta(ctx context.Context, productID string, delta int) error {
	return j.Called(ctx, productID, delta).Error(0)
}

func TestService_DecrementJournalsDelta(t *testing.T) {
	j := &stockJournalMock{}
	j.On("RecordStockDelta", mock.Anything, "P001", -5).Return(nil).Once()
	s := &Service{Ledger: newTestLedger(t, map[string]int{"P001": 50}), Journal: j}

	left, err := s.Decrement(context.Background(), "P001", 5)

	require.NoError(t, err)
	assert.Equal(t, 45, left)
	j.AssertExpectations(t)
}

func TestService_JournalFailureUndoesDecrement(t *testing.T) {
	j := &stockJournalMock{}
	j.On("RecordStockDelta", mock.Anything, "P001", -5).Return(errors.New("db down"))
	l := newTestLedger(t, map[string]int{"P001": 50})
	s := &Service{Ledger: l, Journal: j}

	_, err := s.Decrement(context.Background(), "P001", 5)

	assert.ErrorIs(t, err, ErrNotRecorded)
	qty, _ := l.Get("P001")
	assert.Equal(t, 50, qty)
}

func TestService_RejectedDecrementIsNotJournaled(t *testing.T) {
	j := &stockJournalMock{}
	s := &Service{Ledger: newTestLedger(t, map[string]int{"P001": 2}), Journal: j}

	_, err := s.Decrement(context.Background(), "P001", 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, err = s.Decrement(context.Background(), "P404", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	j.AssertNotCalled(t, "RecordStockDelta", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_WithoutJournal(t *testing.T) {
	s := &Service{Ledger: newTestLedger(t, map[string]int{"P001": 2})}

	left, err := s.Decrement(context.Background(), "P001", 2)

	require.NoError(t, err)
	assert.Zero(t, left)
}

package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacker/internal/orders"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	o := &orders.Order{
		ID:    3,
		Level: orders.LevelContract,
		Key:   orders.ContractKey("SP500", "202412"),
		Trade: decimal.NewFromInt(37),
		Fill:  decimal.NewFromInt(4),
	}

	require.NoError(t, s.Append(orders.LevelContract, o, orders.StatePending, orders.StateActive))
	require.NoError(t, s.Append(orders.LevelContract, o, orders.StateActive, orders.StatePartiallyFilled))

	records, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "partially_filled", records[0].ToState)
	assert.Equal(t, "active", records[1].ToState)
	assert.Equal(t, int64(3), records[0].OrderID)
	assert.Equal(t, "SP500", records[0].Instrument)
	assert.Equal(t, "202412", records[0].Contract)
	assert.Equal(t, "37", records[0].Trade)
	assert.Greater(t, records[0].Seq, records[1].Seq)
}

func TestRecentHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	o := &orders.Order{ID: 1, Level: orders.LevelInstrument, Key: orders.InstrumentKey("SP500")}
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(orders.LevelInstrument, o, orders.StatePending, orders.StateActive))
	}

	records, err := s.Recent(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestClosedStoreRefusesWrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	o := &orders.Order{ID: 1, Level: orders.LevelInstrument, Key: orders.InstrumentKey("SP500")}
	assert.Error(t, s.Append(orders.LevelInstrument, o, orders.StatePending, orders.StateActive))
	_, err := s.Recent(context.Background(), 1)
	assert.Error(t, err)
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

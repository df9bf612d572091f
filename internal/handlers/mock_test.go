package handlers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stacker/internal/broker"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/stack"
)

type MockConnection struct {
	mock.Mock
	fills chan broker.Fill
}

func NewMockConnection() *MockConnection {
	return &MockConnection{fills: make(chan broker.Fill, 16)}
}

func (m *MockConnection) Name() string { return "mock" }

func (m *MockConnection) Submit(ctx context.Context, req broker.SubmitRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockConnection) Cancel(ctx context.Context, brokerOrderID string) error {
	args := m.Called(ctx, brokerOrderID)
	return args.Error(0)
}

func (m *MockConnection) Positions(ctx context.Context) (map[orders.Key]broker.PositionReading, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[orders.Key]broker.PositionReading), args.Error(1)
}

func (m *MockConnection) Fills() <-chan broker.Fill { return m.fills }

type MockBreakSink struct {
	mock.Mock
}

func (m *MockBreakSink) RecordBreak(ctx context.Context, b PositionBreak) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func testCalendar() *rollcal.StaticProvider {
	return rollcal.NewStaticProvider(map[string]orders.RollParameters{
		"SP500": {
			PriceContract: "202412",
			CarryContract: "202503",
			Class:         orders.ClassFuture,
			Account:       "main",
			SizeFactor:    1,
		},
		"GOLD": {
			PriceContract: "202410",
			CarryContract: "202412",
			Class:         orders.ClassFuture,
			Account:       "main",
			SizeFactor:    0.1,
		},
		"EUROSTX": {
			PriceContract: "202412",
			Class:         orders.ClassSpreadBet,
			Account:       "main",
			SizeFactor:    1,
		},
	})
}

func putInstrumentOrder(t *testing.T, s *stack.Set, code string, trade int64) int64 {
	t.Helper()
	id, err := s.Instrument.PutOrder(&orders.Order{
		Level: orders.LevelInstrument,
		Key:   orders.InstrumentKey(code),
		Type:  orders.TypeMarket,
		Trade: decimal.NewFromInt(trade),
	})
	require.NoError(t, err)
	return id
}

func putContractOrder(t *testing.T, s *stack.Set, code, contract string, trade int64) int64 {
	t.Helper()
	id, err := s.Contract.PutOrder(&orders.Order{
		Level: orders.LevelContract,
		Key:   orders.ContractKey(code, contract),
		Type:  orders.TypeMarket,
		Trade: decimal.NewFromInt(trade),
	})
	require.NoError(t, err)
	return id
}

func mustModify(t *testing.T, st *stack.Stack, id int64, fn func(*orders.Order) error) {
	t.Helper()
	_, err := st.LockOrderByID(id)
	require.NoError(t, err)
	require.NoError(t, st.ModifyOrder(id, fn))
	st.UnlockOrderByID(id)
}

// buildHierarchy wires instrument -> contract -> broker orders for one
// instrument, all active, and returns the three ids.
func buildHierarchy(t *testing.T, s *stack.Set, code, contract, account, venueID string, trade int64) (int64, int64, int64) {
	t.Helper()
	iid := putInstrumentOrder(t, s, code, trade)
	cid := putContractOrder(t, s, code, contract, trade)
	bid, err := s.Broker.PutOrder(&orders.Order{
		Level:         orders.LevelBroker,
		Key:           orders.BrokerKey(code, contract, account),
		Type:          orders.TypeMarket,
		Trade:         decimal.NewFromInt(trade),
		State:         orders.StateActive,
		ParentID:      cid,
		BrokerOrderID: venueID,
	})
	require.NoError(t, err)

	mustModify(t, s.Instrument, iid, func(o *orders.Order) error {
		o.AddChild(cid)
		o.State = orders.StateActive
		return nil
	})
	mustModify(t, s.Contract, cid, func(o *orders.Order) error {
		o.ParentID = iid
		o.AddChild(bid)
		o.State = orders.StateActive
		return nil
	})
	return iid, cid, bid
}

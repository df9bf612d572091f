package handlers

import (
	"context"
	"errors"

	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/stack"
)

// Spawner turns pending instrument orders into contract orders. It is
// idempotent: an instrument order with children, or whose chosen contract
// key already has a working contract order, is skipped.
type Spawner struct {
	Stacks   *stack.Set
	Calendar rollcal.Provider
	Rolls    *RollTracker
}

func NewSpawner(stacks *stack.Set, calendar rollcal.Provider, rolls *RollTracker) *Spawner {
	return &Spawner{Stacks: stacks, Calendar: calendar, Rolls: rolls}
}

// Run performs one spawning pass.
func (s *Spawner) Run(ctx context.Context) {
	if s == nil || s.Stacks == nil || s.Calendar == nil {
		return
	}
	metrics.HandlerPasses.WithLabelValues("spawn").Inc()
	for _, io := range s.Stacks.Instrument.ListActive() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if io.State != orders.StatePending || io.HasChildren() {
			continue
		}
		s.spawnOne(io.ID)
	}
}

func (s *Spawner) spawnOne(id int64) {
	io, err := s.Stacks.Instrument.LockOrderByID(id)
	if err != nil {
		logModifyErr("spawn: lock", id, err)
		return
	}
	defer s.Stacks.Instrument.UnlockOrderByID(id)

	// Re-validate under the lock: another pass may have spawned already.
	if io.State != orders.StatePending || io.HasChildren() {
		return
	}

	params, err := s.Calendar.Parameters(io.Key.Instrument)
	if err != nil {
		// Collaborator unavailable: leave pending, retry next cycle.
		logger.Debugf("spawn: %s roll parameters unavailable: %v", io.Key.Instrument, err)
		return
	}

	contract := s.chooseContract(io.Key.Instrument, params)
	if contract == "" {
		logger.Warnf("spawn: %s has no tradeable contract", io.Key.Instrument)
		return
	}

	key := orders.ContractKey(io.Key.Instrument, contract)
	if existing, findErr := s.Stacks.Contract.FindOrderByKey(key); findErr == nil {
		logger.Warnf("spawn: %s skipped, working contract order %d exists for %s",
			io.Key.Instrument, existing.ID, key)
		return
	}

	trade := io.Remaining()
	if trade.IsZero() {
		return
	}
	if err := s.Stacks.CheckAllocation(io, trade); err != nil {
		logModifyErr("spawn: allocation", id, err)
		return
	}

	child := &orders.Order{
		Level:      orders.LevelContract,
		Key:        key,
		Type:       io.Type,
		Subtype:    io.Subtype,
		Trade:      trade,
		LimitPrice: io.LimitPrice,
		ParentID:   io.ID,
	}
	childID, err := s.Stacks.Contract.PutOrder(child)
	if err != nil {
		if errors.Is(err, orders.ErrDuplicateKey) {
			logger.Warnf("spawn: %s duplicate contract order for %s", io.Key.Instrument, key)
			return
		}
		logModifyErr("spawn: put contract order", id, err)
		return
	}

	err = s.Stacks.Instrument.ModifyOrder(id, func(o *orders.Order) error {
		o.AddChild(childID)
		o.State = orders.StateActive
		return nil
	})
	if err != nil {
		logModifyErr("spawn: activate parent", id, err)
		return
	}
	metrics.OrdersSpawned.Inc()
	logger.Infof("spawn: %s -> contract %s trade=%s parent=%d child=%d",
		io.Key.Instrument, key, trade, id, childID)
}

// chooseContract applies the roll tie-break: the currently held (or
// priced) contract normally, the roll target exclusively while a roll is
// in progress.
func (s *Spawner) chooseContract(instrument string, params orders.RollParameters) string {
	if s.Rolls != nil {
		st := s.Rolls.State(instrument)
		if st.Status == orders.RollInProgress {
			return params.PriceContract
		}
		if st.HeldContract != "" {
			return st.HeldContract
		}
	}
	return params.PriceContract
}

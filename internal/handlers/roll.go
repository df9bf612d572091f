package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/stack"
)

// RollTracker holds the per-instrument roll state shared between the roll
// handler (which owns transitions) and the spawner (which reads status to
// pick contracts).
type RollTracker struct {
	mu     sync.RWMutex
	states map[string]orders.RollState
}

func NewRollTracker() *RollTracker {
	return &RollTracker{states: make(map[string]orders.RollState)}
}

func (t *RollTracker) State(instrument string) orders.RollState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[instrument]
	if !ok {
		return orders.RollState{Instrument: instrument, Status: orders.RollNotNeeded}
	}
	return st
}

func (t *RollTracker) Status(instrument string) orders.RollStatus {
	return t.State(instrument).Status
}

func (t *RollTracker) set(st orders.RollState) {
	st.UpdatedAt = time.Now()
	t.mu.Lock()
	t.states[st.Instrument] = st
	t.mu.Unlock()
}

// States returns a snapshot of every tracked instrument.
func (t *RollTracker) States() []orders.RollState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]orders.RollState, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, st)
	}
	return out
}

// RollHandler recomputes roll state each cycle and, when a roll becomes
// required, places a force-roll instrument order with two linked contract
// legs. At most one roll is ever in flight per instrument.
type RollHandler struct {
	Stacks   *stack.Set
	Calendar rollcal.Provider
	Tracker  *RollTracker
}

func NewRollHandler(stacks *stack.Set, calendar rollcal.Provider, tracker *RollTracker) *RollHandler {
	return &RollHandler{Stacks: stacks, Calendar: calendar, Tracker: tracker}
}

// Run performs one roll pass over every configured instrument.
func (h *RollHandler) Run(ctx context.Context) {
	if h == nil || h.Stacks == nil || h.Calendar == nil || h.Tracker == nil {
		return
	}
	metrics.HandlerPasses.WithLabelValues("roll").Inc()
	for _, instrument := range h.Calendar.Instruments() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		h.runInstrument(ctx, instrument)
	}
	metrics.SetRollsInProgress(h.countInProgress())
}

func (h *RollHandler) runInstrument(ctx context.Context, instrument string) {
	params, err := h.Calendar.Parameters(instrument)
	if err != nil {
		logger.Debugf("roll: %s parameters unavailable: %v", instrument, err)
		return
	}
	held, position := h.heldContract(instrument)
	prev := h.Tracker.State(instrument)

	next := orders.RollState{
		Instrument:    instrument,
		HeldContract:  held,
		PriceContract: params.PriceContract,
		CarryContract: params.CarryContract,
		Status:        orders.RollNotNeeded,
	}

	switch {
	case position.IsZero() || held == "" || held == params.PriceContract:
		if prev.Status == orders.RollInProgress {
			// Old contract is flat: the roll finished.
			next.Status = orders.RollCompleted
			logger.Infof("roll: %s completed, now holding %s", instrument, held)
		}
	case prev.Status == orders.RollInProgress:
		next.Status = orders.RollInProgress
	case params.RollWindow:
		next.Status = orders.RollRequired
	}

	if next.Status == orders.RollRequired {
		if h.oldContractBusy(instrument, held) {
			logger.Infof("roll: %s deferred, unresolved broker activity on %s", instrument, held)
			h.Tracker.set(next)
			return
		}
		if h.placeRollOrders(instrument, held, params, position) {
			next.Status = orders.RollInProgress
		}
	}
	h.Tracker.set(next)
}

// heldContract finds the contract carrying the instrument's net position.
// With positions split across contracts mid-roll, the non-priced contract
// counts as held until it is flat; ties between non-priced contracts go
// to the earliest contract date so leg selection is stable across cycles.
func (h *RollHandler) heldContract(instrument string) (string, decimal.Decimal) {
	params, err := h.Calendar.Parameters(instrument)
	var priced string
	if err == nil {
		priced = params.PriceContract
	}
	held := ""
	qty := decimal.Zero
	for key, pos := range h.Stacks.ImpliedPositions() {
		if key.Instrument != instrument || pos.IsZero() {
			continue
		}
		switch {
		case held == "":
			held, qty = key.Contract, pos
		case key.Contract == priced:
			// keep the non-priced candidate
		case held == priced || key.Contract < held:
			held, qty = key.Contract, pos
		}
	}
	return held, qty
}

// oldContractBusy reports unresolved broker-order activity on a contract.
func (h *RollHandler) oldContractBusy(instrument, contract string) bool {
	if contract == "" {
		return false
	}
	for _, o := range h.Stacks.Broker.ListActive() {
		if o.Key.Instrument == instrument && o.Key.Contract == contract && o.State.Working() {
			return true
		}
	}
	return false
}

// placeRollOrders creates the zero-net instrument order and its two
// contract legs. Returns true only when the whole structure is on the
// stacks.
func (h *RollHandler) placeRollOrders(instrument, held string, params orders.RollParameters, position decimal.Decimal) bool {
	parent := &orders.Order{
		Level:   orders.LevelInstrument,
		Key:     orders.InstrumentKey(instrument),
		Type:    orders.TypeMarket,
		Subtype: orders.SubtypeRoll,
		Trade:   decimal.Zero,
	}
	// Hold the parent's lock from creation through linking so a
	// concurrent handler pass cannot grab it before the legs are wired.
	parentID, err := h.Stacks.Instrument.PutOrderLocked(parent)
	if err != nil {
		logModifyErr("roll: put instrument order", 0, err)
		return false
	}
	defer h.Stacks.Instrument.UnlockOrderByID(parentID)

	closeLeg := &orders.Order{
		Level:    orders.LevelContract,
		Key:      orders.ContractKey(instrument, held),
		Type:     orders.TypeMarket,
		Subtype:  orders.SubtypeRoll,
		Trade:    position.Neg(),
		ParentID: parentID,
	}
	openLeg := &orders.Order{
		Level:    orders.LevelContract,
		Key:      orders.ContractKey(instrument, params.PriceContract),
		Type:     orders.TypeMarket,
		Subtype:  orders.SubtypeRoll,
		Trade:    position,
		ParentID: parentID,
	}

	closeID, err := h.Stacks.Contract.PutOrder(closeLeg)
	if err != nil {
		logModifyErr("roll: put close leg", parentID, err)
		h.abandonRollParent(parentID)
		return false
	}
	openID, err := h.Stacks.Contract.PutOrder(openLeg)
	if err != nil {
		logModifyErr("roll: put open leg", parentID, err)
		h.cancelLeg(closeID)
		h.abandonRollParent(parentID)
		return false
	}

	err = h.Stacks.Instrument.ModifyOrder(parentID, func(o *orders.Order) error {
		o.AddChild(closeID)
		o.AddChild(openID)
		o.State = orders.StateActive
		return nil
	})
	if err != nil {
		logModifyErr("roll: activate parent", parentID, err)
		h.cancelLeg(closeID)
		h.cancelLeg(openID)
		h.abandonRollParent(parentID)
		return false
	}
	logger.Infof("roll: %s forced roll placed close=%s/%s open=%s/%s qty=%s",
		instrument, instrument, held, instrument, params.PriceContract, position)
	metrics.RollsStarted.Inc()
	return true
}

func (h *RollHandler) cancelLeg(id int64) {
	if _, err := h.Stacks.Contract.LockOrderByID(id); err != nil {
		return
	}
	defer h.Stacks.Contract.UnlockOrderByID(id)
	err := h.Stacks.Contract.ModifyOrder(id, func(o *orders.Order) error {
		o.State = orders.StateCancelled
		return nil
	})
	logModifyErr("roll: cancel leg", id, err)
}

// abandonRollParent cancels a half-placed roll parent. The caller holds
// the parent's lock.
func (h *RollHandler) abandonRollParent(id int64) {
	err := h.Stacks.Instrument.ModifyOrder(id, func(o *orders.Order) error {
		o.State = orders.StateCancelled
		return nil
	})
	logModifyErr("roll: abandon parent", id, err)
}

func (h *RollHandler) countInProgress() int {
	n := 0
	for _, st := range h.Tracker.States() {
		if st.Status == orders.RollInProgress {
			n++
		}
	}
	return n
}

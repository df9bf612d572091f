package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/stack"
)

const seenFillTTL = time.Hour

// FillConsumer drains the venue's fill notifications and applies them up
// the order hierarchy. Delivery is at-least-once, so applications are
// idempotent twice over: notification ids are deduped, and fills carry
// cumulative quantities merged monotonically.
type FillConsumer struct {
	Stacks   *stack.Set
	Broker   broker.Connection
	Controls *ControlsRegistry

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewFillConsumer(stacks *stack.Set, conn broker.Connection, controls *ControlsRegistry) *FillConsumer {
	return &FillConsumer{
		Stacks:   stacks,
		Broker:   conn,
		Controls: controls,
		seen:     make(map[string]time.Time),
	}
}

// Run consumes fills until the context ends or the channel closes.
func (c *FillConsumer) Run(ctx context.Context) {
	if c == nil || c.Stacks == nil || c.Broker == nil {
		return
	}
	fills := c.Broker.Fills()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fills:
			if !ok {
				return
			}
			c.Apply(f)
		}
	}
}

// Apply processes one notification. Exposed for tests and replay.
func (c *FillConsumer) Apply(f broker.Fill) {
	if c.duplicate(f.NotificationID) {
		logger.Debugf("fills: duplicate notification %s ignored", f.NotificationID)
		metrics.FillsDeduped.Inc()
		return
	}

	bo := c.findBrokerOrder(f.BrokerOrderID)
	if bo == nil {
		logger.Warnf("fills: no working broker order for venue id %s", f.BrokerOrderID)
		return
	}

	applied, contractID := c.applyToBrokerOrder(bo.ID, f)
	if !applied {
		return
	}
	metrics.FillsApplied.Inc()

	if contractID > 0 {
		instrumentID := c.refreshParent(c.Stacks.Contract, c.Stacks.Broker, contractID)
		if instrumentID > 0 {
			c.refreshParent(c.Stacks.Instrument, c.Stacks.Contract, instrumentID)
		}
	}
}

func (c *FillConsumer) duplicate(notificationID string) bool {
	if notificationID == "" {
		return false
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[notificationID]; ok {
		return true
	}
	c.seen[notificationID] = now
	if len(c.seen) > 4096 {
		for id, at := range c.seen {
			if now.Sub(at) > seenFillTTL {
				delete(c.seen, id)
			}
		}
	}
	return false
}

func (c *FillConsumer) findBrokerOrder(brokerOrderID string) *orders.Order {
	for _, o := range c.Stacks.Broker.ListActive() {
		if o.BrokerOrderID == brokerOrderID {
			return o
		}
	}
	return nil
}

// applyToBrokerOrder merges the cumulative fill into the broker order.
// Returns whether anything changed and the parent contract id.
func (c *FillConsumer) applyToBrokerOrder(id int64, f broker.Fill) (bool, int64) {
	bo, err := c.Stacks.Broker.LockOrderByID(id)
	if err != nil {
		logModifyErr("fills: lock broker order", id, err)
		return false, 0
	}
	defer c.Stacks.Broker.UnlockOrderByID(id)

	if f.Filled.Abs().LessThanOrEqual(bo.Fill.Abs()) {
		// Stale or replayed cumulative quantity.
		return false, 0
	}
	if f.Filled.Abs().GreaterThan(bo.Trade.Abs()) {
		logger.Errorf("fills: venue reports fill %s beyond trade %s for order %d",
			f.Filled, bo.Trade, id)
		return false, 0
	}

	err = c.Stacks.Broker.ModifyOrder(id, func(o *orders.Order) error {
		o.Fill = f.Filled
		if o.Fill.Abs().Equal(o.Trade.Abs()) {
			o.State = orders.StateFilled
		} else if o.State == orders.StateActive {
			o.State = orders.StatePartiallyFilled
		}
		return nil
	})
	if err != nil {
		logModifyErr("fills: apply", id, err)
		return false, 0
	}
	if f.Filled.Abs().Equal(bo.Trade.Abs()) && c.Controls != nil {
		c.Controls.Drop(id)
	}
	logger.Infof("fills: broker order %d filled=%s/%s", id, f.Filled, bo.Trade)
	return true, bo.ParentID
}

// refreshParent recomputes a parent's fill as the sum of its immediate
// children's fills and advances its state. Lock contention defers the
// refresh to the next notification.
func (c *FillConsumer) refreshParent(parents, children *stack.Stack, parentID int64) int64 {
	po, err := parents.LockOrderByID(parentID)
	if err != nil {
		logModifyErr("fills: lock parent", parentID, err)
		return 0
	}
	defer parents.UnlockOrderByID(parentID)
	if po.State.Terminal() {
		return 0
	}

	total := decimal.Zero
	allDone := len(po.ChildrenIDs) > 0
	for _, childID := range po.ChildrenIDs {
		child, getErr := children.GetOrder(childID)
		if getErr != nil {
			allDone = false
			continue
		}
		total = total.Add(child.Fill)
		if !child.State.Terminal() {
			allDone = false
		}
	}

	err = parents.ModifyOrder(parentID, func(o *orders.Order) error {
		switch {
		case o.Trade.IsZero():
			// Roll parents keep a zero fill; their legs carry the
			// quantities. They complete when every leg has finished.
			if allDone {
				o.State = orders.StateFilled
			}
			return nil
		case total.Abs().Equal(o.Trade.Abs()):
			o.State = orders.StateFilled
		case !total.IsZero() && o.State == orders.StateActive:
			o.State = orders.StatePartiallyFilled
		}
		o.Fill = total
		return nil
	})
	if err != nil {
		logModifyErr("fills: refresh parent", parentID, err)
		return 0
	}
	return po.ParentID
}

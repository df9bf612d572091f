package handlers

import (
	"context"
	"fmt"
	"time"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/orders"
	"stacker/internal/stack"
)

// Canceller services operator-initiated cancels from the query surface.
// A pending order at any level can be cancelled in place. A broker-level
// order is cancelled at the venue first; the stacks only record the
// cancel once the venue acknowledges. Parents with live children must
// have their children cancelled first; cancelling a parent out from
// under a working broker order would desynchronize the hierarchy.
type Canceller struct {
	Stacks        *stack.Set
	Broker        broker.Connection
	Controls      *ControlsRegistry
	BrokerTimeout time.Duration
}

func NewCanceller(stacks *stack.Set, conn broker.Connection, controls *ControlsRegistry) *Canceller {
	return &Canceller{
		Stacks:        stacks,
		Broker:        conn,
		Controls:      controls,
		BrokerTimeout: defaultBrokerTimeout,
	}
}

func (c *Canceller) Cancel(ctx context.Context, level orders.Level, id int64) error {
	st := c.Stacks.ByLevel(level)
	if st == nil {
		return fmt.Errorf("unknown stack level %q", level)
	}
	o, err := st.LockOrderByID(id)
	if err != nil {
		return err
	}
	defer st.UnlockOrderByID(id)

	if o.State.Terminal() {
		return orders.ErrTerminalState
	}
	if o.Level != orders.LevelBroker && o.HasChildren() && c.hasWorkingChildren(o) {
		return fmt.Errorf("order %d has working children, cancel those first", id)
	}

	if o.Level == orders.LevelBroker && o.BrokerOrderID != "" {
		if err := c.cancelAtVenue(ctx, o); err != nil {
			return err
		}
	}

	err = st.ModifyOrder(id, func(mo *orders.Order) error {
		mo.State = orders.StateCancelled
		return nil
	})
	if err != nil {
		return err
	}
	if o.Level == orders.LevelBroker && c.Controls != nil {
		c.Controls.Drop(id)
	}
	logger.Infof("cancel: %s order %d cancelled by operator", level, id)
	return nil
}

func (c *Canceller) hasWorkingChildren(o *orders.Order) bool {
	for _, child := range c.Stacks.ChildrenOf(o) {
		if child.State.Working() {
			return true
		}
	}
	return false
}

func (c *Canceller) cancelAtVenue(ctx context.Context, o *orders.Order) error {
	cctx, cancel := brokerCtx(ctx, c.BrokerTimeout)
	defer cancel()
	if c.Controls != nil {
		if controls, ok := c.Controls.Get(o.ID); ok && controls.Cancel != nil {
			return controls.Cancel(cctx)
		}
	}
	if c.Broker == nil {
		return orders.ErrMissingData
	}
	return c.Broker.Cancel(cctx, o.BrokerOrderID)
}

package handlers

import (
	"context"
	"sync"
	"time"

	"stacker/internal/broker"
	"stacker/internal/execution"
	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/stack"
)

// ControlsRegistry retains the monitoring handles of submitted broker
// orders so the operator surface can cancel them.
type ControlsRegistry struct {
	mu       sync.Mutex
	controls map[int64]execution.Controls
}

func NewControlsRegistry() *ControlsRegistry {
	return &ControlsRegistry{controls: make(map[int64]execution.Controls)}
}

func (r *ControlsRegistry) put(orderID int64, c execution.Controls) {
	r.mu.Lock()
	r.controls[orderID] = c
	r.mu.Unlock()
}

// Get returns the controls for a broker-stack order id.
func (r *ControlsRegistry) Get(orderID int64) (execution.Controls, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controls[orderID]
	return c, ok
}

// Drop forgets the controls of a finished order.
func (r *ControlsRegistry) Drop(orderID int64) {
	r.mu.Lock()
	delete(r.controls, orderID)
	r.mu.Unlock()
}

// Submitter is the broker-order creation handler: it runs pending
// contract orders through the execution algorithm selected by order type
// and instrument class, and attaches the resulting broker order as a
// child. Algorithm failure marks the contract order failed; blind
// resubmission risks duplicate fills, so retry is left to the operator.
type Submitter struct {
	Stacks        *stack.Set
	Calendar      rollcal.Provider
	Broker        broker.Connection
	Controls      *ControlsRegistry
	BrokerTimeout time.Duration
}

func NewSubmitter(stacks *stack.Set, calendar rollcal.Provider, conn broker.Connection, controls *ControlsRegistry) *Submitter {
	return &Submitter{
		Stacks:        stacks,
		Calendar:      calendar,
		Broker:        conn,
		Controls:      controls,
		BrokerTimeout: defaultBrokerTimeout,
	}
}

// Run performs one submission pass.
func (s *Submitter) Run(ctx context.Context) {
	if s == nil || s.Stacks == nil || s.Calendar == nil || s.Broker == nil {
		return
	}
	metrics.HandlerPasses.WithLabelValues("submit").Inc()
	for _, co := range s.Stacks.Contract.ListActive() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if co.State != orders.StatePending || co.HasChildren() || co.NeedsReconfirm {
			continue
		}
		s.submitOne(ctx, co.ID)
	}
}

func (s *Submitter) submitOne(ctx context.Context, id int64) {
	co, err := s.Stacks.Contract.LockOrderByID(id)
	if err != nil {
		logModifyErr("submit: lock", id, err)
		return
	}
	defer s.Stacks.Contract.UnlockOrderByID(id)

	if co.State != orders.StatePending || co.HasChildren() || co.NeedsReconfirm {
		return
	}

	params, err := s.Calendar.Parameters(co.Key.Instrument)
	if err != nil {
		logger.Debugf("submit: %s roll parameters unavailable: %v", co.Key.Instrument, err)
		return
	}

	// The broker-level uniqueness invariant is what prevents duplicate
	// submission; check before touching the venue.
	brokerKey := orders.BrokerKey(co.Key.Instrument, co.Key.Contract, params.Account)
	if existing, findErr := s.Stacks.Broker.FindOrderByKey(brokerKey); findErr == nil {
		logger.Warnf("submit: %s deferred, working broker order %d exists for %s",
			co.Key, existing.ID, brokerKey)
		return
	}

	algo := execution.ForOrder(s.Broker, co, params)
	subCtx, cancel := brokerCtx(ctx, s.BrokerTimeout)
	res := algo.PrepareAndSubmit(subCtx, co, params)
	cancel()

	switch res.Outcome {
	case execution.OutcomeSubmitted:
		s.attachBrokerOrder(id, co, brokerKey, res)
	case execution.OutcomeUnknown:
		// Outcome unknown: the order may be live at the venue. Keep the
		// contract order active but gated until reconciliation confirms.
		err = s.Stacks.Contract.ModifyOrder(id, func(o *orders.Order) error {
			o.State = orders.StateActive
			o.NeedsReconfirm = true
			return nil
		})
		logModifyErr("submit: mark unconfirmed", id, err)
		logger.Warnf("submit: %s outcome unknown (%s), awaiting reconciliation", co.Key, res.Reason)
		metrics.SubmissionsUnknown.Inc()
	default:
		err = s.Stacks.Contract.ModifyOrder(id, func(o *orders.Order) error {
			o.State = orders.StateFailed
			return nil
		})
		logModifyErr("submit: mark failed", id, err)
		logger.Warnf("submit: %s failed via %s: %s", co.Key, algo.Name(), res.Reason)
		metrics.SubmissionsFailed.Inc()
	}
}

func (s *Submitter) attachBrokerOrder(contractID int64, co *orders.Order, key orders.Key, res execution.Result) {
	bo := &orders.Order{
		Level:         orders.LevelBroker,
		Key:           key,
		Type:          co.Type,
		Subtype:       co.Subtype,
		Trade:         res.Order.Trade,
		State:         orders.StateActive,
		ParentID:      contractID,
		BrokerOrderID: res.Order.BrokerOrderID,
	}
	boID, err := s.Stacks.Broker.PutOrder(bo)
	if err != nil {
		// The venue holds an order the stack refused. This is exactly the
		// duplicate-execution hazard the uniqueness invariant exists for:
		// surface it loudly and gate the contract order.
		logger.Errorf("submit: broker order for %s submitted but not stacked: %v", key, err)
		modErr := s.Stacks.Contract.ModifyOrder(contractID, func(o *orders.Order) error {
			o.State = orders.StateActive
			o.NeedsReconfirm = true
			return nil
		})
		logModifyErr("submit: gate after stack refusal", contractID, modErr)
		return
	}
	if s.Controls != nil {
		s.Controls.put(boID, res.Order.Controls)
	}
	err = s.Stacks.Contract.ModifyOrder(contractID, func(o *orders.Order) error {
		o.AddChild(boID)
		o.State = orders.StateActive
		return nil
	})
	logModifyErr("submit: activate contract", contractID, err)
	metrics.OrdersSubmitted.Inc()
	logger.Infof("submit: %s -> broker order %d venue_id=%s trade=%s algo=%s",
		co.Key, boID, res.Order.BrokerOrderID, res.Order.Trade, co.Type)
}

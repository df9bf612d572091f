package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/stack"
)

// PositionBreak is a detected mismatch between the stack-implied position
// and the venue-reported one. Breaks are reported, never auto-corrected:
// auto-correcting could mask a real error or duplicate a fill.
type PositionBreak struct {
	Key        orders.Key
	Stacked    decimal.Decimal
	Reported   decimal.Decimal
	DetectedAt time.Time
}

// BreakSink receives breaks for persistence/alerting.
type BreakSink interface {
	RecordBreak(ctx context.Context, b PositionBreak) error
}

// Reconciler compares stack-implied positions against the venue snapshot
// and resolves orders left gated by an unknown submission outcome. A
// failed or partial venue answer is "unknown", never "zero": no break is
// raised from an unknown reading.
type Reconciler struct {
	Stacks        *stack.Set
	Broker        broker.Connection
	Sink          BreakSink
	BrokerTimeout time.Duration

	mu     sync.Mutex
	breaks []PositionBreak
	open   map[orders.Key]bool
}

func NewReconciler(stacks *stack.Set, conn broker.Connection, sink BreakSink) *Reconciler {
	return &Reconciler{
		Stacks:        stacks,
		Broker:        conn,
		Sink:          sink,
		BrokerTimeout: defaultBrokerTimeout,
		open:          make(map[orders.Key]bool),
	}
}

// Run performs one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) {
	if r == nil || r.Stacks == nil || r.Broker == nil {
		return
	}
	metrics.HandlerPasses.WithLabelValues("reconcile").Inc()

	posCtx, cancel := brokerCtx(ctx, r.BrokerTimeout)
	reported, err := r.Broker.Positions(posCtx)
	cancel()
	if err != nil {
		// Venue could not answer: everything is unknown this cycle.
		logger.Debugf("reconcile: position query failed: %v", err)
		return
	}

	r.compare(ctx, reported)
	r.resolveUnconfirmed(reported)
}

func (r *Reconciler) compare(ctx context.Context, reported map[orders.Key]broker.PositionReading) {
	implied := r.Stacks.ImpliedPositions()

	keys := make(map[orders.Key]struct{}, len(implied)+len(reported))
	for k := range implied {
		keys[k] = struct{}{}
	}
	for k := range reported {
		keys[k] = struct{}{}
	}

	for key := range keys {
		reading, present := reported[key]
		if present && !reading.Known {
			// Unknown reading: never interpreted as a break.
			continue
		}
		venueQty := decimal.Zero
		if present {
			venueQty = reading.Quantity
		}
		stackQty := implied[key]
		if stackQty.Equal(venueQty) {
			r.clearOpen(key)
			continue
		}
		r.raise(ctx, PositionBreak{
			Key:        key,
			Stacked:    stackQty,
			Reported:   venueQty,
			DetectedAt: time.Now(),
		})
	}
}

func (r *Reconciler) raise(ctx context.Context, b PositionBreak) {
	r.mu.Lock()
	already := r.open[b.Key]
	if !already {
		r.open[b.Key] = true
		r.breaks = append(r.breaks, b)
	}
	r.mu.Unlock()
	if already {
		return
	}
	logger.Errorf("reconcile: external position break %s stacked=%s reported=%s",
		b.Key, b.Stacked, b.Reported)
	logger.JournalBreak(b.Key.String(), b.Stacked.String(), b.Reported.String())
	metrics.BreaksRaised.Inc()
	if r.Sink != nil {
		if err := r.Sink.RecordBreak(ctx, b); err != nil {
			logger.Warnf("reconcile: break persist failed %s: %v", b.Key, err)
		}
	}
}

func (r *Reconciler) clearOpen(key orders.Key) {
	r.mu.Lock()
	delete(r.open, key)
	r.mu.Unlock()
}

// Breaks returns every break raised since start, newest first.
func (r *Reconciler) Breaks() []PositionBreak {
	r.mu.Lock()
	out := append([]PositionBreak(nil), r.breaks...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}

// resolveUnconfirmed settles contract orders gated after an unknown
// submission outcome. When the venue's reading for the contract is known
// and matches the stack-implied position, the lost submission did not
// execute: the gate clears and the order fails so the intent can be
// reissued deliberately. A mismatch surfaces as a break above and keeps
// the gate shut.
func (r *Reconciler) resolveUnconfirmed(reported map[orders.Key]broker.PositionReading) {
	implied := r.Stacks.ImpliedPositions()
	for _, co := range r.Stacks.Contract.ListActive() {
		if !co.NeedsReconfirm || co.State != orders.StateActive || co.HasChildren() {
			continue
		}
		key := orders.ContractKey(co.Key.Instrument, co.Key.Contract)
		reading, present := reported[key]
		if present && !reading.Known {
			continue
		}
		venueQty := decimal.Zero
		if present {
			venueQty = reading.Quantity
		}
		if !implied[key].Equal(venueQty) {
			continue
		}
		if _, err := r.Stacks.Contract.LockOrderByID(co.ID); err != nil {
			logModifyErr("reconcile: lock unconfirmed", co.ID, err)
			continue
		}
		err := r.Stacks.Contract.ModifyOrder(co.ID, func(o *orders.Order) error {
			o.NeedsReconfirm = false
			o.State = orders.StateFailed
			return nil
		})
		r.Stacks.Contract.UnlockOrderByID(co.ID)
		logModifyErr("reconcile: settle unconfirmed", co.ID, err)
		if err == nil {
			logger.Infof("reconcile: contract order %d confirmed not executed, marked failed", co.ID)
		}
	}
}

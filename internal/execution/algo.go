// Package execution holds the pluggable algorithms that turn a contract
// order into a submitted broker order. Submission failure is an expected,
// frequent, recoverable condition, so algorithms report it through a
// typed result instead of an error return.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/orders"
)

// Outcome classifies a submission attempt.
type Outcome int

const (
	// OutcomeSubmitted: the venue accepted the order.
	OutcomeSubmitted Outcome = iota
	// OutcomeMissing: no order was submitted (venue rejected, sized to
	// zero, or the connection answered with missing data).
	OutcomeMissing
	// OutcomeUnknown: the call timed out after the request may have
	// reached the venue. The order must not be resubmitted until
	// reconciliation confirms what happened.
	OutcomeUnknown
)

// Controls are the live monitoring handles attached to a submitted order.
type Controls struct {
	StopLevel  decimal.Decimal
	LimitLevel decimal.Decimal
	Cancel     func(ctx context.Context) error
}

// OrderWithControls is a successful submission: the venue order id plus
// monitoring handles.
type OrderWithControls struct {
	BrokerOrderID string
	ClientOrderID string
	Trade         decimal.Decimal
	SubmittedAt   time.Time
	Controls      Controls
}

// Result is the checked outcome of PrepareAndSubmit. Order is non-nil
// only when Outcome is OutcomeSubmitted.
type Result struct {
	Outcome Outcome
	Order   *OrderWithControls
	Reason  string
}

func submitted(o *OrderWithControls) Result { return Result{Outcome: OutcomeSubmitted, Order: o} }

func missing(reason string) Result { return Result{Outcome: OutcomeMissing, Reason: reason} }

func unknown(reason string) Result { return Result{Outcome: OutcomeUnknown, Reason: reason} }

// Algo prepares and submits one broker order for a contract order.
// Implementations never raise for the ordinary failure path; callers
// inspect the result.
type Algo interface {
	Name() string
	PrepareAndSubmit(ctx context.Context, co *orders.Order, params orders.RollParameters) Result
}

// ForOrder selects the algorithm for a contract order. Roll orders always
// execute at market regardless of their declared type; spread-bet
// instruments use the no-sizing market variant.
func ForOrder(conn broker.Connection, co *orders.Order, params orders.RollParameters) Algo {
	if co.Subtype == orders.SubtypeRoll {
		return marketFor(conn, params.Class)
	}
	switch co.Type {
	case orders.TypeLimit:
		return &Limit{conn: conn}
	default:
		return marketFor(conn, params.Class)
	}
}

func marketFor(conn broker.Connection, class orders.InstrumentClass) Algo {
	if class == orders.ClassSpreadBet {
		return &MarketFSB{conn: conn}
	}
	return &Market{conn: conn}
}

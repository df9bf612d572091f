// Package broker defines the contract the execution core consumes from a
// venue connection. Implementations may be slow, answer partially, or
// disconnect; every call takes a context and is expected to respect its
// deadline. "Could not answer" is orders.ErrMissingData, never a panic.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stacker/internal/orders"
)

// PositionReading is one venue-reported position. Known=false means the
// venue could not answer for this key; an unknown reading must never be
// treated as zero.
type PositionReading struct {
	Quantity decimal.Decimal
	Known    bool
}

// Fill is one execution notification. Filled is the cumulative signed
// quantity executed on the broker order, so replays and reordering are
// harmless. NotificationID dedupes at-least-once delivery.
type Fill struct {
	NotificationID string
	BrokerOrderID  string
	Filled         decimal.Decimal
	At             time.Time
}

// SubmitRequest is everything a venue needs to place one broker order.
// ClientOrderID makes retried submissions idempotent on venues that
// support it.
type SubmitRequest struct {
	ClientOrderID string
	Key           orders.Key
	Trade         decimal.Decimal
	Type          orders.OrderType
	LimitPrice    decimal.Decimal
}

// Connection is the opaque venue client. Submit returns the venue's order
// id on success and orders.ErrMissingData when the venue rejected or
// could not answer. A context deadline expiry means the outcome is
// unknown and the caller must not assume failure.
type Connection interface {
	Name() string

	Submit(ctx context.Context, req SubmitRequest) (string, error)

	Cancel(ctx context.Context, brokerOrderID string) error

	Positions(ctx context.Context) (map[orders.Key]PositionReading, error)

	// Fills delivers execution notifications, at-least-once. The channel
	// closes when the connection shuts down.
	Fills() <-chan Fill
}

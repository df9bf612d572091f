// Package paper is an in-process venue: orders fill from a configurable
// script, positions accrue from those fills, and failure modes
// (rejection, latency, duplicate notifications, unknown position keys)
// can be dialed in. It is the default connection in development and the
// backbone of handler tests.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/orders"
)

type Config struct {
	// RejectEvery rejects every Nth submission (0 disables).
	RejectEvery int
	// FillDelay is the pause before fill notifications start.
	FillDelay time.Duration
	// FillFractions are the cumulative fractions of the trade reported
	// by successive notifications. Defaults to a single full fill.
	FillFractions []float64
	// EchoDuplicates re-sends every notification once, exercising the
	// consumer's dedupe path.
	EchoDuplicates bool
	// UnknownInstruments are reported with Known=false from Positions.
	UnknownInstruments []string
}

type paperOrder struct {
	req       broker.SubmitRequest
	filled    decimal.Decimal
	cancelled bool
}

type Broker struct {
	cfg Config

	mu        sync.Mutex
	seq       int
	submits   int
	orders    map[string]*paperOrder
	positions map[orders.Key]decimal.Decimal
	closed    bool

	fills chan broker.Fill
	wg    sync.WaitGroup
}

func New(cfg Config) *Broker {
	if len(cfg.FillFractions) == 0 {
		cfg.FillFractions = []float64{1.0}
	}
	return &Broker{
		cfg:       cfg,
		orders:    make(map[string]*paperOrder),
		positions: make(map[orders.Key]decimal.Decimal),
		fills:     make(chan broker.Fill, 256),
	}
}

func (b *Broker) Name() string { return "paper" }

func (b *Broker) Submit(ctx context.Context, req broker.SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", orders.ErrMissingData
	}
	b.submits++
	if b.cfg.RejectEvery > 0 && b.submits%b.cfg.RejectEvery == 0 {
		b.mu.Unlock()
		return "", fmt.Errorf("paper venue rejected submission: %w", orders.ErrMissingData)
	}
	b.seq++
	venueID := fmt.Sprintf("PAPER-%06d", b.seq)
	b.orders[venueID] = &paperOrder{req: req}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.fillOut(venueID, req)
	logger.Debugf("paper: accepted %s trade=%s as %s", req.Key, req.Trade, venueID)
	return venueID, nil
}

func (b *Broker) fillOut(venueID string, req broker.SubmitRequest) {
	defer b.wg.Done()
	if b.cfg.FillDelay > 0 {
		time.Sleep(b.cfg.FillDelay)
	}
	for _, fraction := range b.cfg.FillFractions {
		cumulative := req.Trade.Mul(decimal.NewFromFloat(fraction)).Round(0)
		b.mu.Lock()
		po, ok := b.orders[venueID]
		if !ok || po.cancelled || b.closed {
			b.mu.Unlock()
			return
		}
		delta := cumulative.Sub(po.filled)
		po.filled = cumulative
		key := orders.ContractKey(req.Key.Instrument, req.Key.Contract)
		b.positions[key] = b.positions[key].Add(delta)
		b.mu.Unlock()

		f := broker.Fill{
			NotificationID: uuid.NewString(),
			BrokerOrderID:  venueID,
			Filled:         cumulative,
			At:             time.Now(),
		}
		b.emit(f)
		if b.cfg.EchoDuplicates {
			b.emit(f)
		}
	}
}

func (b *Broker) emit(f broker.Fill) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.fills <- f:
	default:
		logger.Warnf("paper: fill channel full, dropping notification %s", f.NotificationID)
	}
}

func (b *Broker) Cancel(ctx context.Context, brokerOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	po, ok := b.orders[brokerOrderID]
	if !ok {
		return orders.ErrMissingData
	}
	po.cancelled = true
	return nil
}

func (b *Broker) Positions(ctx context.Context) (map[orders.Key]broker.PositionReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[orders.Key]broker.PositionReading, len(b.positions))
	for key, qty := range b.positions {
		out[key] = broker.PositionReading{Quantity: qty, Known: true}
	}
	for _, code := range b.cfg.UnknownInstruments {
		code = strings.ToUpper(strings.TrimSpace(code))
		for key := range out {
			if key.Instrument == code {
				out[key] = broker.PositionReading{Known: false}
			}
		}
	}
	return out, nil
}

func (b *Broker) Fills() <-chan broker.Fill { return b.fills }

// SetPosition seeds a venue-side position directly, bypassing fills.
// Test hook for reconciliation scenarios.
func (b *Broker) SetPosition(key orders.Key, qty decimal.Decimal) {
	b.mu.Lock()
	b.positions[key] = qty
	b.mu.Unlock()
}

// Close stops fill delivery and closes the channel.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	close(b.fills)
}

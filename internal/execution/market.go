package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/orders"
)

// Market submits at the prevailing venue price after applying the
// instrument's size adjustment.
type Market struct {
	conn broker.Connection
}

func NewMarket(conn broker.Connection) *Market { return &Market{conn: conn} }

func (a *Market) Name() string { return "market" }

func (a *Market) PrepareAndSubmit(ctx context.Context, co *orders.Order, params orders.RollParameters) Result {
	sized := SizeTrade(co.Trade, params.SizeFactor)
	if sized.IsZero() {
		return missing(fmt.Sprintf("trade %s sized to zero with factor %v", co.Trade, params.SizeFactor))
	}
	return submit(ctx, a.conn, co, params, sized, orders.TypeMarket, decimal.Zero)
}

// MarketFSB is the spread-bet market variant. Spread-bet contract units
// already equal the execution unit, so the full quantity goes out
// verbatim.
type MarketFSB struct {
	conn broker.Connection
}

func NewMarketFSB(conn broker.Connection) *MarketFSB { return &MarketFSB{conn: conn} }

func (a *MarketFSB) Name() string { return "market_fsb" }

func (a *MarketFSB) PrepareAndSubmit(ctx context.Context, co *orders.Order, params orders.RollParameters) Result {
	if co.Trade.IsZero() {
		return missing("zero trade")
	}
	return submit(ctx, a.conn, co, params, co.Trade, orders.TypeMarket, decimal.Zero)
}

// Limit submits the sized quantity at the contract order's limit price.
type Limit struct {
	conn broker.Connection
}

func NewLimit(conn broker.Connection) *Limit { return &Limit{conn: conn} }

func (a *Limit) Name() string { return "limit" }

func (a *Limit) PrepareAndSubmit(ctx context.Context, co *orders.Order, params orders.RollParameters) Result {
	if co.LimitPrice.Sign() <= 0 {
		return missing("limit order without limit price")
	}
	sized := co.Trade
	if params.Class != orders.ClassSpreadBet {
		sized = SizeTrade(co.Trade, params.SizeFactor)
	}
	if sized.IsZero() {
		return missing(fmt.Sprintf("trade %s sized to zero with factor %v", co.Trade, params.SizeFactor))
	}
	return submit(ctx, a.conn, co, params, sized, orders.TypeLimit, co.LimitPrice)
}

func submit(ctx context.Context, conn broker.Connection, co *orders.Order, params orders.RollParameters, sized decimal.Decimal, typ orders.OrderType, limit decimal.Decimal) Result {
	if conn == nil {
		return missing("no broker connection")
	}
	clientID := uuid.NewString()
	req := broker.SubmitRequest{
		ClientOrderID: clientID,
		Key:           orders.BrokerKey(co.Key.Instrument, co.Key.Contract, params.Account),
		Trade:         sized,
		Type:          typ,
		LimitPrice:    limit,
	}
	brokerID, err := conn.Submit(ctx, req)
	switch {
	case err == nil:
		return submitted(&OrderWithControls{
			BrokerOrderID: brokerID,
			ClientOrderID: clientID,
			Trade:         sized,
			SubmittedAt:   time.Now(),
			Controls: Controls{
				LimitLevel: limit,
				Cancel: func(cctx context.Context) error {
					return conn.Cancel(cctx, brokerID)
				},
			},
		})
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		logger.Debugf("execution: submit outcome unknown contract=%s err=%v", co.Key, err)
		return unknown(err.Error())
	default:
		logger.Debugf("execution: submit missing contract=%s err=%v", co.Key, err)
		return missing(err.Error())
	}
}

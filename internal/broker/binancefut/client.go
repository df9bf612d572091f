// Package binancefut adapts the venue contract onto Binance USD-M
// futures via the go-binance SDK. Fill notifications are synthesized by
// polling order status, which keeps the adapter on plain REST.
package binancefut

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stacker/internal/broker"
	"stacker/internal/logger"
	"stacker/internal/orders"
)

type watchedOrder struct {
	symbol  string
	orderID int64
	sign    int
	filled  decimal.Decimal
}

type Client struct {
	cfg    Config
	client *futures.Client

	mu      sync.Mutex
	watched map[string]*watchedOrder

	fills chan broker.Fill
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Client{
		cfg:     final,
		client:  client,
		watched: make(map[string]*watchedOrder),
		fills:   make(chan broker.Fill, 256),
	}, nil
}

func (c *Client) Name() string { return "binance-futures" }

func (c *Client) Submit(ctx context.Context, req broker.SubmitRequest) (string, error) {
	symbol := symbolFor(req.Key)
	side := futures.SideTypeBuy
	if req.Trade.Sign() < 0 {
		side = futures.SideTypeSell
	}
	svc := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Quantity(req.Trade.Abs().String()).
		NewClientOrderID(req.ClientOrderID)
	if req.Type == orders.TypeLimit && req.LimitPrice.Sign() > 0 {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.LimitPrice.String())
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline expired after the request may have gone out:
			// propagate the context error so callers treat the outcome
			// as unknown rather than rejected.
			return "", ctx.Err()
		}
		return "", fmt.Errorf("binance submit %s: %v: %w", symbol, err, orders.ErrMissingData)
	}
	venueID := strconv.FormatInt(res.OrderID, 10)
	c.mu.Lock()
	c.watched[venueID] = &watchedOrder{
		symbol:  symbol,
		orderID: res.OrderID,
		sign:    req.Trade.Sign(),
	}
	c.mu.Unlock()
	return venueID, nil
}

func (c *Client) Cancel(ctx context.Context, brokerOrderID string) error {
	c.mu.Lock()
	w, ok := c.watched[brokerOrderID]
	c.mu.Unlock()
	if !ok {
		return orders.ErrMissingData
	}
	_, err := c.client.NewCancelOrderService().
		Symbol(w.symbol).
		OrderID(w.orderID).
		Do(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("binance cancel %s: %v: %w", brokerOrderID, err, orders.ErrMissingData)
	}
	return nil
}

func (c *Client) Positions(ctx context.Context) (map[orders.Key]broker.PositionReading, error) {
	risks, err := c.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("binance positions: %v: %w", err, orders.ErrMissingData)
	}
	out := make(map[orders.Key]broker.PositionReading, len(risks))
	for _, r := range risks {
		qty, parseErr := decimal.NewFromString(strings.TrimSpace(r.PositionAmt))
		key := keyFor(r.Symbol)
		if parseErr != nil {
			// The venue answered but the row is unreadable: unknown,
			// never zero.
			out[key] = broker.PositionReading{Known: false}
			continue
		}
		if qty.IsZero() {
			continue
		}
		out[key] = broker.PositionReading{Quantity: qty, Known: true}
	}
	return out, nil
}

func (c *Client) Fills() <-chan broker.Fill { return c.fills }

// Start launches the fill poll loop. The fills channel closes when ctx
// ends.
func (c *Client) Start(ctx context.Context) {
	go func() {
		defer close(c.fills)
		ticker := time.NewTicker(c.cfg.FillPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollFills(ctx)
			}
		}
	}()
}

func (c *Client) pollFills(ctx context.Context) {
	c.mu.Lock()
	pending := make(map[string]*watchedOrder, len(c.watched))
	for id, w := range c.watched {
		pending[id] = w
	}
	c.mu.Unlock()

	for venueID, w := range pending {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
		o, err := c.client.NewGetOrderService().
			Symbol(w.symbol).
			OrderID(w.orderID).
			Do(callCtx)
		cancel()
		if err != nil {
			logger.Debugf("binance: order poll failed id=%s: %v", venueID, err)
			continue
		}
		executed, parseErr := decimal.NewFromString(strings.TrimSpace(o.ExecutedQuantity))
		if parseErr != nil {
			logger.Warnf("binance: unreadable executed quantity for %s: %v", venueID, parseErr)
			continue
		}
		if w.sign < 0 {
			executed = executed.Neg()
		}
		c.mu.Lock()
		changed := !executed.Equal(w.filled)
		if changed {
			w.filled = executed
		}
		done := o.Status == futures.OrderStatusTypeFilled ||
			o.Status == futures.OrderStatusTypeCanceled ||
			o.Status == futures.OrderStatusTypeRejected ||
			o.Status == futures.OrderStatusTypeExpired
		if done {
			delete(c.watched, venueID)
		}
		c.mu.Unlock()
		if changed {
			f := broker.Fill{
				NotificationID: uuid.NewString(),
				BrokerOrderID:  venueID,
				Filled:         executed,
				At:             time.Now(),
			}
			// The consumer may be gone once ctx ends; never block on a
			// full buffer past shutdown.
			select {
			case c.fills <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// symbolFor renders the venue symbol for a contract key: the instrument
// code for perpetuals, instrument_contract for dated futures.
func symbolFor(key orders.Key) string {
	if key.Contract == "" {
		return key.Instrument
	}
	return key.Instrument + "_" + key.Contract
}

func keyFor(symbol string) orders.Key {
	parts := strings.SplitN(symbol, "_", 2)
	if len(parts) == 2 {
		return orders.ContractKey(parts[0], parts[1])
	}
	return orders.ContractKey(symbol, "")
}

package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Level identifies which stack an order lives in.
type Level string

const (
	LevelInstrument Level = "instrument"
	LevelContract   Level = "contract"
	LevelBroker     Level = "broker"
)

// OrderType selects the execution algorithm for the broker leg.
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
)

// Subtype distinguishes ordinary trades from forced rolls. Roll orders
// always execute with the market algorithm regardless of OrderType.
type Subtype string

const (
	SubtypeStandard Subtype = "standard"
	SubtypeRoll     Subtype = "roll"
)

// InstrumentClass drives sizing behaviour at submission time. Spread-bet
// instruments trade in units that already equal the execution unit, so
// their quantities are never down-sized.
type InstrumentClass string

const (
	ClassFuture    InstrumentClass = "future"
	ClassSpreadBet InstrumentClass = "fsb"
)

// Key is the domain key of an order. Instrument orders set only the
// instrument code, contract orders add the contract date, broker orders
// add the account.
type Key struct {
	Instrument string
	Contract   string
	Account    string
}

func InstrumentKey(code string) Key {
	return Key{Instrument: strings.ToUpper(strings.TrimSpace(code))}
}

func ContractKey(code, contract string) Key {
	k := InstrumentKey(code)
	k.Contract = strings.TrimSpace(contract)
	return k
}

func BrokerKey(code, contract, account string) Key {
	k := ContractKey(code, contract)
	k.Account = strings.TrimSpace(account)
	return k
}

func (k Key) String() string {
	parts := []string{k.Instrument}
	if k.Contract != "" {
		parts = append(parts, k.Contract)
	}
	if k.Account != "" {
		parts = append(parts, k.Account)
	}
	return strings.Join(parts, "/")
}

func (k Key) IsZero() bool {
	return k.Instrument == ""
}

// Order is one record in one stack arena. Identity fields (ID, Level, Key,
// Subtype, Type) are fixed at creation; lifecycle fields mutate only under
// the stack lock.
type Order struct {
	ID      int64
	Level   Level
	Key     Key
	Type    OrderType
	Subtype Subtype

	// Trade is the signed quantity this order intends to execute.
	// Roll instrument orders carry a zero net trade; their legs live on
	// the child contract orders.
	Trade decimal.Decimal

	// Limit price, meaningful only for TypeLimit.
	LimitPrice decimal.Decimal

	// Fill is the signed quantity executed so far. Its magnitude never
	// exceeds |Trade| and never decreases.
	Fill decimal.Decimal

	State State

	ParentID    int64
	ChildrenIDs []int64

	// BrokerOrderID is the venue-assigned id, broker level only.
	BrokerOrderID string

	// NeedsReconfirm marks an order whose last submission attempt ended
	// with an unknown outcome. It must not be resubmitted until
	// reconciliation clears it.
	NeedsReconfirm bool

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Remaining is the signed quantity not yet filled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Trade.Sub(o.Fill)
}

// IsBuy reports the direction of the order. A zero-trade order reports
// false on both.
func (o *Order) IsBuy() bool  { return o.Trade.Sign() > 0 }
func (o *Order) IsSell() bool { return o.Trade.Sign() < 0 }

func (o *Order) HasChildren() bool { return len(o.ChildrenIDs) > 0 }

func (o *Order) AddChild(id int64) {
	for _, c := range o.ChildrenIDs {
		if c == id {
			return
		}
	}
	o.ChildrenIDs = append(o.ChildrenIDs, id)
}

// Clone returns an independent copy. Stacks hand clones to callers so a
// reference held after unlock can never observe later mutation.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.ChildrenIDs = append([]int64(nil), o.ChildrenIDs...)
	return &cp
}

func (o *Order) Describe() string {
	return fmt.Sprintf("%s %s id=%d trade=%s fill=%s state=%s",
		o.Level, o.Key, o.ID, o.Trade, o.Fill, o.State)
}

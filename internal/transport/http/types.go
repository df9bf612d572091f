package httpapi

import (
	"time"

	"stacker/internal/handlers"
	"stacker/internal/orders"
)

// OrderView is the wire shape of an order on the query surface.
type OrderView struct {
	ID             int64   `json:"id"`
	Level          string  `json:"level"`
	Instrument     string  `json:"instrument"`
	Contract       string  `json:"contract,omitempty"`
	Account        string  `json:"account,omitempty"`
	Type           string  `json:"type"`
	Subtype        string  `json:"subtype,omitempty"`
	Trade          string  `json:"trade"`
	Fill           string  `json:"fill"`
	State          string  `json:"state"`
	ParentID       int64   `json:"parent_id,omitempty"`
	ChildrenIDs    []int64 `json:"children_ids,omitempty"`
	BrokerOrderID  string  `json:"broker_order_id,omitempty"`
	NeedsReconfirm bool    `json:"needs_reconfirm,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ModifiedAt     string  `json:"modified_at"`
}

func toView(o *orders.Order) OrderView {
	return OrderView{
		ID:             o.ID,
		Level:          string(o.Level),
		Instrument:     o.Key.Instrument,
		Contract:       o.Key.Contract,
		Account:        o.Key.Account,
		Type:           string(o.Type),
		Subtype:        string(o.Subtype),
		Trade:          o.Trade.String(),
		Fill:           o.Fill.String(),
		State:          string(o.State),
		ParentID:       o.ParentID,
		ChildrenIDs:    o.ChildrenIDs,
		BrokerOrderID:  o.BrokerOrderID,
		NeedsReconfirm: o.NeedsReconfirm,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
		ModifiedAt:     o.ModifiedAt.Format(time.RFC3339),
	}
}

func toViews(list []*orders.Order) []OrderView {
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, toView(o))
	}
	return out
}

// BreakView is the wire shape of a reported position break.
type BreakView struct {
	Instrument string `json:"instrument"`
	Contract   string `json:"contract,omitempty"`
	Stacked    string `json:"stacked"`
	Reported   string `json:"reported"`
	DetectedAt string `json:"detected_at"`
}

func toBreakViews(breaks []handlers.PositionBreak) []BreakView {
	out := make([]BreakView, 0, len(breaks))
	for _, b := range breaks {
		out = append(out, BreakView{
			Instrument: b.Key.Instrument,
			Contract:   b.Key.Contract,
			Stacked:    b.Stacked.String(),
			Reported:   b.Reported.String(),
			DetectedAt: b.DetectedAt.Format(time.RFC3339),
		})
	}
	return out
}

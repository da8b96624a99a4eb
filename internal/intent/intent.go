// Package intent turns natural-language trading commands into normalized
// TradeIntent values.
package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Action is what the user asked the assistant to do.
type Action string

const (
	ActionBuy     Action = "buy"
	ActionSell    Action = "sell"
	ActionCancel  Action = "cancel"
	ActionCheck   Action = "check"
	ActionUnknown Action = "unknown"
)

// Side is the order side, derived from a buy or sell action.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the execution style of the order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// TimeInForce is how long an order stays active before expiring.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceOPG TimeInForce = "opg"
	TimeInForceCLS TimeInForce = "cls"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// TradeIntent is the canonical structured form of a trading command.
//
// Zero values mean "absent": an empty Symbol or Side, a zero Quantity and zero
// prices are encoded as null (or omitted for Side) on the wire. Side is set iff
// Action is buy or sell.
type TradeIntent struct {
	Action      Action
	Symbol      string
	Quantity    int
	OrderType   OrderType
	LimitPrice  float64
	StopPrice   float64
	TimeInForce TimeInForce
	Side        Side
}

// Type mirrors OrderType; brokerage payloads use this name.
func (t TradeIntent) Type() OrderType {
	return t.OrderType
}

// IsOrder reports whether the intent describes an order to place.
func (t TradeIntent) IsOrder() bool {
	return t.Side == SideBuy || t.Side == SideSell
}

// Summary is a short human-readable description, e.g. "buy 10 AAPL".
func (t TradeIntent) Summary() string {
	verb := string(t.Side)
	if verb == "" {
		verb = string(t.Action)
	}
	s := verb
	if t.Quantity > 0 {
		s += " " + strconv.Itoa(t.Quantity)
	}
	if t.Symbol != "" {
		s += " " + t.Symbol
	}
	switch {
	case t.OrderType == OrderTypeLimit && t.LimitPrice > 0:
		s += fmt.Sprintf(" limit $%s", formatPrice(t.LimitPrice))
	case t.OrderType == OrderTypeStop && t.StopPrice > 0:
		s += fmt.Sprintf(" stop $%s", formatPrice(t.StopPrice))
	}
	return s
}

type wireIntent struct {
	Action      Action      `json:"action"`
	Symbol      *string     `json:"symbol"`
	Quantity    *int        `json:"quantity"`
	OrderType   OrderType   `json:"orderType"`
	Type        OrderType   `json:"type"`
	LimitPrice  *float64    `json:"limitPrice"`
	StopPrice   *float64    `json:"stopPrice"`
	TimeInForce TimeInForce `json:"timeInForce"`
	Side        Side        `json:"side,omitempty"`
}

// MarshalJSON encodes the intent with camelCase keys and explicit nulls.
func (t TradeIntent) MarshalJSON() ([]byte, error) {
	w := wireIntent{
		Action:      t.Action,
		OrderType:   t.OrderType,
		Type:        t.OrderType,
		TimeInForce: t.TimeInForce,
		Side:        t.Side,
	}
	if t.Symbol != "" {
		w.Symbol = &t.Symbol
	}
	if t.Quantity > 0 {
		w.Quantity = &t.Quantity
	}
	if t.LimitPrice > 0 {
		w.LimitPrice = &t.LimitPrice
	}
	if t.StopPrice > 0 {
		w.StopPrice = &t.StopPrice
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts loosely typed input (numbers as strings, mixed case
// enums) and always yields a normalized intent.
func (t *TradeIntent) UnmarshalJSON(data []byte) error {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Normalize(raw)
	return nil
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Raw is an intent as produced by a model or a client, before normalization.
// Every field may hold a string, a number or nothing.
type Raw struct {
	Action      any `json:"action"`
	Symbol      any `json:"symbol"`
	Quantity    any `json:"quantity"`
	OrderType   any `json:"orderType"`
	Type        any `json:"type"`
	LimitPrice  any `json:"limitPrice"`
	StopPrice   any `json:"stopPrice"`
	TimeInForce any `json:"timeInForce"`
	Side        any `json:"side"`
}

var (
	validActions = map[Action]bool{
		ActionBuy: true, ActionSell: true, ActionCancel: true, ActionCheck: true, ActionUnknown: true,
	}
	validOrderTypes = map[OrderType]bool{
		OrderTypeMarket: true, OrderTypeLimit: true, OrderTypeStop: true,
	}
	validTimeInForce = map[TimeInForce]bool{
		TimeInForceDay: true, TimeInForceGTC: true, TimeInForceOPG: true,
		TimeInForceCLS: true, TimeInForceIOC: true, TimeInForceFOK: true,
	}

	leadingInt   = regexp.MustCompile(`^[+]?(\d+)`)
	leadingFloat = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)`)
)

// Normalize applies the shared normalization rules: uppercase symbol, numeric
// coercion (non-positive or unparsable numbers become absent), defaults for
// order type and time in force, action taken from side when missing, side
// derived from action and type mirrored from order type. Normalizing a
// normalized intent is a no-op.
func Normalize(raw Raw) TradeIntent {
	t := TradeIntent{
		Action:      ActionUnknown,
		Symbol:      strings.ToUpper(strings.TrimSpace(toString(raw.Symbol))),
		Quantity:    toPositiveInt(raw.Quantity),
		OrderType:   OrderTypeMarket,
		LimitPrice:  toPositiveFloat(raw.LimitPrice),
		StopPrice:   toPositiveFloat(raw.StopPrice),
		TimeInForce: TimeInForceDay,
	}

	if a := Action(lowerString(raw.Action)); validActions[a] {
		t.Action = a
	}
	// Clients may send only a side.
	if t.Action == ActionUnknown {
		switch Side(lowerString(raw.Side)) {
		case SideBuy:
			t.Action = ActionBuy
		case SideSell:
			t.Action = ActionSell
		}
	}

	orderType := OrderType(lowerString(raw.OrderType))
	if orderType == "" {
		orderType = OrderType(lowerString(raw.Type))
	}
	if validOrderTypes[orderType] {
		t.OrderType = orderType
	}

	if tif := TimeInForce(lowerString(raw.TimeInForce)); validTimeInForce[tif] {
		t.TimeInForce = tif
	}

	switch t.Action {
	case ActionBuy:
		t.Side = SideBuy
	case ActionSell:
		t.Side = SideSell
	}

	return t
}

// Normalized re-applies Normalize to an already typed intent.
func (t TradeIntent) Normalized() TradeIntent {
	return Normalize(t.raw())
}

func (t TradeIntent) raw() Raw {
	r := Raw{
		Action:      string(t.Action),
		OrderType:   string(t.OrderType),
		TimeInForce: string(t.TimeInForce),
	}
	if t.Symbol != "" {
		r.Symbol = t.Symbol
	}
	if t.Quantity > 0 {
		r.Quantity = t.Quantity
	}
	if t.LimitPrice > 0 {
		r.LimitPrice = t.LimitPrice
	}
	if t.StopPrice > 0 {
		r.StopPrice = t.StopPrice
	}
	if t.Side != "" {
		r.Side = string(t.Side)
	}
	return r
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func lowerString(v any) string {
	return strings.ToLower(strings.TrimSpace(toString(v)))
}

// toPositiveInt parses like parseInt: strings keep their leading digits,
// numbers are truncated.
func toPositiveInt(v any) int {
	switch val := v.(type) {
	case nil, bool:
		return 0
	case string:
		m := leadingInt.FindStringSubmatch(strings.TrimSpace(val))
		if m == nil {
			return 0
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0
		}
		return n
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || f < 1 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func toPositiveFloat(v any) float64 {
	switch val := v.(type) {
	case nil, bool:
		return 0
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(val), "$")
		s = strings.ReplaceAll(s, ",", "")
		m := leadingFloat.FindString(s)
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil || f <= 0 {
			return 0
		}
		return f
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return f
}

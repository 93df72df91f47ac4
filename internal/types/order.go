package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderType int

const (
	NoActionOrder OrderType = iota
	MarketOrder
	LimitOrder
)

type SideType int

const (
	NoActionSide SideType = iota
	Buy
	Sell
)

type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
)

// enumLabel pairs the wire code of an enum value with its display label
type enumLabel struct {
	code  string
	label string
}

var orderTypeLabels = map[OrderType]enumLabel{
	MarketOrder: {"market", "Market"},
	LimitOrder:  {"limit", "Limit"},
}

var sideLabels = map[SideType]enumLabel{
	Buy:  {"buy", "Buy"},
	Sell: {"sell", "Sell"},
}

var statusLabels = map[OrderStatus]enumLabel{
	StatusOpen:            {"open", "Open"},
	StatusPartiallyFilled: {"partially_filled", "Partially filled"},
	StatusFilled:          {"filled", "Filled"},
	StatusCancelled:       {"cancelled", "Cancelled"},
}

func (t OrderType) String() string { return codeOf(orderTypeLabels, t) }
func (t OrderType) Label() string  { return labelOf(orderTypeLabels, t) }

func (s SideType) String() string { return codeOf(sideLabels, s) }
func (s SideType) Label() string  { return labelOf(sideLabels, s) }

func (s OrderStatus) String() string { return codeOf(statusLabels, s) }
func (s OrderStatus) Label() string  { return labelOf(statusLabels, s) }

// Opposite returns the contra side
func (s SideType) Opposite() SideType {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return NoActionSide
	}
}

// Terminal reports whether no further fills or cancels can happen
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

func ParseOrderType(s string) (OrderType, error) { return parseEnum(orderTypeLabels, s, "order type") }
func ParseSide(s string) (SideType, error)       { return parseEnum(sideLabels, s, "side") }
func ParseStatus(s string) (OrderStatus, error)  { return parseEnum(statusLabels, s, "order status") }

func (t OrderType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }
func (s SideType) MarshalJSON() ([]byte, error)  { return json.Marshal(s.String()) }
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (t *OrderType) UnmarshalJSON(data []byte) error { return unmarshalEnum(data, t, ParseOrderType) }
func (s *SideType) UnmarshalJSON(data []byte) error  { return unmarshalEnum(data, s, ParseSide) }
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, ParseStatus)
}

func codeOf[T comparable](labels map[T]enumLabel, v T) string {
	if l, ok := labels[v]; ok {
		return l.code
	}
	return "unknown"
}

func labelOf[T comparable](labels map[T]enumLabel, v T) string {
	if l, ok := labels[v]; ok {
		return l.label
	}
	return "Unknown"
}

func parseEnum[T comparable](labels map[T]enumLabel, s, what string) (T, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, l := range labels {
		if l.code == s {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", what, s)
}

func unmarshalEnum[T any](data []byte, dst *T, parse func(string) (T, error)) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	v, err := parse(code)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Order is a request to exchange Amount units of From (the base currency)
// against To (the quote currency). LimitPrice is quoted in To units per From
// unit and is only set on limit orders.
type Order struct {
	ID         uint64          `json:"order_id"`
	UserID     string          `json:"user_id"`
	OrderType  OrderType       `json:"order_type"`
	Side       SideType        `json:"side"`
	Amount     int64           `json:"amount"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	From       Currency        `json:"from_currency"`
	To         Currency        `json:"to_currency"`
	Status     OrderStatus     `json:"status"`
	Remaining  int64           `json:"remaining_amount"`
	Reserved   int64           `json:"reserved"`
	Seq        uint64          `json:"seq"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewOrder creates an open order with its full amount remaining
func NewOrder(id uint64, userID string, orderType OrderType, side SideType, pair Pair, amount int64, limitPrice decimal.Decimal) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:         id,
		UserID:     userID,
		OrderType:  orderType,
		Side:       side,
		Amount:     amount,
		LimitPrice: limitPrice,
		From:       pair.Base,
		To:         pair.Quote,
		Status:     StatusOpen,
		Remaining:  amount,
		Seq:        id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (o *Order) Pair() Pair {
	return Pair{Base: o.From, Quote: o.To}
}

// FilledAmount is the part of Amount already executed
func (o *Order) FilledAmount() int64 {
	return o.Amount - o.Remaining
}

// Clone returns a copy safe to hand out of the engine
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Currency identifies a tradable currency. Balances and amounts in a currency
// are always integer counts of its minor unit (cents, satoshis, ...).
type Currency int

const (
	NoCurrency Currency = iota
	USD
	EUR
	BTC
	ETH
)

type currencyInfo struct {
	code  string
	label string
}

var currencies = map[Currency]currencyInfo{
	USD: {code: "USD", label: "US Dollar"},
	EUR: {code: "EUR", label: "Euro"},
	BTC: {code: "BTC", label: "Bitcoin"},
	ETH: {code: "ETH", label: "Ether"},
}

// String returns the three-letter currency code
func (c Currency) String() string {
	if info, ok := currencies[c]; ok {
		return info.code
	}
	return "UNKNOWN"
}

// Label returns the human readable currency name
func (c Currency) Label() string {
	if info, ok := currencies[c]; ok {
		return info.label
	}
	return "Unknown"
}

func (c Currency) Valid() bool {
	_, ok := currencies[c]
	return ok
}

// ParseCurrency parses a currency code, case-insensitively
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for c, info := range currencies {
		if info.code == code {
			return c, nil
		}
	}
	return NoCurrency, fmt.Errorf("unknown currency %q", code)
}

func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseCurrency(code)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Pair is a currency pair. Order amounts are denominated in Base and prices
// are Quote units per Base unit.
type Pair struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

func NewPair(base, quote Currency) Pair {
	return Pair{Base: base, Quote: quote}
}

// String returns the pair as BASE/QUOTE
func (p Pair) String() string {
	return p.Base.String() + "/" + p.Quote.String()
}

// ParsePair parses a pair written as BASE/QUOTE
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok {
		return Pair{}, fmt.Errorf("pair %q must be written as BASE/QUOTE", s)
	}
	b, err := ParseCurrency(base)
	if err != nil {
		return Pair{}, err
	}
	q, err := ParseCurrency(quote)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Base: b, Quote: q}, nil
}

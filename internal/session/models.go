package session

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PxPatel/currency-exchange/internal/matching"
	"github.com/PxPatel/currency-exchange/internal/types"
)

const maxBatchSize = 1000

// Command is one request line
type Command struct {
	Op       string         `json:"op"`
	Order    *OrderPayload  `json:"order,omitempty"`
	Orders   []OrderPayload `json:"orders,omitempty"`
	OrderID  uint64         `json:"order_id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	Currency string         `json:"currency,omitempty"`
	Amount   int64          `json:"amount,omitempty"`
	Pair     string         `json:"pair,omitempty"`
	Since    uint64         `json:"since,omitempty"`
	Levels   int            `json:"levels,omitempty"`
}

// OrderPayload is an order as clients write it: codes as strings and the
// limit price as a decimal string so no precision is lost
type OrderPayload struct {
	UserID     string `json:"user_id"`
	Pair       string `json:"pair"`
	Side       string `json:"side"`
	OrderType  string `json:"order_type"`
	Amount     int64  `json:"amount"`
	LimitPrice string `json:"limit_price,omitempty"`
}

// CommandError is the structured error of a failed command
type CommandError struct {
	Code    types.ErrorCode        `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func badRequest(message string, details map[string]interface{}) *CommandError {
	return &CommandError{Code: types.CodeInvalidOrder, Message: message, Details: details}
}

// Request converts the payload to an engine request. Semantic checks such as
// tradable pairs and positive amounts are left to the engine.
func (p OrderPayload) Request() (matching.OrderRequest, *CommandError) {
	pair, err := types.ParsePair(p.Pair)
	if err != nil {
		return matching.OrderRequest{}, badRequest("Invalid pair, expected BASE/QUOTE", map[string]interface{}{"provided_value": p.Pair})
	}
	side, err := types.ParseSide(p.Side)
	if err != nil {
		return matching.OrderRequest{}, badRequest("Invalid side, must be 'buy' or 'sell'", map[string]interface{}{"provided_value": p.Side})
	}
	orderType, err := types.ParseOrderType(p.OrderType)
	if err != nil {
		return matching.OrderRequest{}, badRequest("Invalid order type, must be 'market' or 'limit'", map[string]interface{}{"provided_value": p.OrderType})
	}

	req := matching.OrderRequest{
		UserID:    p.UserID,
		Pair:      pair,
		Side:      side,
		OrderType: orderType,
		Amount:    p.Amount,
	}
	if s := strings.TrimSpace(p.LimitPrice); s != "" {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return matching.OrderRequest{}, badRequest("Invalid limit price", map[string]interface{}{"field": "limit_price", "provided_value": p.LimitPrice})
		}
		req.LimitPrice = price
	}
	return req, nil
}

// Response is one reply line. Only the fields of the command's result are set.
type Response struct {
	Success   bool          `json:"success"`
	Op        string        `json:"op"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
	Error     *CommandError `json:"error,omitempty"`

	Order   *types.Order          `json:"order,omitempty"`
	Orders  []*types.Order        `json:"orders,omitempty"`
	Trades  []*types.Trade        `json:"trades,omitempty"`
	Balance *Balance              `json:"balance,omitempty"`
	Bids    []matching.PriceLevel `json:"bids,omitempty"`
	Asks    []matching.PriceLevel `json:"asks,omitempty"`
	Results []BatchResult         `json:"results,omitempty"`
	Summary *BatchSummary         `json:"summary,omitempty"`
}

type Balance struct {
	UserID    string         `json:"user_id"`
	Currency  types.Currency `json:"currency"`
	Balance   int64          `json:"balance"`
	Held      int64          `json:"held"`
	Available int64          `json:"available"`
}

// BatchResult is the outcome of one order of a batch
type BatchResult struct {
	Index   int            `json:"index"`
	Success bool           `json:"success"`
	Order   *types.Order   `json:"order,omitempty"`
	Trades  []*types.Trade `json:"trades,omitempty"`
	Error   *CommandError  `json:"error,omitempty"`
}

type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

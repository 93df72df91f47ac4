package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/PxPatel/currency-exchange/internal/ledger"
	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/matching"
	"github.com/PxPatel/currency-exchange/internal/types"
)

const maxLineSize = 1 << 20

// Session serves the engine over a stream of JSON commands, one per line,
// answering each with one JSON response line in the same order
type Session struct {
	engine *matching.Engine
	ledger *ledger.Ledger
}

func New(engine *matching.Engine, l *ledger.Ledger) *Session {
	return &Session{engine: engine, ledger: l}
}

// Serve reads commands from r until EOF or ctx is done
func (s *Session) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp Response
		var cmd Command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			resp = failure("", badRequest("Invalid JSON format", map[string]interface{}{"error": err.Error()}))
		} else {
			start := time.Now()
			resp = s.Handle(ctx, cmd)
			logger.Debug("Command completed", logger.Fields{
				"op":          cmd.Op,
				"success":     resp.Success,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	return scanner.Err()
}

// Handle executes one command. A panic inside the engine is reported as an
// internal error instead of ending the session.
func (s *Session) Handle(ctx context.Context, cmd Command) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered", logger.Fields{
				"error":      fmt.Sprintf("%v", r),
				"op":         cmd.Op,
				"stacktrace": string(debug.Stack()),
			})
			resp = failure(cmd.Op, &CommandError{Code: types.CodeInternal, Message: "An unexpected error occurred"})
		}
	}()

	switch strings.ToLower(cmd.Op) {
	case "submit":
		return s.submit(ctx, cmd)
	case "batch":
		return s.batch(ctx, cmd)
	case "cancel":
		return s.cancel(ctx, cmd)
	case "order":
		return s.order(cmd)
	case "balance":
		return s.balance(cmd)
	case "orders":
		return s.userOrders(cmd)
	case "deposit", "withdraw":
		return s.fund(ctx, cmd)
	case "trades":
		return s.trades(cmd)
	case "depth":
		return s.depth(cmd)
	}
	return failure(cmd.Op, badRequest("Unknown op", map[string]interface{}{"provided_value": cmd.Op}))
}

func success(op, message string) Response {
	return Response{Success: true, Op: op, Timestamp: time.Now().UTC(), Message: message}
}

func failure(op string, cmdErr *CommandError) Response {
	return Response{Success: false, Op: op, Timestamp: time.Now().UTC(), Message: cmdErr.Message, Error: cmdErr}
}

// engineError maps an engine error to its stable code. Failures the caller
// caused are logged at WARN, everything else at ERROR.
func engineError(op string, err error) *CommandError {
	code := types.CodeOf(err)
	fields := logger.Fields{"op": op, "error_code": string(code), "error": err.Error()}
	if types.UserFacing(err) {
		logger.Warn("Command failed", fields)
	} else {
		logger.Error("Command failed", fields)
	}
	return &CommandError{Code: code, Message: err.Error()}
}

func (s *Session) submit(ctx context.Context, cmd Command) Response {
	if cmd.Order == nil {
		return failure(cmd.Op, badRequest("order is required", map[string]interface{}{"field": "order"}))
	}
	res, cmdErr := s.place(ctx, *cmd.Order)
	if cmdErr != nil {
		return failure(cmd.Op, cmdErr)
	}

	resp := success(cmd.Op, "Order submitted successfully")
	resp.Order = res.Order
	resp.Trades = res.Trades
	return resp
}

func (s *Session) place(ctx context.Context, payload OrderPayload) (*matching.SubmitResult, *CommandError) {
	req, cmdErr := payload.Request()
	if cmdErr != nil {
		return nil, cmdErr
	}
	res, err := s.engine.SubmitOrder(ctx, req)
	if err != nil {
		return nil, engineError("submit", err)
	}
	return res, nil
}

func (s *Session) batch(ctx context.Context, cmd Command) Response {
	if len(cmd.Orders) == 0 {
		return failure(cmd.Op, badRequest("orders array cannot be empty", map[string]interface{}{"field": "orders"}))
	}
	if len(cmd.Orders) > maxBatchSize {
		return failure(cmd.Op, badRequest("batch size cannot exceed 1000 orders",
			map[string]interface{}{"field": "orders", "max_size": maxBatchSize, "provided_size": len(cmd.Orders)}))
	}

	results := make([]BatchResult, len(cmd.Orders))
	summary := &BatchSummary{Total: len(cmd.Orders)}
	for i, payload := range cmd.Orders {
		results[i].Index = i
		res, cmdErr := s.place(ctx, payload)
		if cmdErr != nil {
			results[i].Error = cmdErr
			summary.Failed++
			continue
		}
		results[i].Success = true
		results[i].Order = res.Order
		results[i].Trades = res.Trades
		summary.Successful++
	}

	logger.Info("Batch order processed", logger.Fields{
		"total":      summary.Total,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})

	resp := success(cmd.Op, "")
	resp.Results = results
	resp.Summary = summary
	return resp
}

func (s *Session) cancel(ctx context.Context, cmd Command) Response {
	order, err := s.engine.CancelOrder(ctx, cmd.OrderID)
	if err != nil {
		return failure(cmd.Op, engineError(cmd.Op, err))
	}
	resp := success(cmd.Op, "Order cancelled successfully")
	resp.Order = order
	return resp
}

func (s *Session) order(cmd Command) Response {
	order, err := s.engine.GetOrderStatus(cmd.OrderID)
	if err != nil {
		return failure(cmd.Op, engineError(cmd.Op, err))
	}
	resp := success(cmd.Op, "")
	resp.Order = order
	return resp
}

func (s *Session) account(cmd Command) (string, types.Currency, *CommandError) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return "", types.NoCurrency, badRequest("user_id cannot be empty", map[string]interface{}{"field": "user_id"})
	}
	currency, err := types.ParseCurrency(cmd.Currency)
	if err != nil {
		return "", types.NoCurrency, badRequest("Invalid currency", map[string]interface{}{"provided_value": cmd.Currency})
	}
	return cmd.UserID, currency, nil
}

func (s *Session) balance(cmd Command) Response {
	user, currency, cmdErr := s.account(cmd)
	if cmdErr != nil {
		return failure(cmd.Op, cmdErr)
	}
	acc := s.ledger.Account(user, currency)
	resp := success(cmd.Op, "")
	resp.Balance = &Balance{
		UserID:    user,
		Currency:  currency,
		Balance:   s.engine.GetAccountBalance(user, currency),
		Held:      acc.Held,
		Available: acc.Available(),
	}
	return resp
}

func (s *Session) userOrders(cmd Command) Response {
	orders, err := s.engine.UserOrders(cmd.UserID)
	if err != nil {
		return failure(cmd.Op, engineError(cmd.Op, err))
	}
	resp := success(cmd.Op, "")
	resp.Orders = orders
	return resp
}

// fund moves money in or out of the exchange
func (s *Session) fund(ctx context.Context, cmd Command) Response {
	user, currency, cmdErr := s.account(cmd)
	if cmdErr != nil {
		return failure(cmd.Op, cmdErr)
	}

	var err error
	if strings.EqualFold(cmd.Op, "deposit") {
		err = s.engine.Deposit(ctx, user, currency, cmd.Amount)
	} else {
		err = s.engine.Withdraw(ctx, user, currency, cmd.Amount)
	}
	if err != nil {
		if types.CodeOf(err) == types.CodeInternal {
			return failure(cmd.Op, badRequest(err.Error(), map[string]interface{}{"field": "amount"}))
		}
		return failure(cmd.Op, engineError(cmd.Op, err))
	}

	logger.Info("Account funded", logger.Fields{"op": cmd.Op, "user_id": user, "currency": currency.String(), "amount": cmd.Amount})
	return s.balance(Command{Op: cmd.Op, UserID: user, Currency: cmd.Currency})
}

func (s *Session) trades(cmd Command) Response {
	pair, err := types.ParsePair(cmd.Pair)
	if err != nil {
		return failure(cmd.Op, badRequest("Invalid pair, expected BASE/QUOTE", map[string]interface{}{"provided_value": cmd.Pair}))
	}
	trades, err := s.engine.ListTrades(pair, cmd.Since)
	if err != nil {
		return failure(cmd.Op, engineError(cmd.Op, err))
	}
	resp := success(cmd.Op, "")
	resp.Trades = trades
	return resp
}

func (s *Session) depth(cmd Command) Response {
	pair, err := types.ParsePair(cmd.Pair)
	if err != nil {
		return failure(cmd.Op, badRequest("Invalid pair, expected BASE/QUOTE", map[string]interface{}{"provided_value": cmd.Pair}))
	}
	bids, asks, err := s.engine.OrderBookDepth(pair, cmd.Levels)
	if err != nil {
		return failure(cmd.Op, engineError(cmd.Op, err))
	}
	resp := success(cmd.Op, "")
	resp.Bids = bids
	resp.Asks = asks
	return resp
}

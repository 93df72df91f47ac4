package types

import "errors"

// ErrorCode is the stable identifier reported to callers for a failure class
type ErrorCode string

const (
	CodeInvalidOrder        ErrorCode = "INVALID_ORDER"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	CodeOrderAlreadyFilled  ErrorCode = "ORDER_ALREADY_FILLED"
	CodeUnfilledMarketOrder ErrorCode = "UNFILLED_MARKET_ORDER"
	CodeCrossedBook         ErrorCode = "CROSSED_BOOK_INVARIANT"
	CodePairHalted          ErrorCode = "PAIR_HALTED"
	CodeJournalWrite        ErrorCode = "JOURNAL_WRITE_FAILED"
	CodeAccountWrite        ErrorCode = "ACCOUNT_WRITE_FAILED"
	CodeEngineStopped       ErrorCode = "ENGINE_STOPPED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAlreadyFilled  = errors.New("order already filled or cancelled")
	ErrUnfilledMarketOrder = errors.New("market order could not be filled")

	// ErrCrossedBook signals a matching defect, never a user mistake
	ErrCrossedBook  = errors.New("crossed book invariant violated")
	ErrPairHalted   = errors.New("matching halted for pair")
	ErrJournalWrite = errors.New("trade journal write failed")
	ErrAccountWrite = errors.New("account store write failed")

	ErrEngineStopped = errors.New("exchange is shutting down")
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidOrder, CodeInvalidOrder},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrOrderNotFound, CodeOrderNotFound},
	{ErrOrderAlreadyFilled, CodeOrderAlreadyFilled},
	{ErrUnfilledMarketOrder, CodeUnfilledMarketOrder},
	{ErrCrossedBook, CodeCrossedBook},
	{ErrPairHalted, CodePairHalted},
	{ErrJournalWrite, CodeJournalWrite},
	{ErrAccountWrite, CodeAccountWrite},
	{ErrEngineStopped, CodeEngineStopped},
}

// CodeOf maps an error returned by the engine to its ErrorCode
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// UserFacing reports whether err is caused by the caller's request rather
// than by a defect or a storage fault
func UserFacing(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidOrder, CodeInsufficientFunds, CodeOrderNotFound,
		CodeOrderAlreadyFilled, CodeUnfilledMarketOrder:
		return true
	}
	return false
}

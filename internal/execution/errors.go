package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"solana-pnl-bot/internal/jupiter"
)

// Execution failure classes. Only ErrSlippageExceeded is retried.
var (
	ErrNoLiquidity       = errors.New("no liquidity")
	ErrSlippageExceeded  = errors.New("slippage tolerance exceeded")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientRent  = errors.New("insufficient funds for rent")
	ErrExecutionFailed   = errors.New("execution failed")
	ErrInvalidSignal     = errors.New("invalid sell signal")
)

// Reason codes recorded in logs and metrics.
const (
	ReasonNone              = ""
	ReasonNoLiquidity       = "NO_LIQUIDITY"
	ReasonSlippage          = "SLIPPAGE_EXCEEDED"
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonInsufficientRent  = "INSUFFICIENT_RENT"
	ReasonInvalidSignal     = "INVALID_SIGNAL"
	ReasonCanceled          = "CANCELED"
	ReasonFailed            = "EXECUTION_FAILED"
)

// ReasonCode maps an execution error to its reason code.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNoLiquidity):
		return ReasonNoLiquidity
	case errors.Is(err, ErrSlippageExceeded):
		return ReasonSlippage
	case errors.Is(err, ErrInsufficientRent):
		return ReasonInsufficientRent
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ErrInvalidSignal):
		return ReasonInvalidSignal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	}
	return ReasonFailed
}

// slippageMarkers identify the aggregator's slippage failure
// (custom program error 6001).
var slippageMarkers = []string{
	"0x1771",
	`"custom":6001`,
	"custom:6001",
	"slippagetoleranceexceeded",
	"slippage tolerance exceeded",
}

var rentMarkers = []string{
	"insufficientfundsforrent",
	"insufficient funds for rent",
}

var fundsMarkers = []string{
	"insufficientfunds",
	"insufficient funds",
	"insufficient lamports",
	`"custom":1}`,
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// classifyMessage maps a node or simulation error message to a failure class.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, slippageMarkers):
		return ErrSlippageExceeded
	case containsAny(lower, rentMarkers):
		return ErrInsufficientRent
	case containsAny(lower, fundsMarkers) || strings.HasSuffix(lower, "custom program error: 0x1"):
		return ErrInsufficientFunds
	}
	return ErrExecutionFailed
}

// classify wraps err with its failure class. Already classified errors and
// context errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrNoLiquidity), errors.Is(err, ErrSlippageExceeded),
		errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientRent),
		errors.Is(err, ErrExecutionFailed):
		return err
	case errors.Is(err, jupiter.ErrNoRoute), errors.Is(err, jupiter.ErrNotTradable):
		return fmt.Errorf("%w: %v", ErrNoLiquidity, err)
	}
	return fmt.Errorf("%w: %v", classifyMessage(err.Error()), err)
}

// classifyStatusErr maps the err field of a signature status.
func classifyStatusErr(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(fmt.Sprint(v))
	}
	return fmt.Errorf("%w: transaction failed on chain: %s", classifyMessage(string(raw)), raw)
}

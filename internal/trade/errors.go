package trade

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable marks collaborator I/O failures. Callers isolate
// these per market/trade and retry on the next scheduled tick.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrDuplicateOpenTrade is returned by the store when an insert collides
// with the at-most-one-OPEN-trade-per-market constraint.
var ErrDuplicateOpenTrade = errors.New("open trade already exists for market")

// InvalidArgumentError reports bad input shape or range. It is surfaced to
// the caller as a client error and never retried.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func invalidArg(field, format string, v ...any) error {
	return &InvalidArgumentError{Field: field, Reason: fmt.Sprintf(format, v...)}
}

// InvariantViolationError reports a state that must never occur (negative
// remaining quantity, exit exceeding entry). The offending operation aborts
// without a partial write.
type InvariantViolationError struct {
	TradeID int64
	Detail  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on trade %d: %s", e.TradeID, e.Detail)
}

// OrderRejectedError surfaces an exchange-side order rejection.
type OrderRejectedError struct {
	Market string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Market, e.Reason)
}

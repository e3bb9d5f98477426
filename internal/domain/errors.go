package domain

import (
	"errors"
	"fmt"
	"time"
)

// Adapter error taxonomy. Exchange adapters wrap their venue errors so the
// core can classify failures with errors.Is.
var (
	ErrNotSupported         = errors.New("endpoint not supported by exchange")
	ErrOrderNotFound        = errors.New("order not found on exchange")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrRequestTimeout       = errors.New("request timeout")
	ErrExchangeNotAvailable = errors.New("exchange not available")
	ErrBadSymbol            = errors.New("bad symbol")
	ErrAuthentication       = errors.New("invalid credentials")
)

// Core domain errors.
var (
	// ErrMissingFunds is the trader-level translation of
	// ErrInsufficientFunds after the forced-refresh retry failed too.
	ErrMissingFunds = errors.New("missing funds to create order")

	// ErrInvalidOrderState rejects a transition the state machine does
	// not allow (e.g. CANCELED -> FILLED).
	ErrInvalidOrderState = errors.New("invalid order state transition")

	// ErrUnknownOrder is returned when an order id is not in the arena.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrOrderSideMismatch is raised when a raw order's type contradicts
	// its side during parsing.
	ErrOrderSideMismatch = errors.New("order type does not match order side")

	// ErrUnhandledContractType is fatal: a futures position was created
	// for a contract the core cannot price.
	ErrUnhandledContractType = errors.New("unhandled contract type")

	// ErrChannelExists is returned by the registry when a channel name is
	// already taken for an exchange.
	ErrChannelExists = errors.New("channel already registered")

	// ErrChannelNotFound is returned by registry lookups.
	ErrChannelNotFound = errors.New("channel not found")
)

// TimeoutError is the typed error surfaced by blocking waits (mark-price
// readiness, balance refresh, order termination) when their deadline
// elapses.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
}

// CancelError is raised after both attempts to cancel an order on the
// exchange failed.
type CancelError struct {
	OrderID string
	Symbol  string
	Err     error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("failed to cancel order %s (%s): %v", e.OrderID, e.Symbol, e.Err)
}

func (e *CancelError) Unwrap() error { return e.Err }

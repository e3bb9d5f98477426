package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantra/tradecore/internal/domain"
)

// OrderStateKind is the sealed set of order lifecycle states.
type OrderStateKind string

const (
	StateOpen   OrderStateKind = "open"
	StateFill   OrderStateKind = "fill"
	StateCancel OrderStateKind = "cancel"
	StateClose  OrderStateKind = "close"
)

// allowedTransitions encodes the lifecycle graph: OPEN may fill, cancel
// or pass straight to close on an exchange-reported terminal status; FILL
// always settles into CLOSE; CANCEL and CLOSE are terminal.
var allowedTransitions = map[OrderStateKind]map[OrderStateKind]bool{
	StateOpen:   {StateFill: true, StateCancel: true, StateClose: true},
	StateFill:   {StateClose: true},
	StateCancel: {},
	StateClose:  {},
}

// OrderMachine serializes the state transitions of one order. Exactly one
// state is active at any moment; the per-order lock is held for the whole
// open/fill/cancel handling and is always acquired before the portfolio
// lock, never after.
type OrderMachine struct {
	mu             sync.Mutex
	state          OrderStateKind
	refreshing     bool
	fromExchange   bool
	terminated     chan struct{}
	terminatedOnce sync.Once
}

func NewOrderMachine() *OrderMachine {
	return &OrderMachine{
		state:      StateOpen,
		terminated: make(chan struct{}),
	}
}

// State returns the active state.
func (m *OrderMachine) State() OrderStateKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsTerminal reports whether the order reached CANCEL or CLOSE.
func (m *OrderMachine) IsTerminal() bool {
	switch m.State() {
	case StateCancel, StateClose:
		return true
	}
	return false
}

// Refreshing reports whether an exchange synchronization is in flight.
func (m *OrderMachine) Refreshing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshing
}

// BeginRefresh flags the state as synchronizing. Returns false when a
// refresh is already running.
func (m *OrderMachine) BeginRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshing {
		return false
	}
	m.refreshing = true
	return true
}

// EndRefresh restores the pre-refresh state flag.
func (m *OrderMachine) EndRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshing = false
}

// SetFromExchange marks the current transition as originating from
// adapter data, so no call is issued back to the venue.
func (m *OrderMachine) SetFromExchange(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fromExchange = v
}

func (m *OrderMachine) FromExchange() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fromExchange
}

// Transition moves to the target state, enforcing the lifecycle graph.
func (m *OrderMachine) Transition(to OrderStateKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowedTransitions[m.state][to] {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidOrderState, m.state, to)
	}
	m.state = to
	if to == StateCancel || to == StateClose {
		m.terminatedOnce.Do(func() { close(m.terminated) })
	}
	return nil
}

// Terminated is closed when the order reaches a terminal state.
func (m *OrderMachine) Terminated() <-chan struct{} {
	return m.terminated
}

// WaitForTermination blocks until the order terminates, the timeout
// elapses or the context ends.
func (m *OrderMachine) WaitForTermination(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.terminated:
		return nil
	case <-timer.C:
		return &domain.TimeoutError{Op: "order termination wait", Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

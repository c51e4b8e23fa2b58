package order

import (
	"fmt"

	"github.com/erp/pos/internal/domain/shared"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPreparing      Status = "PREPARING"
	StatusReady          Status = "READY"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// IsValid checks if the status is a valid value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// Action is an operator request to move an order forward
type Action string

const (
	ActionStart     Action = "START"
	ActionMarkReady Action = "MARK_READY"
	ActionDispatch  Action = "DISPATCH"
	ActionDeliver   Action = "DELIVER"
	ActionCancel    Action = "CANCEL"
)

// IsValid checks if the action is known
func (a Action) IsValid() bool {
	switch a {
	case ActionStart, ActionMarkReady, ActionDispatch, ActionDeliver, ActionCancel:
		return true
	}
	return false
}

type transitionKey struct {
	from   Status
	action Action
}

// transitions is the complete table of allowed moves. Cancel is handled
// separately since it applies to every non-terminal state.
var transitions = map[transitionKey]Status{
	{StatusPending, ActionStart}:          StatusPreparing,
	{StatusPreparing, ActionMarkReady}:    StatusReady,
	{StatusReady, ActionDispatch}:         StatusOutForDelivery,
	{StatusReady, ActionDeliver}:          StatusDelivered,
	{StatusOutForDelivery, ActionDeliver}: StatusDelivered,
}

// Error codes for rejected transitions
var (
	ErrTerminalState     = shared.NewDomainError("TERMINAL_STATE", "Order is closed and cannot change status")
	ErrInvalidTransition = shared.NewDomainError("INVALID_TRANSITION", "Status transition is not allowed")
)

// Transition returns the status an order of the given type reaches when the
// action is applied in state from. It is the only place status moves are decided.
func Transition(from Status, orderType Type, action Action) (Status, error) {
	if from.IsTerminal() {
		return from, shared.NewDomainError(ErrTerminalState.Code, fmt.Sprintf("Order is %s and cannot change status", from))
	}
	if action == ActionCancel {
		return StatusCancelled, nil
	}
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return from, shared.NewDomainError(ErrInvalidTransition.Code, fmt.Sprintf("Cannot %s an order in %s status", action, from))
	}
	// OUT_FOR_DELIVERY exists only for delivery orders; the rest are handed over at READY.
	switch {
	case action == ActionDispatch && orderType != TypeDelivery:
		return from, shared.NewDomainError(ErrInvalidTransition.Code, fmt.Sprintf("Only delivery orders can be dispatched, this is %s", orderType))
	case from == StatusReady && action == ActionDeliver && orderType == TypeDelivery:
		return from, shared.NewDomainError(ErrInvalidTransition.Code, "Delivery orders must be dispatched before delivery")
	}
	return to, nil
}

// CanTransitionTo checks if the status can move to target for the order type
func (s Status) CanTransitionTo(target Status, orderType Type) bool {
	for _, a := range []Action{ActionStart, ActionMarkReady, ActionDispatch, ActionDeliver, ActionCancel} {
		if to, err := Transition(s, orderType, a); err == nil && to == target {
			return true
		}
	}
	return false
}

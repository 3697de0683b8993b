package client

import "fmt"

// State is the connection lifecycle state of a replica's channel.
type State int

const (
	StateUnknown State = iota
	StateDisconnected
	StateConnecting
	StateHydrating
	StateLive
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateHydrating:
		return "Hydrating"
	case StateLive:
		return "Live"
	case StateReconnecting:
		return "Reconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

func (s State) validateTransitionTo(newState State) error {
	if newState == StateClosed {
		// Closing is allowed from any state and is idempotent.
		return nil
	}
	switch s {
	case StateDisconnected:
		if newState == StateConnecting {
			return nil
		}
	case StateConnecting:
		switch newState {
		case StateHydrating, StateReconnecting:
			return nil
		}
	case StateHydrating:
		switch newState {
		case StateLive, StateReconnecting:
			return nil
		}
	case StateLive:
		if newState == StateReconnecting {
			return nil
		}
	case StateReconnecting:
		switch newState {
		case StateConnecting, StateDisconnected:
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

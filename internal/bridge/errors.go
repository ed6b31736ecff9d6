package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrBridgeNotFound means every discovery strategy was exhausted.
	ErrBridgeNotFound = errors.New("no bridge found by any discovery strategy")

	// ErrAuthorizationFailed means the registration retry bound was exceeded
	// or the bridge explicitly denied the handshake.
	ErrAuthorizationFailed = errors.New("bridge authorization failed")

	// ErrAborted means the user abandoned a prompt.
	ErrAborted = errors.New("aborted by user")
)

// Stage identifies which part of the connection flow failed.
type Stage int

const (
	StageDiscovery Stage = iota
	StageAuthorization
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageDiscovery:
		return "discovery"
	case StageAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// ConnectionError is the single terminal error surfaced by Connect,
// enumerated by the stage that failed.
type ConnectionError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bridge connection failed during %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// UserMessage returns a stage-specific message suitable for presenting to
// the user, distinguishing "couldn't find a bridge" from "bridge refused
// authorization".
func (e *ConnectionError) UserMessage() string {
	switch e.Stage {
	case StageDiscovery:
		return "Couldn't find a Hue bridge on the network. Check that the bridge is powered and connected."
	case StageAuthorization:
		return "The Hue bridge refused authorization. Press the link button on the bridge and try again."
	default:
		return "Failed to connect to the Hue bridge."
	}
}

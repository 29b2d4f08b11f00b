package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnecting is returned by Connect while an attempt is in flight.
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("not connected")
	// ErrEmptyMessage is returned for blank outgoing messages.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrConnectCanceled is returned by a Connect superseded by Disconnect.
	ErrConnectCanceled = errors.New("connect canceled by disconnect")
)

// ConnectionError is a failed connect, at the token or transport stage.
type ConnectionError struct {
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect failed at %s: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError is an error raised by or reported from the transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

var errUnspecified = errors.New("unspecified transport error")

package delivery

import "errors"

var (
	// ErrNotConnected is returned for input typed while no connection is open.
	// Input is never queued for later delivery.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionLost marks a connection that ended with a non-normal close.
	ErrConnectionLost = errors.New("connection lost")
	// ErrProtocol is returned for an inbound message that is not a valid envelope.
	ErrProtocol = errors.New("malformed message")
	// ErrInvalidTransition is returned for a connection phase change that
	// the current phase does not allow.
	ErrInvalidTransition = errors.New("invalid connection transition")
)

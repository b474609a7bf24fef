package service

import "errors"

// Sentinel errors returned by the service and its sessions.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrSessionClosed = errors.New("session closed")
	ErrMailboxFull   = errors.New("session mailbox full")
)

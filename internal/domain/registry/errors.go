package registry

import "errors"

var (
	// ErrNotFound is returned when a driver or track id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidData is returned when registry data fails validation.
	ErrInvalidData = errors.New("invalid registry data")
)

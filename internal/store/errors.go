package store

import "errors"

// Errors are resolved at the boundary between the core and its caller; none
// of them stop the process.
var (
	ErrUnauthorized = errors.New("identity lacks the required role")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("snapshot persistence failed")
	ErrDelivery     = errors.New("delivery failed")
)

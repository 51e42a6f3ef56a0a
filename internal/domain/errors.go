package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrConflict          = errors.New("domain: conflict")
	ErrProtected         = errors.New("domain: referenced record is protected")
	ErrInvalidTransition = errors.New("domain: invalid run status transition")
)

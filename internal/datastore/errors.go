package datastore

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrAlreadyRegistered = errors.New("template already registered")
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrNotLoaded         = errors.New("instance not loaded")
	ErrInvalidTemplate   = errors.New("invalid template")
)

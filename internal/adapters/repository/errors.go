package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrInvalidLimit     = errors.New("invalid page size")
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrInvalidKey       = errors.New("invalid key")
	ErrClosed           = errors.New("store closed")
)

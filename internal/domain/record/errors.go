package record

import "errors"

// Sentinel kinds for record errors.
var (
	ErrInvalidRecord = errors.New("invalid record")
)

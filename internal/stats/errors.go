package stats

import (
	"errors"
	"fmt"
)

// ErrStatNotFound is returned when the entity is not loaded or the record
// has no numeric field of that name.
var ErrStatNotFound = errors.New("stat not found")

// ErrNonFinite rejects a mutation whose result is NaN or infinite. Such a
// value could not be encoded, so the stat is left untouched.
var ErrNonFinite = errors.New("stat value not finite")

// ShortfallError rejects a TryUpdate that would take a stat below zero.
// Shortfall is how much was missing.
type ShortfallError struct {
	Stat      string
	Shortfall float64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("stat %s short by %g", e.Stat, e.Shortfall)
}

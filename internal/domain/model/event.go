// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the lifecycle transition an event reports.
type Kind string

const (
	KindAttach Kind = "attach"
	KindDetach Kind = "detach"
)

// ErrInvalidEvent is returned by Validate.
var ErrInvalidEvent = errors.New("invalid lifecycle event")

// ParseKind accepts attach or detach in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAttach, KindDetach:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, s)
	}
}

// LifecycleEvent reports an entity arriving at or leaving the process.
type LifecycleEvent struct {
	EventID     string    // unique id for idempotency
	EntityID    int64     // numeric entity identifier
	Kind        Kind      // attach or detach
	DisplayName string    // optional, registered with the identity directory on attach
	TS          time.Time // receive time
}

// Validate checks the fields a worker relies on.
func (e LifecycleEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	case e.EntityID <= 0:
		return fmt.Errorf("%w: entity_id must be positive", ErrInvalidEvent)
	case e.Kind != KindAttach && e.Kind != KindDetach:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

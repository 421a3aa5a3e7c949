// Package stats reads and mutates named numeric fields of an entity's live
// record. Changes stay in memory until the next autosave or detach.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Defaults for the player record.
const (
	DefaultTemplate      = "PlayerData"
	DefaultPlaytimeField = "Playtime"
	DefaultPlaytimeEvery = 5 * time.Second
)

// Store is the slice of the datastore the keeper needs.
type Store interface {
	GetInstance(entityID int64, template string) (*record.Record, bool)
	Mutate(entityID int64, template string, fn func(*record.Record) error) error
}

// Keeper exposes stat operations over one scalar template.
type Keeper struct {
	store         Store
	template      string
	scheduler     *schedule.Scheduler
	playtimeField string
	playtimeEvery time.Duration
	logger        logger.Logger
}

// New creates a Keeper over store.
func New(store Store, opts ...Option) *Keeper {
	k := &Keeper{
		store:         store,
		template:      DefaultTemplate,
		playtimeField: DefaultPlaytimeField,
		playtimeEvery: DefaultPlaytimeEvery,
		logger:        logger.Get().Named("stats"),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.scheduler == nil {
		k.scheduler = schedule.New(schedule.WithLogger(k.logger))
	}
	return k
}

// Template returns the scalar template the keeper works on.
func (k *Keeper) Template() string { return k.template }

// Get returns a copy of the named field.
func (k *Keeper) Get(entityID int64, name string) (record.Field, bool) {
	rec, ok := k.store.GetInstance(entityID, k.template)
	if !ok {
		return record.Field{}, false
	}
	f := rec.Field(name)
	if f == nil {
		return record.Field{}, false
	}
	return *f, true
}

// Set overwrites a numeric stat without bound checks. NaN and infinities
// are refused.
func (k *Keeper) Set(entityID int64, name string, value float64) (float64, bool) {
	err := k.numeric(entityID, name, func(f *record.Field, _ float64) error {
		if err := finite(name, value); err != nil {
			return err
		}
		f.Value = record.Number(value)
		return nil
	})
	k.record("set", err)
	return value, err == nil
}

// Update adds delta, clamping the result at zero.
func (k *Keeper) Update(entityID int64, name string, delta float64) (float64, bool) {
	v, err := k.Add(entityID, name, delta)
	return v, err == nil
}

// Add is Update reporting why it failed: ErrStatNotFound, or ErrNonFinite
// when the sum overflows.
func (k *Keeper) Add(entityID int64, name string, delta float64) (float64, error) {
	var out float64
	err := k.numeric(entityID, name, func(f *record.Field, cur float64) error {
		next := math.Max(0, cur+delta)
		if err := finite(name, next); err != nil {
			return err
		}
		out = next
		f.Value = record.Number(out)
		return nil
	})
	k.record("update", err)
	if err != nil {
		return 0, err
	}
	return out, nil
}

// TryUpdate adds delta unless the result would be negative, in which case
// the stat is left untouched and a *ShortfallError is returned.
func (k *Keeper) TryUpdate(entityID int64, name string, delta float64) (float64, error) {
	var out float64
	err := k.numeric(entityID, name, func(f *record.Field, cur float64) error {
		next := cur + delta
		if err := finite(name, next); err != nil {
			return err
		}
		if next < 0 {
			return &ShortfallError{Stat: name, Shortfall: math.Abs(next)}
		}
		out = next
		f.Value = record.Number(next)
		return nil
	})
	k.record("try_update", err)
	if err != nil {
		return 0, err
	}
	return out, nil
}

// numeric runs fn on a numeric field under the record lock. Missing
// entities, templates and fields all surface as ErrStatNotFound.
func (k *Keeper) numeric(entityID int64, name string, fn func(f *record.Field, cur float64) error) error {
	err := k.store.Mutate(entityID, k.template, func(rec *record.Record) error {
		f := rec.Field(name)
		if f == nil {
			return fmt.Errorf("%w: %s on %d", ErrStatNotFound, name, entityID)
		}
		cur, ok := f.Value.AsNumber()
		if !ok {
			return fmt.Errorf("%w: %s on %d is %s", ErrStatNotFound, name, entityID, f.Value.Kind())
		}
		return fn(f, cur)
	})
	var short *ShortfallError
	if err == nil || errors.As(err, &short) || errors.Is(err, ErrStatNotFound) || errors.Is(err, ErrNonFinite) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStatNotFound, err)
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s would be %g", ErrNonFinite, name, v)
	}
	return nil
}

func (k *Keeper) record(op string, err error) {
	var short *ShortfallError
	switch {
	case err == nil:
		metrics.RecordStatMutation(op, "ok")
	case errors.As(err, &short):
		metrics.RecordStatMutation(op, "shortfall")
	case errors.Is(err, ErrNonFinite):
		metrics.RecordStatMutation(op, "invalid")
	default:
		metrics.RecordStatMutation(op, "not_found")
	}
}

// List returns the numeric fields of the entity's record in record order.
func (k *Keeper) List(entityID int64) ([]types.Stat, bool) {
	rec, ok := k.store.GetInstance(entityID, k.template)
	if !ok {
		return nil, false
	}
	out := make([]types.Stat, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		v, ok := f.Value.AsNumber()
		if !ok {
			continue
		}
		out = append(out, types.Stat{Name: f.Name, Value: v, Priority: f.Priority})
	}
	return out, true
}

// StartPlaytime adds one to the playtime stat every period while the entity
// stays loaded.
func (k *Keeper) StartPlaytime(entityID int64) bool {
	return k.scheduler.Arm(playtimeKey(entityID), k.playtimeEvery, func(ctx context.Context) bool {
		if _, ok := k.Update(entityID, k.playtimeField, 1); !ok {
			k.logger.Debug(ctx, "playtime stopped", logger.Int64("entity", entityID))
			return false
		}
		return true
	})
}

// StopPlaytime cancels playtime accrual for the entity.
func (k *Keeper) StopPlaytime(entityID int64) bool {
	return k.scheduler.Cancel(playtimeKey(entityID))
}

func playtimeKey(entityID int64) string {
	return "playtime/" + strconv.FormatInt(entityID, 10)
}

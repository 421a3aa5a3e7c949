package datastore

import (
	"context"
	"fmt"

	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/domain/retry"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Save triggers, used in logs and metrics.
const (
	triggerAutosave = "autosave"
	triggerDetach   = "detach"
	triggerManual   = "manual"
)

// SaveResult reports the final save of one template during detach.
type SaveResult struct {
	Template string
	Err      error
}

type fetched struct {
	data  []byte
	found bool
}

// LoadInstance makes the template's record for entityID live. The entry is
// seeded with defaults before the remote read, so it exists even when the
// read fails or returns an invalid document; in both cases the error is
// returned and the defaults stay in use. An entity that is already loaded
// keeps its live record.
func (m *Manager) LoadInstance(ctx context.Context, entityID int64, template string) (*record.Record, error) {
	t, ok := m.scalarTemplate(template)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}

	if cur, ok := t.get(entityID); ok {
		cur.mu.Lock()
		defer cur.mu.Unlock()
		return cur.rec.Clone(), nil
	}

	inst := &instance{rec: t.defaults.Clone()}
	t.put(entityID, inst)

	got, err := retry.Do(ctx, m.retry, "kv.get", func(ctx context.Context) (fetched, error) {
		data, found, err := m.kv.Get(ctx, t.namespace, RecordKey(entityID))
		return fetched{data: data, found: found}, err
	})
	if err != nil {
		metrics.RecordLoad(template, "error")
		m.logger.Error(ctx, "load failed, using defaults",
			logger.String("template", template),
			logger.Int64("entity", entityID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("load %s for %d: %w", template, entityID, err)
	}

	if got.found {
		rec, err := record.Decode(got.data)
		if err != nil {
			metrics.RecordLoad(template, "invalid")
			m.logger.Error(ctx, "stored record invalid, using defaults",
				logger.String("template", template),
				logger.Int64("entity", entityID),
				logger.Error(err),
			)
			return nil, fmt.Errorf("load %s for %d: %w", template, entityID, err)
		}
		inst.mu.Lock()
		inst.rec = rec
		inst.mu.Unlock()
		metrics.RecordLoad(template, "found")
	} else {
		metrics.RecordLoad(template, "defaults")
	}

	if cur, ok := t.get(entityID); !ok || cur != inst {
		// detached while the read was in flight
		return inst.snapshot(), nil
	}
	if t.autosave > 0 {
		m.scheduler.Arm(autosaveKey(template, entityID), t.autosave, m.autosaveTask(t, entityID, inst))
	}
	return inst.snapshot(), nil
}

func (inst *instance) snapshot() *record.Record {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.rec.Clone()
}

func (m *Manager) autosaveTask(t *scalarTemplate, entityID int64, inst *instance) schedule.Task {
	return func(ctx context.Context) bool {
		if cur, ok := t.get(entityID); !ok || cur != inst {
			return false
		}
		metrics.RecordAutosave(t.name)
		// Cancelling the timer stops rearming only; a cycle that started
		// finishes its save and every board increment.
		live, err := m.saveAndSync(context.WithoutCancel(ctx), t, entityID, inst, triggerAutosave)
		if err != nil {
			m.logger.Warn(ctx, "autosave failed",
				logger.String("template", t.name),
				logger.Int64("entity", entityID),
				logger.Error(err),
			)
		}
		return live
	}
}

// SaveNow runs one autosave cycle immediately: persist the live record,
// then dispatch its sync. The sync runs even when the save fails.
func (m *Manager) SaveNow(ctx context.Context, entityID int64, template string) error {
	t, ok := m.scalarTemplate(template)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	inst, ok := t.get(entityID)
	if !ok {
		return fmt.Errorf("%w: %s for %d", ErrNotLoaded, template, entityID)
	}
	live, err := m.saveAndSync(ctx, t, entityID, inst, triggerManual)
	if !live {
		return fmt.Errorf("%w: %s for %d", ErrNotLoaded, template, entityID)
	}
	return err
}

// saveAndSync reports false when inst was evicted before the lock was taken.
// The save and the sync, retries included, run under inst.mu, so stat
// mutations of that entity wait for the remote stores.
func (m *Manager) saveAndSync(ctx context.Context, t *scalarTemplate, entityID int64, inst *instance, trigger string) (bool, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if cur, ok := t.get(entityID); !ok || cur != inst {
		return false, nil
	}
	err := m.persist(ctx, t, entityID, inst.rec, trigger)
	m.syncs.Dispatch(ctx, t.name, entityID, inst.rec)
	return true, err
}

// DetachInstance syncs, evicts and saves every loaded record of entityID,
// one result per template that had it loaded. Eviction happens before the
// save, and a failed save is reported, not retried further.
func (m *Manager) DetachInstance(ctx context.Context, entityID int64) []SaveResult {
	var out []SaveResult
	for _, t := range m.scalarTemplates() {
		inst, ok := t.get(entityID)
		if !ok {
			continue
		}
		m.scheduler.Cancel(autosaveKey(t.name, entityID))

		inst.mu.Lock()
		if cur, ok := t.get(entityID); !ok || cur != inst {
			// another detach got here first
			inst.mu.Unlock()
			continue
		}
		m.syncs.Dispatch(ctx, t.name, entityID, inst.rec)
		t.remove(entityID, inst)
		err := m.persist(ctx, t, entityID, inst.rec, triggerDetach)
		inst.mu.Unlock()

		if err != nil {
			m.logger.Error(ctx, "final save failed",
				logger.String("template", t.name),
				logger.Int64("entity", entityID),
				logger.Error(err),
			)
		}
		out = append(out, SaveResult{Template: t.name, Err: err})
	}
	return out
}

func (m *Manager) persist(ctx context.Context, t *scalarTemplate, entityID int64, rec *record.Record, trigger string) error {
	data, err := record.Encode(rec)
	if err != nil {
		metrics.RecordSave(t.name, trigger, "invalid")
		return fmt.Errorf("save %s for %d: %w", t.name, entityID, err)
	}
	err = m.retry.Run(ctx, "kv.set", func(ctx context.Context) error {
		return m.kv.Set(ctx, t.namespace, RecordKey(entityID), data)
	})
	if err != nil {
		metrics.RecordSave(t.name, trigger, "error")
		return fmt.Errorf("save %s for %d: %w", t.name, entityID, err)
	}
	metrics.RecordSave(t.name, trigger, "ok")
	return nil
}

// GetInstance returns a copy of the live record, or false when the template
// is unknown, the entity is not loaded, or the record fails validation.
func (m *Manager) GetInstance(entityID int64, template string) (*record.Record, bool) {
	t, ok := m.scalarTemplate(template)
	if !ok {
		return nil, false
	}
	inst, ok := t.get(entityID)
	if !ok {
		return nil, false
	}
	rec := inst.snapshot()
	if rec.Validate() != nil {
		return nil, false
	}
	return rec, true
}

// Mutate runs fn on the live record of entityID under its lock. Changes are
// kept in memory only; they reach the store on the next autosave or detach.
func (m *Manager) Mutate(entityID int64, template string, fn func(*record.Record) error) error {
	t, ok := m.scalarTemplate(template)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	inst, ok := t.get(entityID)
	if !ok {
		return fmt.Errorf("%w: %s for %d", ErrNotLoaded, template, entityID)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if err := inst.rec.Validate(); err != nil {
		return err
	}
	return fn(inst.rec)
}

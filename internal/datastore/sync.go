package datastore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Observer receives a numeric field whose session delta should be pushed
// into derived ranked stores. It owns calling field.MarkSynced.
type Observer func(ctx context.Context, entityID int64, field *record.Field)

type registration struct {
	field string
	fn    Observer
}

// Dispatcher holds at most one observer per source template.
type Dispatcher struct {
	mu     sync.RWMutex
	regs   map[string]registration
	logger logger.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(l logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.Get().Named("sync")
	}
	return &Dispatcher{regs: make(map[string]registration), logger: l}
}

// Register stores fn for template, replacing any earlier observer for it.
func (d *Dispatcher) Register(template, field string, fn Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.regs[template]; ok {
		d.logger.Warn(context.Background(), "replacing sync observer",
			logger.String("template", template),
			logger.String("previous_field", prev.field),
			logger.String("field", field),
		)
	}
	d.regs[template] = registration{field: field, fn: fn}
}

// Dispatch invokes the observer registered for template with the matching
// field of rec. Missing or non-numeric fields are skipped. The caller must
// hold the lock guarding rec.
func (d *Dispatcher) Dispatch(ctx context.Context, template string, entityID int64, rec *record.Record) bool {
	d.mu.RLock()
	reg, ok := d.regs[template]
	d.mu.RUnlock()
	if !ok || reg.fn == nil || rec == nil {
		return false
	}

	f := rec.Field(reg.field)
	if f == nil || f.Value.Kind() != record.KindNumber {
		return false
	}

	id := uuid.NewString()
	ctx = context.WithValue(ctx, syncIDKey{}, id)
	d.logger.Debug(ctx, "dispatching sync",
		logger.String("sync_id", id),
		logger.String("template", template),
		logger.String("field", reg.field),
		logger.Int64("entity", entityID),
	)
	metrics.RecordSyncDispatch(template)
	reg.fn(ctx, entityID, f)
	return true
}

type syncIDKey struct{}

// SyncID returns the correlation id attached to an observer's context.
func SyncID(ctx context.Context) string {
	id, _ := ctx.Value(syncIDKey{}).(string)
	return id
}

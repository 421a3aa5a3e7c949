// Package datastore keeps per-entity records loaded from a remote key-value
// store, saves them periodically and on detach, and pushes field deltas into
// ranked stores through registered sync observers.
package datastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/domain/retry"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// instance is one entity's live record. mu serializes stat mutation,
// autosave and sync.
type instance struct {
	mu  sync.Mutex
	rec *record.Record
}

type scalarTemplate struct {
	name      string
	namespace string
	defaults  *record.Record
	autosave  time.Duration

	mu     sync.RWMutex
	loaded map[int64]*instance
}

func (t *scalarTemplate) get(entityID int64) (*instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.loaded[entityID]
	return inst, ok
}

func (t *scalarTemplate) put(entityID int64, inst *instance) {
	t.mu.Lock()
	t.loaded[entityID] = inst
	n := len(t.loaded)
	t.mu.Unlock()
	metrics.UpdateLoadedInstances(t.name, n)
}

func (t *scalarTemplate) remove(entityID int64, inst *instance) bool {
	t.mu.Lock()
	cur, ok := t.loaded[entityID]
	if ok && cur == inst {
		delete(t.loaded, entityID)
	}
	n := len(t.loaded)
	t.mu.Unlock()
	metrics.UpdateLoadedInstances(t.name, n)
	return ok && cur == inst
}

func (t *scalarTemplate) entities() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int64, 0, len(t.loaded))
	for id := range t.loaded {
		out = append(out, id)
	}
	return out
}

type rankedTemplate struct {
	name         string
	namespace    string
	defaultScore float64
}

// Manager is the template registry. It is safe for concurrent use.
type Manager struct {
	kv        repository.KeyValueStore
	ranked    repository.RankedStore
	retry     *retry.Executor
	resolver  identity.Resolver
	scheduler *schedule.Scheduler
	syncs     *Dispatcher
	logger    logger.Logger
	version   int

	mu          sync.RWMutex
	scalars     map[string]*scalarTemplate
	scalarOrder []string
	rankeds     map[string]*rankedTemplate
}

// New creates a Manager over the given stores.
func New(kv repository.KeyValueStore, ranked repository.RankedStore, opts ...Option) *Manager {
	m := &Manager{
		kv:      kv,
		ranked:  ranked,
		logger:  logger.Get().Named("datastore"),
		version: DefaultVersion,
		scalars: make(map[string]*scalarTemplate),
		rankeds: make(map[string]*rankedTemplate),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retry == nil {
		m.retry = retry.New()
	}
	if m.resolver == nil {
		m.resolver = identity.NewDirectory(nil)
	}
	if m.scheduler == nil {
		m.scheduler = schedule.New()
	}
	m.syncs = NewDispatcher(m.logger.Named("sync"))
	return m
}

// Version returns the namespace version tag.
func (m *Manager) Version() int { return m.version }

// AddSync registers the observer for field of template.
func (m *Manager) AddSync(template, field string, fn Observer) {
	m.syncs.Register(template, field, fn)
}

// RegisterScalarTemplate adds a record template. A zero autosave disables
// periodic saves for it.
func (m *Manager) RegisterScalarTemplate(name string, defaults *record.Record, autosave time.Duration) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTemplate)
	}
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, name, err)
	}
	if autosave < 0 {
		return fmt.Errorf("%w: %s: negative autosave interval", ErrInvalidTemplate, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scalars[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	m.scalars[name] = &scalarTemplate{
		name:      name,
		namespace: Namespace(name, m.version),
		defaults:  defaults.Clone(),
		autosave:  autosave,
		loaded:    make(map[int64]*instance),
	}
	m.scalarOrder = append(m.scalarOrder, name)
	m.logger.Info(context.Background(), "registered template",
		logger.String("template", name),
		logger.String("namespace", Namespace(name, m.version)),
		logger.Any("autosave", autosave),
	)
	return nil
}

// RegisterRankedTemplate adds a ranked template.
func (m *Manager) RegisterRankedTemplate(name string, defaultScore float64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTemplate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rankeds[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	m.rankeds[name] = &rankedTemplate{
		name:         name,
		namespace:    RankedNamespace(name, m.version),
		defaultScore: defaultScore,
	}
	m.logger.Info(context.Background(), "registered ranked template",
		logger.String("template", name),
		logger.String("namespace", RankedNamespace(name, m.version)),
	)
	return nil
}

// DefaultScore returns the default score a ranked template was registered with.
func (m *Manager) DefaultScore(name string) (float64, bool) {
	t, ok := m.rankedTemplate(name)
	if !ok {
		return 0, false
	}
	return t.defaultScore, true
}

func (m *Manager) scalarTemplate(name string) (*scalarTemplate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.scalars[name]
	return t, ok
}

func (m *Manager) rankedTemplate(name string) (*rankedTemplate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.rankeds[name]
	return t, ok
}

func (m *Manager) scalarTemplates() []*scalarTemplate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*scalarTemplate, 0, len(m.scalarOrder))
	for _, name := range m.scalarOrder {
		out = append(out, m.scalars[name])
	}
	return out
}

// LoadedEntities returns every entity with at least one loaded record, sorted.
func (m *Manager) LoadedEntities() []int64 {
	seen := make(map[int64]struct{})
	for _, t := range m.scalarTemplates() {
		for _, id := range t.entities() {
			seen[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsLoaded reports whether entityID has a live record for template.
func (m *Manager) IsLoaded(entityID int64, template string) bool {
	t, ok := m.scalarTemplate(template)
	if !ok {
		return false
	}
	_, ok = t.get(entityID)
	return ok
}

// Shutdown detaches every loaded entity, then stops autosave timers.
func (m *Manager) Shutdown(ctx context.Context) error {
	failed := 0
	for _, id := range m.LoadedEntities() {
		for _, res := range m.DetachInstance(ctx, id) {
			if res.Err != nil {
				failed++
			}
		}
	}
	if err := m.scheduler.Stop(ctx); err != nil {
		return fmt.Errorf("stop autosave timers: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("shutdown: %d saves failed", failed)
	}
	return nil
}

// Package formwizard wires the wizard engine together: a catalog of
// definitions, an entity store per backend resource, reference data, an
// optional OpenAPI contract check and snapshot persistence. Callers that need
// finer control can use pkg/session directly.
package formwizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/contract"
	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/session"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/memory"
	"github.com/goliatone/go-formwizard/pkg/wizards"
)

// ErrNoSnapshots is returned by Save and Resume when no snapshot store is
// configured.
var ErrNoSnapshots = errors.New("formwizard: no snapshot store configured")

// Snapshots persists session snapshots between runs.
type Snapshots interface {
	SaveSnapshot(ctx context.Context, id, wizard string, data []byte) error
	LoadSnapshot(ctx context.Context, id string) (string, []byte, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// StoreFactory returns the entity store backing def's resource.
type StoreFactory func(def *model.Definition) (store.Store, error)

// Option configures an Engine.
type Option func(*Engine)

// Engine starts, resumes and edits wizard sessions.
type Engine struct {
	catalog   *definition.Catalog
	factory   StoreFactory
	refs      refdata.Provider
	contract  *contract.Contract
	snapshots Snapshots
	now       func() time.Time
	strict    bool
	logger    *zap.Logger

	mu     sync.Mutex
	stores map[string]store.Store
}

// WithCatalog replaces the bundled wizards.
func WithCatalog(catalog *definition.Catalog) Option {
	return func(e *Engine) {
		if catalog != nil {
			e.catalog = catalog
		}
	}
}

// WithStoreFactory sets how entity stores are built per resource. Stores are
// built once per resource and reused.
func WithStoreFactory(factory StoreFactory) Option {
	return func(e *Engine) {
		if factory != nil {
			e.factory = factory
		}
	}
}

// WithRefData replaces the bundled reference data.
func WithRefData(provider refdata.Provider) Option {
	return func(e *Engine) {
		if provider != nil {
			e.refs = provider
		}
	}
}

// WithContract checks payloads against the OpenAPI operations named by each
// wizard before they are sent.
func WithContract(c *contract.Contract) Option {
	return func(e *Engine) {
		e.contract = c
	}
}

// WithSnapshots enables Save and Resume.
func WithSnapshots(snapshots Snapshots) Option {
	return func(e *Engine) {
		e.snapshots = snapshots
	}
}

// WithClock sets "today" for every session.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithStrict makes sessions reject writes to undeclared fields.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an engine. Without options it serves the bundled wizards from
// in-memory stores with the bundled reference data.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		now:    time.Now,
		logger: zap.NewNop(),
		stores: make(map[string]store.Store),
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	if e.catalog == nil {
		catalog, err := wizards.Catalog()
		if err != nil {
			return nil, err
		}
		e.catalog = catalog
	}
	if e.refs == nil {
		static, err := wizards.RefData()
		if err != nil {
			return nil, err
		}
		e.refs = refdata.NewCached(static, refdata.WithLogger(e.logger))
	}
	if e.factory == nil {
		e.factory = func(*model.Definition) (store.Store, error) {
			return memory.New(memory.WithLogger(e.logger)), nil
		}
	}
	return e, nil
}

// Catalog returns the loaded wizards.
func (e *Engine) Catalog() *definition.Catalog {
	return e.catalog
}

// RefData returns the reference data provider sessions use.
func (e *Engine) RefData() refdata.Provider {
	return e.refs
}

// Store returns the entity store of def's resource.
func (e *Engine) Store(def *model.Definition) (store.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stores[def.Resource]; ok {
		return s, nil
	}
	s, err := e.factory(def)
	if err != nil {
		return nil, fmt.Errorf("formwizard: store for %s: %w", def.Resource, err)
	}
	e.stores[def.Resource] = s
	return s, nil
}

// Start opens a create session on wizard id.
func (e *Engine) Start(id string, options ...session.Option) (*session.Session, error) {
	def, base, err := e.prepare(id)
	if err != nil {
		return nil, err
	}
	return session.New(def, append(base, options...)...), nil
}

// Edit opens an edit session on wizard id seeded from entityID.
func (e *Engine) Edit(ctx context.Context, id, entityID string, options ...session.Option) (*session.Session, error) {
	def, base, err := e.prepare(id)
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, def, entityID, append(base, options...)...)
}

// Save persists a snapshot of s.
func (e *Engine) Save(ctx context.Context, s *session.Session) error {
	if e.snapshots == nil {
		return ErrNoSnapshots
	}
	snap := s.Snapshot()
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := e.snapshots.SaveSnapshot(ctx, snap.ID, snap.Wizard, data); err != nil {
		return fmt.Errorf("formwizard: save snapshot: %w", err)
	}
	e.logger.Debug("snapshot saved", zap.String("session", snap.ID), zap.String("wizard", snap.Wizard))
	return nil
}

// Resume restores the session saved under sessionID.
func (e *Engine) Resume(ctx context.Context, sessionID string, options ...session.Option) (*session.Session, error) {
	if e.snapshots == nil {
		return nil, ErrNoSnapshots
	}
	wizard, data, err := e.snapshots.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("formwizard: load snapshot: %w", err)
	}
	snap, err := session.UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	if snap.Wizard == "" {
		snap.Wizard = wizard
	}
	def, base, err := e.prepare(snap.Wizard)
	if err != nil {
		return nil, err
	}
	return session.Restore(def, snap, append(base, options...)...)
}

// Discard deletes a saved snapshot.
func (e *Engine) Discard(ctx context.Context, sessionID string) error {
	if e.snapshots == nil {
		return ErrNoSnapshots
	}
	return e.snapshots.DeleteSnapshot(ctx, sessionID)
}

func (e *Engine) prepare(id string) (*model.Definition, []session.Option, error) {
	def, err := e.catalog.Get(id)
	if err != nil {
		return nil, nil, err
	}
	backend, err := e.Store(def)
	if err != nil {
		return nil, nil, err
	}
	options := []session.Option{
		session.WithStore(backend),
		session.WithRefData(e.refs),
		session.WithClock(e.now),
		session.WithStrict(e.strict),
		session.WithLogger(e.logger),
	}
	if e.contract != nil {
		options = append(options, session.WithPayloadValidator(contractValidator{e.contract}))
	}
	return def, options, nil
}

// contractValidator skips operations the contract does not describe so a
// partial OpenAPI document does not block every other wizard.
type contractValidator struct {
	c *contract.Contract
}

func (v contractValidator) Validate(operation string, dto map[string]any) error {
	if !v.c.Has(operation) {
		return nil
	}
	return v.c.Validate(operation, dto)
}

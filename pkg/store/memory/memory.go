// Package memory is an in-process entity store. Updates merge into the stored
// entity, so fields a submission omits keep their persisted values.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/store"
)

// Option configures a Store.
type Option func(*Store)

// WithIDs replaces the id generator.
func WithIDs(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.nextID = next
		}
	}
}

// WithClock sets the time source for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEntities preloads entities keyed by id.
func WithEntities(entities map[string]store.Entity) Option {
	return func(s *Store) {
		for id, entity := range entities {
			s.entities[id] = copyEntity(entity)
		}
	}
}

// Call records one write for assertions.
type Call struct {
	Op    string
	ID    string
	DTO   map[string]any
	Files []string
}

// Store keeps entities in memory.
type Store struct {
	mu       sync.Mutex
	entities map[string]store.Entity
	blobs    map[string]map[string]attachments.File
	calls    []Call
	failures []error
	nextID   func() string
	now      func() time.Time
	logger   *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New(options ...Option) *Store {
	s := &Store{
		entities: make(map[string]store.Entity),
		blobs:    make(map[string]map[string]attachments.File),
		nextID:   func() string { return uuid.NewString() },
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// FailNext queues err to be returned by the next write.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// Create stores dto as a new entity. Files are recorded by name under their
// part name.
func (s *Store) Create(ctx context.Context, dto map[string]any, files store.Files) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, record("create", "", dto, files))
	if err := s.popFailure(); err != nil {
		return "", err
	}

	id := s.nextID()
	entity := copyEntity(dto)
	entity["id"] = id
	entity["createdAt"] = s.now().UTC().Format(time.RFC3339)
	s.storeFiles(id, entity, files)
	s.entities[id] = entity

	s.logger.Debug("entity created", zap.String("id", id), zap.Int("files", len(files)))
	return id, nil
}

// Update merges dto into the entity. Files replace only the parts they name.
func (s *Store) Update(ctx context.Context, id string, dto map[string]any, files store.Files) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, record("update", id, dto, files))
	if err := s.popFailure(); err != nil {
		return "", err
	}

	entity, ok := s.entities[id]
	if !ok {
		return "", store.NotFound(id)
	}
	for key, value := range copyEntity(dto) {
		entity[key] = value
	}
	entity["id"] = id
	entity["updatedAt"] = s.now().UTC().Format(time.RFC3339)
	s.storeFiles(id, entity, files)

	s.logger.Debug("entity updated", zap.String("id", id), zap.Int("files", len(files)))
	return id, nil
}

// GetByID returns a copy of the entity.
func (s *Store) GetByID(ctx context.Context, id string) (store.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return copyEntity(entity), nil
}

// List returns every entity ordered by id.
func (s *Store) List(ctx context.Context) ([]store.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]store.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyEntity(s.entities[id]))
	}
	return out, nil
}

// File returns an uploaded part.
func (s *Store) File(id, name string) (attachments.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.blobs[id][name]
	return file, ok
}

// Calls returns the recorded writes.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) popFailure() error {
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

func (s *Store) storeFiles(id string, entity store.Entity, files store.Files) {
	if len(files) == 0 {
		return
	}
	if s.blobs[id] == nil {
		s.blobs[id] = make(map[string]attachments.File)
	}
	for name, file := range files {
		file.Data = append([]byte(nil), file.Data...)
		s.blobs[id][name] = file
		entity[name] = file.Name
	}
}

func record(op, id string, dto map[string]any, files store.Files) Call {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return Call{Op: op, ID: id, DTO: copyEntity(dto), Files: names}
}

func copyEntity(src map[string]any) store.Entity {
	out := make(store.Entity, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

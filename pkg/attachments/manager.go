package attachments

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/model"
)

const DefaultMaxBytes int64 = 5 << 20

// DefaultAccept is used for attachment fields that do not narrow their types.
var DefaultAccept = []string{"image/*", "application/pdf"}

// File is a raw selection made by the user.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// Size reports the payload length in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Slot is the attachment state of one field. PersistedName is what the
// backend already holds; File is a pending replacement.
type Slot struct {
	FieldName     string `json:"fieldName"`
	File          *File  `json:"file,omitempty"`
	PreviewHandle string `json:"previewHandle,omitempty"`
	PersistedName string `json:"persistedName,omitempty"`
	PersistedURL  string `json:"persistedUrl,omitempty"`
}

// Pending reports whether a new file waits to be uploaded.
func (s Slot) Pending() bool {
	return s.File != nil
}

// Present reports whether the slot holds a file, pending or persisted.
func (s Slot) Present() bool {
	return s.File != nil || s.PersistedName != ""
}

// DisplayName returns the pending filename, falling back to the persisted one.
func (s Slot) DisplayName() string {
	if s.File != nil {
		return s.File.Name
	}
	return s.PersistedName
}

// Policy limits what a slot accepts.
type Policy struct {
	MaxBytes int64
	Accept   []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used to stamp preview handles.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDefaultPolicy replaces the limits applied to fields whose definition
// leaves them unset.
func WithDefaultPolicy(policy Policy) Option {
	return func(m *Manager) {
		m.fallback = policy
	}
}

// WithEntropy overrides the randomness behind preview handles.
func WithEntropy(r io.Reader) Option {
	return func(m *Manager) {
		if r != nil {
			m.entropy = ulid.Monotonic(r, 0)
		}
	}
}

// Manager owns the attachment slots of one session. Every preview handle it
// issues stays resolvable until the file is replaced or cleared, or the
// manager is released.
type Manager struct {
	mu       sync.Mutex
	policies map[string]model.AttachmentPolicy
	fallback Policy
	slots    map[string]*Slot
	handles  map[string]string
	released bool
	entropy  io.Reader
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates slots for every attachment field declared by def.
func NewManager(def *model.Definition, options ...Option) *Manager {
	m := &Manager{
		policies: make(map[string]model.AttachmentPolicy),
		fallback: Policy{MaxBytes: DefaultMaxBytes, Accept: DefaultAccept},
		slots:    make(map[string]*Slot),
		handles:  make(map[string]string),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(m)
		}
	}
	if def != nil {
		for _, step := range def.Steps {
			for _, field := range step.Fields {
				if field.Attachment == nil {
					continue
				}
				m.policies[field.Name] = *field.Attachment
				m.slots[field.Name] = &Slot{FieldName: field.Name}
			}
		}
	}
	return m
}

// Policy returns the effective limits for field.
func (m *Manager) Policy(field string) (Policy, bool) {
	declared, ok := m.policies[field]
	if !ok {
		return Policy{}, false
	}
	policy := m.fallback
	if declared.MaxBytes > 0 {
		policy.MaxBytes = declared.MaxBytes
	}
	if len(declared.Accept) > 0 {
		policy.Accept = declared.Accept
	}
	return policy, true
}

// Attach validates file against the field policy and stores it as the
// pending file, revoking the preview handle of any file it replaces. A
// rejected file leaves the slot untouched and is reported as *Error.
func (m *Manager) Attach(field string, file File) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return Slot{}, ErrReleased
	}
	slot, ok := m.slots[field]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	policy, _ := m.Policy(field)

	if policy.MaxBytes > 0 && file.Size() > policy.MaxBytes {
		return Slot{}, &Error{Field: field, Code: CodeTooLarge, Size: file.Size(), Limit: policy.MaxBytes}
	}
	contentType := DetectContentType(file)
	if !Accepts(policy.Accept, contentType) {
		return Slot{}, &Error{Field: field, Code: CodeUnsupportedType, ContentType: contentType, Accept: policy.Accept}
	}

	m.revokeLocked(slot)
	stored := file
	stored.ContentType = contentType
	stored.Data = append([]byte(nil), file.Data...)
	slot.File = &stored
	slot.PreviewHandle = m.newHandleLocked()
	m.handles[slot.PreviewHandle] = field

	m.logger.Debug("attachment stored",
		zap.String("field", field),
		zap.String("name", file.Name),
		zap.Int64("bytes", file.Size()),
	)
	return cloneSlot(slot), nil
}

// Clear drops the pending file of field. The persisted name is kept, so an
// edit session still reports the server-side file.
func (m *Manager) Clear(field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	m.revokeLocked(slot)
	slot.File = nil
	return nil
}

// Seed records a file the backend already stores for field.
func (m *Manager) Seed(field, persistedName, persistedURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	slot.PersistedName = strings.TrimSpace(persistedName)
	slot.PersistedURL = strings.TrimSpace(persistedURL)
	return nil
}

// Slot returns a copy of the slot for field.
func (m *Manager) Slot(field string) (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[field]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(slot), true
}

// Slots returns copies of every slot sorted by field name.
func (m *Manager) Slots() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.slots))
	for name := range m.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Slot, 0, len(names))
	for _, name := range names {
		out = append(out, cloneSlot(m.slots[name]))
	}
	return out
}

// Resolve returns the file behind a live preview handle.
func (m *Manager) Resolve(handle string) (File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	field, ok := m.handles[handle]
	if !ok {
		return File{}, false
	}
	slot := m.slots[field]
	if slot == nil || slot.File == nil {
		return File{}, false
	}
	return *slot.File, true
}

// Release revokes every preview handle and drops pending files. It is safe
// to call more than once; later Attach calls fail with ErrReleased.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return
	}
	for _, slot := range m.slots {
		m.revokeLocked(slot)
		slot.File = nil
	}
	m.released = true
	m.logger.Debug("attachments released")
}

// Released reports whether Release has run.
func (m *Manager) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// LiveHandles reports how many preview handles are still resolvable.
func (m *Manager) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func (m *Manager) revokeLocked(slot *Slot) {
	if slot.PreviewHandle == "" {
		return
	}
	delete(m.handles, slot.PreviewHandle)
	slot.PreviewHandle = ""
}

func (m *Manager) newHandleLocked() string {
	id := ulid.MustNew(ulid.Timestamp(m.now()), m.entropy)
	return "preview:" + id.String()
}

func cloneSlot(slot *Slot) Slot {
	out := *slot
	if slot.File != nil {
		file := *slot.File
		out.File = &file
	}
	return out
}

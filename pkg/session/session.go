// Package session drives one user through a wizard: it owns the field
// registry and attachment slots, gates navigation on step validation and
// submits the assembled payload to the entity store.
//
// A session is single-owner. Navigation calls are serialised and a call that
// arrives while another is running fails with ErrNavigationInProgress; a
// second Submit during a submission fails with ErrSubmitInProgress. Close
// releases attachment previews and must be called on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/assembler"
	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/hydrator"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/registry"
	"github.com/goliatone/go-formwizard/pkg/rules"
	"github.com/goliatone/go-formwizard/pkg/store"
)

// Session is one wizard interaction.
type Session struct {
	id        string
	def       *model.Definition
	reg       *registry.Registry
	files     *attachments.Manager
	asm       *assembler.Assembler
	store     store.Store
	refs      refdata.Provider
	validator PayloadValidator
	rules     *rules.Set
	now       func() time.Time
	strict    bool
	logger    *zap.Logger

	attachmentOptions []attachments.Option

	nav        sync.Mutex
	submitting atomic.Bool

	mu         sync.Mutex
	state      model.SessionState
	lastErr    error
	formErrors []string
	closed     bool
}

// New starts a create session on def.
func New(def *model.Definition, options ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		def:    def,
		now:    time.Now,
		logger: zap.NewNop(),
		state: model.SessionState{
			Mode:  model.ModeCreate,
			Phase: model.PhaseEditing,
		},
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With(zap.String("session", s.id), zap.String("wizard", def.ID))

	regOptions := []registry.Option{
		registry.WithClock(s.now),
		registry.WithStrict(s.strict),
		registry.WithLogger(s.logger),
	}
	if s.rules != nil {
		regOptions = append(regOptions, registry.WithRules(s.rules))
	}
	s.reg = registry.New(def, regOptions...)

	fileOptions := append([]attachments.Option{
		attachments.WithClock(s.now),
		attachments.WithLogger(s.logger),
	}, s.attachmentOptions...)
	s.files = attachments.NewManager(def, fileOptions...)

	if s.asm == nil {
		s.asm = assembler.New(assembler.WithLogger(s.logger))
	}
	return s
}

// Open starts an edit session seeded from entity id. Any failure to fetch or
// map the entity is returned as *HydrationError.
func Open(ctx context.Context, def *model.Definition, id string, options ...Option) (*Session, error) {
	s := New(def, options...)
	if s.store == nil {
		return nil, &HydrationError{EntityID: id, Err: ErrNoStore}
	}
	entity, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, &HydrationError{EntityID: id, Err: err}
	}
	seed, err := hydrator.Hydrate(entity, def)
	if err != nil {
		return nil, &HydrationError{EntityID: id, Err: err}
	}
	if err := seed.Apply(s.reg, s.files); err != nil {
		return nil, &HydrationError{EntityID: id, Err: err}
	}
	s.state.Mode = model.ModeEdit
	s.state.EntityID = id
	s.logger.Debug("edit session opened", zap.String("entity", id), zap.Int("values", len(seed.Values)))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Definition returns the wizard being filled.
func (s *Session) Definition() *model.Definition {
	return s.def
}

// State returns the current position of the session.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the last failed submission, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// FormErrors returns backend messages that matched no field.
func (s *Session) FormErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.formErrors...)
}

// Value returns the current value of field.
func (s *Session) Value(field string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, _ := s.reg.Get(field)
	return slot.Value
}

// Values returns a copy of every value.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Values()
}

// Errors returns the current field error annotations.
func (s *Session) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Errors()
}

// Slot returns the attachment slot of field.
func (s *Session) Slot(field string) (attachments.Slot, bool) {
	return s.files.Slot(field)
}

// Preview returns the pending file behind a preview handle.
func (s *Session) Preview(handle string) (attachments.File, bool) {
	return s.files.Resolve(handle)
}

// Set writes a field value. Changing a field that keys an option list clears
// the fields depending on it.
func (s *Session) Set(field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if declared, ok := s.def.Field(field); ok && declared.IsAttachment() {
		return fmt.Errorf("%w: %q", ErrAttachmentField, field)
	}
	previous := model.Stringify(s.reg.Value(field))
	if err := s.reg.Set(field, value); err != nil {
		return err
	}
	if previous != model.Stringify(value) {
		s.clearDependentsLocked(field, map[string]bool{field: true})
	}
	return nil
}

// Attach stores file as the pending upload of field. A rejected file is
// returned as *attachments.Error and leaves the slot as it was.
func (s *Session) Attach(field string, file attachments.File) (attachments.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return attachments.Slot{}, err
	}
	slot, err := s.files.Attach(field, file)
	if err != nil {
		return attachments.Slot{}, err
	}
	if err := s.reg.Set(field, file.Name); err != nil {
		return attachments.Slot{}, err
	}
	return slot, nil
}

// ClearAttachment drops the pending upload of field. A file the backend
// already holds stays attached.
func (s *Session) ClearAttachment(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if err := s.files.Clear(field); err != nil {
		return err
	}
	slot, _ := s.files.Slot(field)
	if slot.PersistedName != "" {
		return s.reg.Set(field, slot.PersistedName)
	}
	return s.reg.Clear(field)
}

// Options lists the choices of a select field, keyed by the current value of
// its parent field. A parent without a value yields no options.
func (s *Session) Options(ctx context.Context, field string) ([]refdata.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == nil {
		return nil, ErrNoRefData
	}
	declared, ok := s.def.Field(field)
	if !ok || declared.Options == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoOptions, field)
	}
	return s.listLocked(ctx, declared)
}

// Advance validates the current step and moves forward. On the final step it
// submits. A failed validation is reported in the result with a nil error
// and the step is unchanged.
func (s *Session) Advance(ctx context.Context) (model.ValidationResult, error) {
	if !s.nav.TryLock() {
		return model.ValidationResult{}, ErrNavigationInProgress
	}
	defer s.nav.Unlock()

	s.mu.Lock()
	if err := s.navigableLocked(); err != nil {
		s.mu.Unlock()
		return model.ValidationResult{}, err
	}
	step := s.state.CurrentStep
	if step == s.def.LastStep() {
		s.mu.Unlock()
		return s.Submit(ctx)
	}
	res, err := s.validateLocked(ctx, step)
	if err != nil || !res.Valid {
		s.mu.Unlock()
		if err == nil {
			s.logger.Debug("advance blocked", zap.Int("step", step), zap.Int("errors", len(res.Errors)))
		}
		return res, err
	}
	s.state.CurrentStep++
	if s.state.CurrentStep > s.state.MaxReachedStep {
		s.state.MaxReachedStep = s.state.CurrentStep
	}
	s.state.Phase = model.PhaseEditing
	s.logger.Debug("advanced", zap.Int("from", step), zap.Int("to", s.state.CurrentStep))
	s.mu.Unlock()
	return res, nil
}

// Retreat moves one step back without validating. It is a no-op on the
// first step.
func (s *Session) Retreat() error {
	if !s.nav.TryLock() {
		return ErrNavigationInProgress
	}
	defer s.nav.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.navigableLocked(); err != nil {
		return err
	}
	if s.state.CurrentStep > 0 {
		s.state.CurrentStep--
	}
	s.state.Phase = model.PhaseEditing
	s.logger.Debug("retreated", zap.Int("to", s.state.CurrentStep))
	return nil
}

// JumpTo moves to any step already reached.
func (s *Session) JumpTo(step int) error {
	if !s.nav.TryLock() {
		return ErrNavigationInProgress
	}
	defer s.nav.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.navigableLocked(); err != nil {
		return err
	}
	if step < 0 || step > s.state.MaxReachedStep {
		return fmt.Errorf("%w: %d (reached %d)", ErrStepUnreachable, step, s.state.MaxReachedStep)
	}
	s.state.CurrentStep = step
	s.state.Phase = model.PhaseEditing
	s.logger.Debug("jumped", zap.Int("to", step))
	return nil
}

// Submit validates the final step, assembles the payload and sends it to the
// store. Validation failures are reported in the result with a nil error.
// A store failure leaves the session FAILED on the final step with every
// value intact and is returned as *SubmissionError; calling Submit again
// retries.
func (s *Session) Submit(ctx context.Context) (model.ValidationResult, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return model.ValidationResult{}, ErrSubmitInProgress
	}
	defer s.submitting.Store(false)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.ValidationResult{}, ErrClosed
	}
	if s.state.Phase == model.PhaseSubmitted {
		s.mu.Unlock()
		return model.ValidationResult{}, ErrAlreadySubmitted
	}
	if s.state.CurrentStep != s.def.LastStep() {
		s.mu.Unlock()
		return model.ValidationResult{}, ErrNotFinalStep
	}
	res, err := s.validateLocked(ctx, s.state.CurrentStep)
	if err != nil || !res.Valid {
		s.mu.Unlock()
		return res, err
	}

	s.state.Phase = model.PhaseSubmitting
	s.lastErr = nil
	s.formErrors = nil
	payload, err := s.asm.Assemble(assembler.Input{
		Definition:  s.def,
		Registry:    s.reg,
		Attachments: s.files,
		State:       s.state,
	})
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return res, err
	}
	state := s.state
	values := s.reg.Values()
	s.mu.Unlock()

	id, err := s.send(ctx, state, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		subErr := submissionError(err)
		mapping := MapFieldErrors(s.def, values, subErr.Fields)
		for field, messages := range mapping.Fields {
			s.reg.SetError(field, strings.Join(messages, "; "))
		}
		s.formErrors = mapping.Form
		s.failLocked(subErr)
		return res, subErr
	}
	s.state.Phase = model.PhaseSubmitted
	s.state.EntityID = id
	s.files.Release()
	s.logger.Info("submitted", zap.String("entity", id), zap.String("mode", string(state.Mode)))
	return res, nil
}

// Close releases every attachment preview. It is safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.files.Release()
	s.logger.Debug("session closed", zap.String("phase", string(s.state.Phase)))
	return nil
}

func (s *Session) send(ctx context.Context, state model.SessionState, payload assembler.Payload) (string, error) {
	if s.store == nil {
		return "", ErrNoStore
	}
	operation := s.def.Operations.Create
	if state.Mode == model.ModeEdit {
		operation = s.def.Operations.Update
	}
	if s.validator != nil && operation != "" {
		if err := s.validator.Validate(operation, payload.JSON); err != nil {
			return "", err
		}
	}
	if state.Mode == model.ModeEdit {
		return s.store.Update(ctx, state.EntityID, payload.JSON, payload.Files())
	}
	return s.store.Create(ctx, payload.JSON, payload.Files())
}

func (s *Session) validateLocked(ctx context.Context, step int) (model.ValidationResult, error) {
	res, err := s.reg.ValidateStep(step)
	if err != nil || s.refs == nil {
		return res, err
	}
	schema, err := s.reg.ActiveSchema(step)
	if err != nil {
		return model.ValidationResult{}, err
	}
	for _, name := range schema.Visible() {
		field, _ := s.def.Field(name)
		if field.Options == nil || !field.Options.Strict {
			continue
		}
		if _, failed := res.Errors[name]; failed {
			continue
		}
		value := s.reg.Value(name)
		if model.IsEmpty(value) {
			continue
		}
		options, err := s.listLocked(ctx, field)
		if err != nil {
			return model.ValidationResult{}, fmt.Errorf("session: load options for %s: %w", name, err)
		}
		if refdata.Contains(options, model.Stringify(value)) {
			continue
		}
		msg := labelOf(field) + " is not a valid choice"
		s.reg.SetError(name, msg)
		if res.Errors == nil {
			res.Errors = make(map[string]string)
		}
		res.Errors[name] = msg
		res.Valid = false
	}
	return res, nil
}

func (s *Session) listLocked(ctx context.Context, field model.FieldDefinition) ([]refdata.Option, error) {
	parentKey := ""
	if parent := field.Options.Parent; parent != "" {
		parentKey = model.Stringify(s.reg.Value(parent))
		if parentKey == "" {
			return []refdata.Option{}, nil
		}
	}
	return s.refs.List(ctx, field.Options.Source, parentKey)
}

func (s *Session) clearDependentsLocked(parent string, seen map[string]bool) {
	for _, dependent := range s.def.Dependents(parent) {
		if seen[dependent] {
			continue
		}
		seen[dependent] = true
		if !model.IsEmpty(s.reg.Value(dependent)) {
			_ = s.reg.Clear(dependent)
			s.logger.Debug("cleared dependent field", zap.String("field", dependent), zap.String("parent", parent))
		}
		s.clearDependentsLocked(dependent, seen)
	}
}

func (s *Session) writableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.state.Phase == model.PhaseSubmitted:
		return ErrAlreadySubmitted
	case s.state.Phase == model.PhaseSubmitting:
		return ErrSubmitInProgress
	}
	return nil
}

func (s *Session) navigableLocked() error {
	return s.writableLocked()
}

func (s *Session) failLocked(err error) {
	s.state.Phase = model.PhaseFailed
	s.lastErr = err
	s.logger.Warn("submission failed", zap.Int("step", s.state.CurrentStep), zap.Error(err))
}

type storeErrorer interface {
	StoreError() *store.Error
}

func submissionError(err error) *SubmissionError {
	out := &SubmissionError{Err: err}
	var converter storeErrorer
	if errors.As(err, &converter) {
		if storeErr := converter.StoreError(); storeErr != nil {
			out.Status = storeErr.Status
			out.Message = storeErr.Message
			out.Fields = storeErr.Fields
		}
		return out
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		out.Status = storeErr.Status
		out.Message = storeErr.Message
		out.Fields = storeErr.Fields
	}
	return out
}

func labelOf(field model.FieldDefinition) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

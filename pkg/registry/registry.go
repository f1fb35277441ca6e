package registry

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/resolver"
	"github.com/goliatone/go-formwizard/pkg/rules"
)

// ErrUnknownField is returned in strict mode when a caller writes a field no
// step declares.
var ErrUnknownField = errors.New("registry: field is not declared by any step")

// Option configures a Registry.
type Option func(*Registry)

// WithStrict makes writes to undeclared fields fail instead of being ignored.
// Development builds enable it; production builds log and drop the write.
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// WithRules replaces the checker table used by ValidateStep.
func WithRules(set *rules.Set) Option {
	return func(r *Registry) {
		if set != nil {
			r.rules = set
		}
	}
}

// WithClock sets the "today" used by date and age rules.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry tracks value, touched state and error of every field of a wizard.
// It is owned by a single session and is not safe for concurrent writers.
type Registry struct {
	def      *model.Definition
	resolver *resolver.Resolver
	rules    *rules.Set
	now      func() time.Time
	strict   bool
	logger   *zap.Logger

	steps   map[string]int
	values  map[string]any
	touched map[string]bool
	errors  map[string]string
}

// New creates an empty registry for def.
func New(def *model.Definition, options ...Option) *Registry {
	r := &Registry{
		def:      def,
		resolver: resolver.New(def),
		rules:    rules.Default(),
		now:      time.Now,
		logger:   zap.NewNop(),
		steps:    make(map[string]int),
		values:   make(map[string]any),
		touched:  make(map[string]bool),
		errors:   make(map[string]string),
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	for _, step := range def.Steps {
		for _, field := range step.Fields {
			r.steps[field.Name] = step.Index
		}
	}
	return r
}

// Definition returns the wizard the registry was built for.
func (r *Registry) Definition() *model.Definition {
	return r.def
}

// Resolver returns the schema resolver bound to the registry's definition.
func (r *Registry) Resolver() *resolver.Resolver {
	return r.resolver
}

// Declared reports whether a step declares field.
func (r *Registry) Declared(field string) bool {
	_, ok := r.steps[field]
	return ok
}

// StepOf returns the step index declaring field.
func (r *Registry) StepOf(field string) (int, bool) {
	step, ok := r.steps[field]
	return step, ok
}

// Set stores value, marks field touched and clears its error. Conditional
// rules are not evaluated here; callers re-resolve schemas after writes.
func (r *Registry) Set(field string, value any) error {
	if !r.Declared(field) {
		return r.unknown(field)
	}
	r.values[field] = deepCopy(value)
	r.touched[field] = true
	delete(r.errors, field)
	return nil
}

// Clear resets field to the untouched empty state.
func (r *Registry) Clear(field string) error {
	if !r.Declared(field) {
		return r.unknown(field)
	}
	delete(r.values, field)
	delete(r.touched, field)
	delete(r.errors, field)
	return nil
}

// Seed writes initial values without marking them touched. Undeclared fields
// are skipped so hydration can pass backend payloads through unfiltered.
func (r *Registry) Seed(values map[string]any) {
	for field, value := range values {
		if !r.Declared(field) {
			continue
		}
		r.values[field] = deepCopy(value)
	}
}

// Get returns the slot of field. ok is false for undeclared fields.
func (r *Registry) Get(field string) (model.FieldValue, bool) {
	if !r.Declared(field) {
		return model.FieldValue{}, false
	}
	return model.FieldValue{
		Value:   deepCopy(r.values[field]),
		Touched: r.touched[field],
		Error:   r.errors[field],
	}, true
}

// Value returns the raw value of field, or nil.
func (r *Registry) Value(field string) any {
	return r.values[field]
}

// GetAll returns the slots of the fields declared on step.
func (r *Registry) GetAll(step int) map[string]model.FieldValue {
	if step < 0 || step >= len(r.def.Steps) {
		return nil
	}
	out := make(map[string]model.FieldValue, len(r.def.Steps[step].Fields))
	for _, name := range r.def.Steps[step].FieldNames() {
		out[name], _ = r.Get(name)
	}
	return out
}

// Values returns a deep copy of every stored value.
func (r *Registry) Values() map[string]any {
	return cloneValues(r.values)
}

// Touched returns the names of touched fields.
func (r *Registry) Touched() map[string]bool {
	out := make(map[string]bool, len(r.touched))
	for k, v := range r.touched {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the current error annotations.
func (r *Registry) Errors() map[string]string {
	out := make(map[string]string, len(r.errors))
	for k, v := range r.errors {
		out[k] = v
	}
	return out
}

// SetError annotates field with message without touching its value. An
// empty message clears the annotation.
func (r *Registry) SetError(field, message string) {
	if !r.Declared(field) {
		return
	}
	if message == "" {
		delete(r.errors, field)
		return
	}
	r.errors[field] = message
}

// Restore replaces the registry contents with a previously captured state.
func (r *Registry) Restore(values map[string]any, touched map[string]bool) {
	r.values = make(map[string]any, len(values))
	r.touched = make(map[string]bool, len(touched))
	r.errors = make(map[string]string)
	r.Seed(values)
	for field, ok := range touched {
		if ok && r.Declared(field) {
			r.touched[field] = true
		}
	}
}

// ActiveSchema resolves step against the current values.
func (r *Registry) ActiveSchema(step int) (resolver.Schema, error) {
	return r.resolver.ActiveSchema(step, r.values)
}

// ValidateStep runs the active schema of step against the current values and
// replaces the step's error annotations with the outcome. Values are never
// modified, so the call can be repeated freely.
func (r *Registry) ValidateStep(step int) (model.ValidationResult, error) {
	errs, err := r.check(step)
	if err != nil {
		return model.ValidationResult{}, err
	}
	for _, name := range r.def.Steps[step].FieldNames() {
		delete(r.errors, name)
	}
	for name, msg := range errs {
		r.errors[name] = msg
	}
	return result(errs), nil
}

// CheckStep is ValidateStep without the error annotation side effect.
func (r *Registry) CheckStep(step int) (model.ValidationResult, error) {
	errs, err := r.check(step)
	if err != nil {
		return model.ValidationResult{}, err
	}
	return result(errs), nil
}

// IsStepComplete reports whether step currently validates.
func (r *Registry) IsStepComplete(step int) bool {
	res, err := r.CheckStep(step)
	return err == nil && res.Valid
}

func (r *Registry) check(step int) (map[string]string, error) {
	schema, err := r.resolver.ActiveSchema(step, r.values)
	if err != nil {
		return nil, err
	}
	env := rules.Env{Now: r.now()}
	inactive := r.unselected()
	errs := make(map[string]string)
	for _, name := range schema.Order {
		field := schema.Fields[name]
		if field.Hidden || inactive[name] {
			continue
		}
		value := r.values[name]
		if model.IsEmpty(value) {
			if field.Required {
				errs[name] = labelFor(field) + " is required"
			}
			continue
		}
		if err := r.rules.CheckAll(field.Validations, value, env); err != nil {
			errs[name] = message(field, err)
		}
	}
	return errs, nil
}

// unselected lists exclusive group members that no current selector value
// picks. They are neither validated nor submitted.
func (r *Registry) unselected() map[string]bool {
	out := make(map[string]bool)
	keep := make(map[string]bool)
	for _, group := range r.def.Mapping.Groups {
		selected := model.Stringify(r.values[group.Selector])
		for choice, members := range group.Choices {
			for _, member := range members {
				if choice == selected {
					keep[member] = true
				} else {
					out[member] = true
				}
			}
		}
	}
	for member := range keep {
		delete(out, member)
	}
	return out
}

func (r *Registry) unknown(field string) error {
	if r.strict {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	r.logger.Warn("write to undeclared field ignored", zap.String("field", field), zap.String("wizard", r.def.ID))
	return nil
}

func result(errs map[string]string) model.ValidationResult {
	if len(errs) == 0 {
		return model.ValidationResult{Valid: true}
	}
	return model.ValidationResult{Valid: false, Errors: errs}
}

func labelFor(field resolver.FieldSchema) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

func message(field resolver.FieldSchema, err error) string {
	var ruleErr *rules.Error
	if errors.As(err, &ruleErr) && ruleErr.Custom {
		return ruleErr.Message
	}
	return labelFor(field) + " " + err.Error()
}

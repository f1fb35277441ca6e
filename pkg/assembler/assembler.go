package assembler

import (
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/registry"
	"github.com/goliatone/go-formwizard/pkg/resolver"
)

// Input is everything the assembler reads. Attachments may be nil for
// wizards without file fields.
type Input struct {
	Definition  *model.Definition
	Registry    *registry.Registry
	Attachments *attachments.Manager
	State       model.SessionState
}

// Part is one binary attachment of a multipart submission, named by its
// canonical backend field.
type Part struct {
	Name string
	File attachments.File
}

// Payload is the backend DTO: JSON values plus binary parts.
type Payload struct {
	JSON  map[string]any
	Parts []Part
}

// Marshal encodes the JSON half of the payload. Map keys are sorted by
// encoding/json, so identical payloads encode to identical bytes.
func (p Payload) Marshal() ([]byte, error) {
	if p.JSON == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.JSON)
}

// Part returns the binary part named name.
func (p Payload) Part(name string) (Part, bool) {
	for _, part := range p.Parts {
		if part.Name == name {
			return part, true
		}
	}
	return Part{}, false
}

// Files returns the parts keyed by name, the shape stores accept.
func (p Payload) Files() map[string]attachments.File {
	if len(p.Parts) == 0 {
		return nil
	}
	out := make(map[string]attachments.File, len(p.Parts))
	for _, part := range p.Parts {
		out[part.Name] = part.File
	}
	return out
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSanitizer replaces the string cleaner applied to every emitted value.
func WithSanitizer(fn func(string) string) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.sanitize = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Assembler maps registry values onto the canonical backend DTO.
type Assembler struct {
	sanitize func(string) string
	logger   *zap.Logger
}

// New builds an Assembler.
func New(options ...Option) *Assembler {
	a := &Assembler{
		sanitize: Sanitize,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Assemble runs the default assembler.
func Assemble(in Input) (Payload, error) {
	return New().Assemble(in)
}

// Assemble builds the payload for in. Only fields on steps up to
// State.MaxReachedStep that the active schema does not hide contribute.
// Canonical fields take the first non-empty alias; exclusive groups emit the
// tuple picked by their selector; attachments are emitted as parts only when
// a new file is pending, so a persisted file is never cleared. Fields no
// mapping entry mentions are emitted under their own name.
func (a *Assembler) Assemble(in Input) (Payload, error) {
	if in.Registry == nil {
		return Payload{}, ErrNoRegistry
	}
	def := in.Definition
	if def == nil {
		def = in.Registry.Definition()
	}

	raw := in.Registry.Values()
	schemas, err := in.Registry.Resolver().ActiveSchemas(reachable(def, in.State), raw)
	if err != nil {
		return Payload{}, err
	}

	included := make(map[string]resolver.FieldSchema)
	for _, schema := range schemas {
		for _, name := range schema.Order {
			field := schema.Fields[name]
			if !field.Hidden {
				included[name] = field
			}
		}
	}

	// values are what gets sent: a field holding only markup is empty
	values := make(map[string]any, len(raw))
	for name, value := range raw {
		if !model.IsEmpty(value) {
			values[name] = a.clean(value)
		}
	}
	if missing := a.missing(schemas, values, in.Attachments); len(missing) > 0 {
		a.logger.Warn("refusing incomplete submission", zap.Strings("fields", missing), zap.String("wizard", def.ID))
		return Payload{}, &IncompleteSubmissionError{Fields: missing}
	}

	out := Payload{JSON: make(map[string]any)}
	referenced := make(map[string]bool)

	for _, canonical := range def.Mapping.Fields {
		for _, alias := range canonical.Aliases {
			referenced[alias] = true
		}
		if canonical.Attachment {
			for _, alias := range canonical.Aliases {
				if _, ok := included[alias]; !ok {
					continue
				}
				if file, ok := pending(in.Attachments, alias); ok {
					out.Parts = append(out.Parts, Part{Name: canonical.Name, File: file})
					break
				}
			}
			continue
		}
		for _, alias := range canonical.Aliases {
			if _, ok := included[alias]; !ok {
				continue
			}
			if value := values[alias]; !model.IsEmpty(value) {
				out.JSON[canonical.Name] = value
				break
			}
		}
	}

	for _, group := range def.Mapping.Groups {
		for _, members := range group.Choices {
			for _, member := range members {
				referenced[member] = true
			}
		}
		if _, ok := included[group.Selector]; !ok {
			continue
		}
		choice, ok := group.Choices[model.Stringify(raw[group.Selector])]
		if !ok {
			continue
		}
		for i, target := range group.Targets {
			if i >= len(choice) {
				break
			}
			member := choice[i]
			field, ok := included[member]
			if !ok {
				continue
			}
			if field.Attachment {
				if file, ok := pending(in.Attachments, member); ok {
					out.Parts = append(out.Parts, Part{Name: target, File: file})
				}
				continue
			}
			if value := values[member]; !model.IsEmpty(value) {
				out.JSON[target] = value
			}
		}
	}

	var implicit []string
	for name := range included {
		if !referenced[name] {
			implicit = append(implicit, name)
		}
	}
	sort.Strings(implicit)
	for _, name := range implicit {
		if included[name].Attachment {
			if file, ok := pending(in.Attachments, name); ok {
				out.Parts = append(out.Parts, Part{Name: name, File: file})
			}
			continue
		}
		if value := values[name]; !model.IsEmpty(value) {
			out.JSON[name] = value
		}
	}

	a.logger.Debug("payload assembled",
		zap.String("wizard", def.ID),
		zap.Int("fields", len(out.JSON)),
		zap.Int("parts", len(out.Parts)),
	)
	return out, nil
}

func (a *Assembler) missing(schemas []resolver.Schema, values map[string]any, files *attachments.Manager) []string {
	var out []string
	for _, schema := range schemas {
		for _, name := range schema.Required() {
			field := schema.Fields[name]
			if field.Attachment {
				if slot, ok := slotOf(files, name); ok && slot.Present() {
					continue
				}
			}
			if !model.IsEmpty(values[name]) {
				continue
			}
			out = append(out, name)
		}
	}
	return out
}

func (a *Assembler) clean(value any) any {
	switch typed := value.(type) {
	case string:
		return a.sanitize(typed)
	case []string:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if cleaned := a.sanitize(item); cleaned != "" {
				out = append(out, cleaned)
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, a.clean(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = a.clean(v)
		}
		return out
	case time.Time:
		if typed.IsZero() {
			return nil
		}
		return typed.Format(model.DateLayout)
	default:
		return value
	}
}

func reachable(def *model.Definition, state model.SessionState) int {
	upTo := state.MaxReachedStep
	if upTo < state.CurrentStep {
		upTo = state.CurrentStep
	}
	if last := def.LastStep(); upTo > last {
		upTo = last
	}
	return upTo
}

func slotOf(files *attachments.Manager, field string) (attachments.Slot, bool) {
	if files == nil {
		return attachments.Slot{}, false
	}
	return files.Slot(field)
}

func pending(files *attachments.Manager, field string) (attachments.File, bool) {
	slot, ok := slotOf(files, field)
	if !ok || !slot.Pending() {
		return attachments.File{}, false
	}
	return *slot.File, true
}

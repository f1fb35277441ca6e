package resolver

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/condition"
	"github.com/goliatone/go-formwizard/pkg/model"
)

// ErrStepOutOfRange is returned for step indices outside the definition.
var ErrStepOutOfRange = errors.New("resolver: step index out of range")

// FieldSchema is the effective schema of one field after conditional rules
// have been applied.
type FieldSchema struct {
	Name        string
	Label       string
	Required    bool
	Hidden      bool
	Attachment  bool
	Validations []model.ValidationRule
}

// Schema is the effective ruleset of one step.
type Schema struct {
	Step   int
	Order  []string
	Fields map[string]FieldSchema
}

// Field returns the schema of name on this step.
func (s Schema) Field(name string) (FieldSchema, bool) {
	field, ok := s.Fields[name]
	return field, ok
}

// Required lists visible required fields in declaration order.
func (s Schema) Required() []string {
	var out []string
	for _, name := range s.Order {
		if field := s.Fields[name]; field.Required && !field.Hidden {
			out = append(out, name)
		}
	}
	return out
}

// Visible lists the fields that are not hidden, in declaration order.
func (s Schema) Visible() []string {
	var out []string
	for _, name := range s.Order {
		if !s.Fields[name].Hidden {
			out = append(out, name)
		}
	}
	return out
}

// Resolver maps a step index to its active schema.
type Resolver struct {
	def   *model.Definition
	exprs map[string]*condition.Expr
}

// New builds a resolver over def. The definition is treated as immutable.
// Rule expressions are compiled once; one that does not compile never
// matches (pkg/definition reports it when the file is linted).
func New(def *model.Definition) *Resolver {
	r := &Resolver{def: def, exprs: make(map[string]*condition.Expr)}
	if def == nil {
		return r
	}
	for _, step := range def.Steps {
		for _, rule := range step.Rules {
			if rule.When == "" {
				continue
			}
			if _, done := r.exprs[rule.When]; done {
				continue
			}
			expr, _ := condition.Compile(rule.When)
			r.exprs[rule.When] = expr
		}
	}
	return r
}

// active reports whether rule's condition holds for values.
func (r *Resolver) active(rule model.ConditionalRule, values map[string]any) bool {
	if rule.When != "" {
		return r.exprs[rule.When].Eval(values)
	}
	current := values[rule.WhenField]
	return !model.IsEmpty(current) && model.Matches(current, rule.WhenValue)
}

// Definition returns the wizard the resolver works on.
func (r *Resolver) Definition() *model.Definition {
	return r.def
}

// ActiveSchema returns the static schema of step combined with every
// conditional rule whose condition currently holds. Rules apply in
// declaration order and the last active rule for a field decides whether it
// is shown. A field targeted by any show rule starts hidden; hidden fields are
// never required. values must contain the current value of every field the
// rules reference, including fields declared on other steps.
func (r *Resolver) ActiveSchema(step int, values map[string]any) (Schema, error) {
	if r == nil || r.def == nil || step < 0 || step >= len(r.def.Steps) {
		return Schema{}, fmt.Errorf("%w: %d", ErrStepOutOfRange, step)
	}
	def := r.def.Steps[step]

	schema := Schema{
		Step:   step,
		Order:  def.FieldNames(),
		Fields: make(map[string]FieldSchema, len(def.Fields)),
	}
	for _, field := range def.Fields {
		schema.Fields[field.Name] = FieldSchema{
			Name:        field.Name,
			Label:       field.Label,
			Required:    field.Required,
			Attachment:  field.IsAttachment(),
			Validations: field.Validations,
		}
	}

	for _, rule := range def.Rules {
		if rule.Effect != model.EffectShow {
			continue
		}
		if field, ok := schema.Fields[rule.ThenField]; ok {
			field.Hidden = true
			schema.Fields[rule.ThenField] = field
		}
	}

	for _, rule := range def.Rules {
		field, ok := schema.Fields[rule.ThenField]
		if !ok {
			continue
		}
		if !r.active(rule, values) {
			continue
		}
		switch rule.Effect {
		case model.EffectRequire:
			field.Required = true
			field.Hidden = false
		case model.EffectShow:
			field.Hidden = false
		case model.EffectHide:
			field.Hidden = true
		}
		schema.Fields[rule.ThenField] = field
	}

	return schema, nil
}

// ActiveSchemas resolves every step in [0, upTo].
func (r *Resolver) ActiveSchemas(upTo int, values map[string]any) ([]Schema, error) {
	if upTo >= len(r.def.Steps) {
		upTo = len(r.def.Steps) - 1
	}
	out := make([]Schema, 0, upTo+1)
	for step := 0; step <= upTo; step++ {
		schema, err := r.ActiveSchema(step, values)
		if err != nil {
			return nil, err
		}
		out = append(out, schema)
	}
	return out, nil
}

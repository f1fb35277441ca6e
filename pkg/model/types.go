package model

// Mode distinguishes fresh sessions from sessions seeded by an existing entity.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Phase is the coarse state of a session. While editing, the active step is
// carried by SessionState.CurrentStep.
type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseFailed     Phase = "failed"
)

// Effect is the outcome a ConditionalRule applies to its target field.
type Effect string

const (
	EffectRequire Effect = "require"
	EffectShow    Effect = "show"
	EffectHide    Effect = "hide"
)

const (
	ValidationRuleMin       = "min"
	ValidationRuleMax       = "max"
	ValidationRuleMinLength = "minLength"
	ValidationRuleMaxLength = "maxLength"
	ValidationRulePattern   = "pattern"
	ValidationRuleDigits    = "digits"
	ValidationRuleEnum      = "enum"
	ValidationRuleDate      = "date"
	ValidationRuleAge       = "age"
	ValidationRuleEmail     = "email"
	ValidationRulePhone     = "phone"
	ValidationRulePincode   = "pincode"
	ValidationRuleAadhaar   = "aadhaar"
	ValidationRulePAN       = "pan"
	ValidationRuleIFSC      = "ifsc"
	ValidationRuleVoterID   = "voterId"
)

// ValidationRule represents a single declarative constraint applied to a
// field. Thresholds are encoded as strings in Params (for example
// Params["value"] for min/max/length rules, Params["pattern"] for patterns,
// Params["min"]/Params["max"] for age ranges) so definitions decode the same
// way from JSON and YAML. Message overrides the default error text.
type ValidationRule struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
}

// AttachmentPolicy marks a field as a file slot. Accept lists MIME types or
// wildcard families ("image/*"); an empty policy falls back to the attachment
// manager defaults.
type AttachmentPolicy struct {
	MaxBytes int64    `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty"`
	Accept   []string `json:"accept,omitempty" yaml:"accept,omitempty"`
}

// OptionsSource binds a select field to a reference-data list. Parent names
// the field whose value keys the lookup (state for district, district for
// block); changing the parent clears the child. Strict requires the current
// value to be one of the listed options when the step is advanced.
type OptionsSource struct {
	Source string `json:"source" yaml:"source"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Strict bool   `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// FieldDefinition declares one input on a step together with its static
// schema.
type FieldDefinition struct {
	Name        string            `json:"name" yaml:"name"`
	Label       string            `json:"label,omitempty" yaml:"label,omitempty"`
	Required    bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Disabled    bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Validations []ValidationRule  `json:"validations,omitempty" yaml:"validations,omitempty"`
	Attachment  *AttachmentPolicy `json:"attachment,omitempty" yaml:"attachment,omitempty"`
	Options     *OptionsSource    `json:"options,omitempty" yaml:"options,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsAttachment reports whether the field holds a file rather than a value.
func (f FieldDefinition) IsAttachment() bool {
	return f.Attachment != nil
}

// ConditionalRule toggles a field on the rule's step when a sibling field
// (possibly declared on an earlier step) holds WhenValue. WhenValue may be a
// scalar or a list, in which case any listed value matches. When, if set,
// replaces the pair with a pkg/condition expression over several fields.
type ConditionalRule struct {
	WhenField string `json:"whenField,omitempty" yaml:"whenField,omitempty"`
	WhenValue any    `json:"whenValue,omitempty" yaml:"whenValue,omitempty"`
	When      string `json:"when,omitempty" yaml:"when,omitempty"`
	ThenField string `json:"thenField" yaml:"thenField"`
	Effect    Effect `json:"effect" yaml:"effect"`
}

// StepDefinition is one screen of a wizard.
type StepDefinition struct {
	Index  int               `json:"index" yaml:"-"`
	ID     string            `json:"id" yaml:"id"`
	Label  string            `json:"label,omitempty" yaml:"label,omitempty"`
	Fields []FieldDefinition `json:"fields" yaml:"fields"`
	Rules  []ConditionalRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Field returns the definition of a field declared on this step.
func (s StepDefinition) Field(name string) (FieldDefinition, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// FieldNames lists the step's fields in declaration order.
func (s StepDefinition) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		names = append(names, field.Name)
	}
	return names
}

// CanonicalField resolves one backend DTO field from UI aliases tried in
// order. Attachment fields are emitted as binary parts instead of JSON;
// Sources lists the backend fields that may hold a persisted filename or URL,
// in priority order, and is only consulted during hydration.
type CanonicalField struct {
	Name       string   `json:"name" yaml:"name"`
	Aliases    []string `json:"aliases" yaml:"aliases"`
	Attachment bool     `json:"attachment,omitempty" yaml:"attachment,omitempty"`
	Sources    []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// ExclusiveGroup collapses mutually exclusive UI field tuples onto a single
// set of canonical Targets. Choices maps each selector value to the UI fields
// that fill the targets, positionally.
type ExclusiveGroup struct {
	Selector string              `json:"selector" yaml:"selector"`
	Targets  []string            `json:"targets" yaml:"targets"`
	Choices  map[string][]string `json:"choices" yaml:"choices"`
}

// CanonicalMapping is the static alias table consulted at assembly and
// hydration time only.
type CanonicalMapping struct {
	Fields []CanonicalField `json:"fields" yaml:"fields"`
	Groups []ExclusiveGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Operations names the OpenAPI operations backing create and update calls.
type Operations struct {
	Create string `json:"create,omitempty" yaml:"create,omitempty"`
	Update string `json:"update,omitempty" yaml:"update,omitempty"`
}

// Definition is a complete wizard: its steps, alias mapping and the backend
// resource it submits to.
type Definition struct {
	ID         string           `json:"id" yaml:"id"`
	Label      string           `json:"label,omitempty" yaml:"label,omitempty"`
	Resource   string           `json:"resource" yaml:"resource"`
	AssetBase  string           `json:"assetBase,omitempty" yaml:"assetBase,omitempty"`
	Operations Operations       `json:"operations,omitempty" yaml:"operations,omitempty"`
	Steps      []StepDefinition `json:"steps" yaml:"steps"`
	Mapping    CanonicalMapping `json:"mapping" yaml:"mapping"`
	Source     string           `json:"-" yaml:"-"`
}

// LastStep returns the index of the final step, or -1 for an empty wizard.
func (d *Definition) LastStep() int {
	return len(d.Steps) - 1
}

// StepOf returns the index of the step declaring field.
func (d *Definition) StepOf(field string) (int, bool) {
	for _, step := range d.Steps {
		if _, ok := step.Field(field); ok {
			return step.Index, true
		}
	}
	return -1, false
}

// Field looks a field up across all steps.
func (d *Definition) Field(name string) (FieldDefinition, bool) {
	for _, step := range d.Steps {
		if field, ok := step.Field(name); ok {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// Dependents returns the fields whose option lists are keyed by parent, in
// declaration order.
func (d *Definition) Dependents(parent string) []string {
	var out []string
	for _, step := range d.Steps {
		for _, field := range step.Fields {
			if field.Options != nil && field.Options.Parent == parent {
				out = append(out, field.Name)
			}
		}
	}
	return out
}

// FieldValue is the registry slot for one field.
type FieldValue struct {
	Value   any    `json:"value"`
	Touched bool   `json:"touched"`
	Error   string `json:"error,omitempty"`
}

// ValidationResult reports the outcome of validating one step. Errors is
// keyed by field name.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// SessionState is the serialisable position of a session.
type SessionState struct {
	CurrentStep    int    `json:"currentStep"`
	MaxReachedStep int    `json:"maxReachedStep"`
	Mode           Mode   `json:"mode"`
	EntityID       string `json:"entityId,omitempty"`
	Phase          Phase  `json:"phase"`
}

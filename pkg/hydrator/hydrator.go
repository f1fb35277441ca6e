package hydrator

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/registry"
	"github.com/goliatone/go-formwizard/pkg/rules"
)

var (
	// ErrEmptyEntity is returned when the backend returned no entity body.
	ErrEmptyEntity = errors.New("hydrator: entity is empty")
	// ErrNoDefinition is returned when Hydrate is called without a wizard.
	ErrNoDefinition = errors.New("hydrator: definition is nil")
)

// Persisted describes a file the backend already stores.
type Persisted struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Seed is the registry and attachment state derived from a backend entity.
type Seed struct {
	Values      map[string]any       `json:"values"`
	Attachments map[string]Persisted `json:"attachments,omitempty"`
}

// Hydrate maps a backend entity onto the UI fields of def. Every canonical
// value is written to each of its aliases; an exclusive group writes its
// targets into the tuple chosen by the selector. Backend fields the mapping
// does not know are ignored.
func Hydrate(raw map[string]any, def *model.Definition) (Seed, error) {
	if def == nil {
		return Seed{}, ErrNoDefinition
	}
	if len(raw) == 0 {
		return Seed{}, ErrEmptyEntity
	}

	seed := Seed{
		Values:      make(map[string]any),
		Attachments: make(map[string]Persisted),
	}
	referenced := make(map[string]bool)

	for _, canonical := range def.Mapping.Fields {
		for _, alias := range canonical.Aliases {
			referenced[alias] = true
		}
		if canonical.Attachment {
			sources := canonical.Sources
			if len(sources) == 0 {
				sources = defaultSources(canonical.Name)
			}
			file, ok := persisted(raw, sources, def.AssetBase)
			if !ok {
				continue
			}
			for _, alias := range canonical.Aliases {
				seed.attach(alias, file)
			}
			continue
		}
		value, ok := raw[canonical.Name]
		if !ok || model.IsEmpty(value) {
			continue
		}
		for _, alias := range canonical.Aliases {
			seed.Values[alias] = normalize(def, alias, value)
		}
	}

	for _, group := range def.Mapping.Groups {
		for _, members := range group.Choices {
			for _, member := range members {
				referenced[member] = true
			}
		}
		selected := model.Stringify(raw[group.Selector])
		if selected == "" {
			selected = model.Stringify(seed.Values[group.Selector])
		}
		choice, ok := group.Choices[selected]
		if !ok {
			continue
		}
		for i, target := range group.Targets {
			if i >= len(choice) {
				break
			}
			member := choice[i]
			field, declared := def.Field(member)
			if !declared {
				continue
			}
			if field.IsAttachment() {
				if file, ok := persisted(raw, defaultSources(target), def.AssetBase); ok {
					seed.attach(member, file)
				}
				continue
			}
			if value, ok := raw[target]; ok && !model.IsEmpty(value) {
				seed.Values[member] = normalize(def, member, value)
			}
		}
	}

	for _, step := range def.Steps {
		for _, field := range step.Fields {
			if referenced[field.Name] {
				continue
			}
			if field.IsAttachment() {
				if file, ok := persisted(raw, defaultSources(field.Name), def.AssetBase); ok {
					seed.attach(field.Name, file)
				}
				continue
			}
			if value, ok := raw[field.Name]; ok && !model.IsEmpty(value) {
				seed.Values[field.Name] = normalize(def, field.Name, value)
			}
		}
	}

	return seed, nil
}

// Apply writes the seed into a fresh registry and attachment manager. Values
// are seeded untouched; attachment fields also receive the persisted filename
// as their registry value.
func (s Seed) Apply(reg *registry.Registry, files *attachments.Manager) error {
	if reg != nil {
		reg.Seed(s.Values)
	}
	if files == nil {
		return nil
	}
	for field, file := range s.Attachments {
		if err := files.Seed(field, file.Name, file.URL); err != nil {
			if errors.Is(err, attachments.ErrUnknownField) {
				continue
			}
			return fmt.Errorf("hydrator: seed attachment %s: %w", field, err)
		}
	}
	return nil
}

func (s *Seed) attach(field string, file Persisted) {
	s.Attachments[field] = file
	s.Values[field] = file.Name
}

func defaultSources(name string) []string {
	return []string{name + "FileName", name + "Url", name}
}

// persisted takes the first non-empty source. Absolute URLs are kept as they
// are; bare filenames are resolved against base.
func persisted(raw map[string]any, sources []string, base string) (Persisted, bool) {
	for _, source := range sources {
		value, ok := raw[source].(string)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if isAbsoluteURL(value) {
			return Persisted{Name: fileName(value), URL: value}, true
		}
		return Persisted{Name: value, URL: AssetURL(base, value)}, true
	}
	return Persisted{}, false
}

// AssetURL joins a bare filename onto the static asset base.
func AssetURL(base, name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return name
	}
	return base + "/" + name
}

func isAbsoluteURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return parsed.IsAbs() && parsed.Host != ""
}

func fileName(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return raw
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// normalize rewrites backend timestamps on date fields to the date-only
// layout the form edits.
func normalize(def *model.Definition, field string, value any) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	declared, ok := def.Field(field)
	if !ok || !isDateField(declared) {
		return value
	}
	parsed, err := rules.ParseDate(text)
	if err != nil {
		return value
	}
	return parsed.Format(model.DateLayout)
}

func isDateField(field model.FieldDefinition) bool {
	for _, rule := range field.Validations {
		if rule.Kind == model.ValidationRuleAge || rule.Kind == model.ValidationRuleDate {
			return true
		}
	}
	return false
}

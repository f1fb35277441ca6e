package cli

import (
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// Built-in prompt kinds.
const (
	WidgetFile   = "file"
	WidgetSelect = "select"
	WidgetChoice = "choice"
	WidgetText   = "text"
)

// Matcher decides whether a prompt kind handles field.
type Matcher func(field model.FieldDefinition) bool

type widgetRule struct {
	name     string
	priority int
	match    Matcher
	order    int
}

// Widgets picks the prompt kind for a field from an explicit
// metadata["widget"] hint or the registered matchers. Higher priority wins;
// ties go to the later registration. Fields nothing matches are asked as
// text.
type Widgets struct {
	mu    sync.RWMutex
	rules []widgetRule
}

// NewWidgets returns a registry with the built-in kinds: file for
// attachments, select for reference-data options, choice for enum rules.
func NewWidgets() *Widgets {
	w := &Widgets{}
	w.Register(WidgetFile, 90, func(field model.FieldDefinition) bool {
		return field.IsAttachment()
	})
	w.Register(WidgetSelect, 80, func(field model.FieldDefinition) bool {
		return field.Options != nil
	})
	w.Register(WidgetChoice, 70, func(field model.FieldDefinition) bool {
		return len(enumValues(field)) > 0
	})
	return w
}

// Register adds a matcher.
func (w *Widgets) Register(name string, priority int, match Matcher) {
	name = strings.TrimSpace(name)
	if w == nil || match == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rules = append(w.rules, widgetRule{name: name, priority: priority, match: match, order: len(w.rules)})
}

// Resolve returns the prompt kind for field.
func (w *Widgets) Resolve(field model.FieldDefinition) string {
	if explicit := strings.TrimSpace(field.Metadata["widget"]); explicit != "" {
		return explicit
	}
	if w == nil {
		return WidgetText
	}
	w.mu.RLock()
	rules := append([]widgetRule(nil), w.rules...)
	w.mu.RUnlock()
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].priority == rules[j].priority {
			return rules[i].order > rules[j].order
		}
		return rules[i].priority > rules[j].priority
	})
	for _, rule := range rules {
		if rule.match(field) {
			return rule.name
		}
	}
	return WidgetText
}

// enumValues lists the values of the field's enum rule, if any.
func enumValues(field model.FieldDefinition) []string {
	for _, rule := range field.Validations {
		if rule.Kind != model.ValidationRuleEnum {
			continue
		}
		var out []string
		for _, v := range strings.Split(rule.Params["values"], ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return nil
}

package definition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/condition"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/rules"
)

// LintError lists every problem found in one definition.
type LintError struct {
	Wizard   string
	Source   string
	Problems []string
}

func (e *LintError) Error() string {
	name := e.Wizard
	if e.Source != "" {
		name = fmt.Sprintf("%s (%s)", e.Wizard, e.Source)
	}
	return fmt.Sprintf("definition: %s has %d problem(s): %s", name, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Lint checks def for structural mistakes: every field declared on exactly
// one step, known validation kinds, rules and option parents that point at
// declared fields on the same or an earlier step, no option parent cycles,
// and a mapping that only references declared fields. A nil set means
// rules.Default().
func Lint(def *model.Definition, set *rules.Set) error {
	if set == nil {
		set = rules.Default()
	}
	l := &linter{def: def, set: set, stepOf: make(map[string]int)}
	l.run()
	if len(l.problems) == 0 {
		return nil
	}
	return &LintError{Wizard: def.ID, Source: def.Source, Problems: l.problems}
}

type linter struct {
	def      *model.Definition
	set      *rules.Set
	stepOf   map[string]int
	problems []string
}

func (l *linter) addf(format string, args ...any) {
	l.problems = append(l.problems, fmt.Sprintf(format, args...))
}

func (l *linter) run() {
	if l.def.ID == "" {
		l.addf("wizard id is empty")
	}
	if l.def.Resource == "" {
		l.addf("resource is empty")
	}
	if len(l.def.Steps) == 0 {
		l.addf("wizard has no steps")
		return
	}

	stepIDs := make(map[string]bool, len(l.def.Steps))
	for i, step := range l.def.Steps {
		if step.ID == "" {
			l.addf("step %d has no id", i)
		} else if stepIDs[step.ID] {
			l.addf("step id %q is used twice", step.ID)
		}
		stepIDs[step.ID] = true
		for _, field := range step.Fields {
			l.field(i, field)
		}
	}
	for i, step := range l.def.Steps {
		for _, field := range step.Fields {
			l.options(i, field)
		}
		for _, rule := range step.Rules {
			l.rule(i, step, rule)
		}
	}
	l.parentCycles()
	l.mapping()
}

func (l *linter) field(step int, field model.FieldDefinition) {
	if field.Name == "" {
		l.addf("step %d declares a field without a name", step)
		return
	}
	if prev, ok := l.stepOf[field.Name]; ok {
		l.addf("field %q is declared on step %d and step %d", field.Name, prev, step)
		return
	}
	l.stepOf[field.Name] = step
	for _, rule := range field.Validations {
		if !l.set.Known(rule.Kind) {
			l.addf("field %q uses unknown validation %q", field.Name, rule.Kind)
		}
	}
	if field.Attachment != nil && field.Options != nil {
		l.addf("field %q cannot be both an attachment and a select", field.Name)
	}
}

func (l *linter) options(step int, field model.FieldDefinition) {
	if field.Options == nil {
		return
	}
	if strings.TrimSpace(field.Options.Source) == "" {
		l.addf("field %q has an option list without a source", field.Name)
	}
	parent := field.Options.Parent
	if parent == "" {
		return
	}
	at, ok := l.stepOf[parent]
	switch {
	case !ok:
		l.addf("field %q depends on undeclared field %q", field.Name, parent)
	case at > step:
		l.addf("field %q depends on %q which is declared on a later step", field.Name, parent)
	}
}

func (l *linter) rule(step int, def model.StepDefinition, rule model.ConditionalRule) {
	switch rule.Effect {
	case model.EffectRequire, model.EffectShow, model.EffectHide:
	default:
		l.addf("step %q has a rule with unknown effect %q", def.ID, rule.Effect)
	}
	if _, ok := def.Field(rule.ThenField); !ok {
		l.addf("step %q rule targets %q which is not declared on that step", def.ID, rule.ThenField)
	}
	reads := []string{rule.WhenField}
	switch {
	case rule.When != "" && rule.WhenField != "":
		l.addf("step %q rule on %q sets both when and whenField", def.ID, rule.ThenField)
		return
	case rule.When != "":
		expr, err := condition.Compile(rule.When)
		if err != nil {
			l.addf("step %q rule on %q: %v", def.ID, rule.ThenField, err)
			return
		}
		reads = expr.Fields()
	case rule.WhenField == "":
		l.addf("step %q rule on %q has no condition", def.ID, rule.ThenField)
		return
	}
	for _, name := range reads {
		at, ok := l.stepOf[name]
		switch {
		case !ok:
			l.addf("step %q rule reads undeclared field %q", def.ID, name)
		case at > step:
			l.addf("step %q rule reads %q which is declared on a later step", def.ID, name)
		}
	}
}

func (l *linter) parentCycles() {
	parents := make(map[string]string)
	for _, step := range l.def.Steps {
		for _, field := range step.Fields {
			if field.Options != nil && field.Options.Parent != "" {
				parents[field.Name] = field.Options.Parent
			}
		}
	}
	names := make([]string, 0, len(parents))
	for name := range parents {
		names = append(names, name)
	}
	sort.Strings(names)

	reported := make(map[string]bool)
	for _, start := range names {
		seen := map[string]bool{start: true}
		for cur := parents[start]; cur != ""; cur = parents[cur] {
			if seen[cur] {
				if !reported[cur] {
					reported[cur] = true
					l.addf("option dependency cycle through %q", cur)
				}
				break
			}
			seen[cur] = true
		}
	}
}

func (l *linter) mapping() {
	names := make(map[string]bool)
	for _, canonical := range l.def.Mapping.Fields {
		if canonical.Name == "" {
			l.addf("mapping has a canonical field without a name")
			continue
		}
		if names[canonical.Name] {
			l.addf("canonical field %q is mapped twice", canonical.Name)
		}
		names[canonical.Name] = true
		if len(canonical.Aliases) == 0 {
			l.addf("canonical field %q has no aliases", canonical.Name)
		}
		for _, alias := range canonical.Aliases {
			field, ok := l.def.Field(alias)
			switch {
			case !ok:
				l.addf("canonical field %q maps undeclared alias %q", canonical.Name, alias)
			case canonical.Attachment != field.IsAttachment():
				l.addf("canonical field %q and alias %q disagree on being an attachment", canonical.Name, alias)
			}
		}
	}

	for _, group := range l.def.Mapping.Groups {
		if _, ok := l.def.Field(group.Selector); !ok {
			l.addf("group selector %q is not declared", group.Selector)
		}
		if len(group.Targets) == 0 {
			l.addf("group %q has no targets", group.Selector)
		}
		for _, target := range group.Targets {
			if names[target] {
				l.addf("group target %q is also a canonical field", target)
			}
		}
		choices := make([]string, 0, len(group.Choices))
		for choice := range group.Choices {
			choices = append(choices, choice)
		}
		sort.Strings(choices)
		for _, choice := range choices {
			members := group.Choices[choice]
			if len(members) != len(group.Targets) {
				l.addf("group %q choice %q has %d members for %d targets", group.Selector, choice, len(members), len(group.Targets))
			}
			for _, member := range members {
				if _, ok := l.def.Field(member); !ok {
					l.addf("group %q choice %q names undeclared field %q", group.Selector, choice, member)
				}
			}
		}
	}
}

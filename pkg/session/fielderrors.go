package session

import (
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// FieldErrorMapping splits a backend error payload into messages keyed by
// UI field and form-level messages that match no field.
type FieldErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// MapFieldErrors maps backend error paths (canonical names, dotted paths or
// JSON pointers such as "/data/documentNumber") back onto the UI fields
// holding them. A canonical field resolves to the alias currently carrying a
// value, falling back to its first alias; a group target resolves to the
// member selected by the group's selector. Paths matching nothing become
// form-level messages so they are not lost.
func MapFieldErrors(def *model.Definition, values map[string]any, payload map[string][]string) FieldErrorMapping {
	mapping := FieldErrorMapping{Fields: make(map[string][]string)}
	paths := make([]string, 0, len(payload))
	for path := range payload {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		cleaned := normalizeMessages(payload[path])
		if len(cleaned) == 0 {
			continue
		}
		field := ""
		for _, segment := range pathSegments(path) {
			if field = resolveAlias(def, values, segment); field != "" {
				break
			}
		}
		if field == "" {
			mapping.Form = append(mapping.Form, cleaned...)
			continue
		}
		mapping.Fields[field] = normalizeMessages(append(mapping.Fields[field], cleaned...))
	}
	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

func resolveAlias(def *model.Definition, values map[string]any, name string) string {
	for _, canonical := range def.Mapping.Fields {
		if canonical.Name != name || len(canonical.Aliases) == 0 {
			continue
		}
		for _, alias := range canonical.Aliases {
			if !model.IsEmpty(values[alias]) {
				return alias
			}
		}
		return canonical.Aliases[0]
	}
	for _, group := range def.Mapping.Groups {
		for i, target := range group.Targets {
			if target != name {
				continue
			}
			choice := group.Choices[model.Stringify(values[group.Selector])]
			if i < len(choice) {
				return choice[i]
			}
			return group.Selector
		}
	}
	if _, ok := def.Field(name); ok {
		return name
	}
	return ""
}

// pathSegments breaks a dotted or pointer path into candidate names, most
// specific first, skipping array indices.
func pathSegments(path string) []string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil
	}
	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '/' || r == '.' || r == '[' || r == ']'
	})
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		part := strings.TrimSpace(parts[i])
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			continue
		}
		out = append(out, part)
	}
	return out
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

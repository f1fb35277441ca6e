package cli

import (
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/session"
)

var reviewTemplate = pongo2.Must(pongo2.FromString(`{% autoescape off %}Review: {{ wizard }}
{% for step in steps %}
{{ step.label }}
{% for field in step.fields %}  {{ field.label }}: {{ field.value }}
{% endfor %}{% endfor %}{% endautoescape %}`))

// Review renders the pre-submit summary of every reached step. Hidden and
// empty fields are left out; attachments show their file name.
func Review(view session.View) (string, error) {
	steps := make([]map[string]any, 0, len(view.Steps))
	for _, step := range view.Steps {
		if !step.IsReachable {
			continue
		}
		fields := make([]map[string]any, 0, len(step.Fields))
		for _, field := range step.Fields {
			if field.Hidden {
				continue
			}
			value := model.Stringify(field.Value)
			if field.Attachment != nil {
				value = field.Attachment.Name
			}
			if strings.TrimSpace(value) == "" {
				continue
			}
			fields = append(fields, map[string]any{"label": field.Label, "value": value})
		}
		steps = append(steps, map[string]any{"label": step.Label, "fields": fields})
	}
	out, err := reviewTemplate.Execute(pongo2.Context{
		"wizard": view.Label,
		"steps":  steps,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

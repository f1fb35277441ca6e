package cli

import (
	"testing"

	"github.com/goliatone/go-formwizard/pkg/model"
)

func TestWidgetsResolve(t *testing.T) {
	t.Parallel()

	enum := []model.ValidationRule{{Kind: model.ValidationRuleEnum, Params: map[string]string{"values": "male, female"}}}
	w := NewWidgets()
	cases := []struct {
		name  string
		field model.FieldDefinition
		want  string
	}{
		{"attachment", model.FieldDefinition{Attachment: &model.AttachmentPolicy{}}, WidgetFile},
		{"options", model.FieldDefinition{Options: &model.OptionsSource{Source: "states"}}, WidgetSelect},
		{"enum", model.FieldDefinition{Validations: enum}, WidgetChoice},
		{"plain", model.FieldDefinition{Name: "fullName"}, WidgetText},
		{"hint", model.FieldDefinition{Validations: enum, Metadata: map[string]string{"widget": "text"}}, WidgetText},
	}
	for _, tc := range cases {
		if got := w.Resolve(tc.field); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestWidgetsPriorityAndOverride(t *testing.T) {
	t.Parallel()

	w := NewWidgets()
	w.Register("masked", 95, func(field model.FieldDefinition) bool {
		return field.Name == "accountNumber"
	})
	w.Register("date", 70, func(field model.FieldDefinition) bool {
		return len(field.Validations) > 0
	})

	if got := w.Resolve(model.FieldDefinition{Name: "accountNumber", Attachment: &model.AttachmentPolicy{}}); got != "masked" {
		t.Fatalf("higher priority must win, got %q", got)
	}
	enum := model.FieldDefinition{Validations: []model.ValidationRule{{Kind: model.ValidationRuleEnum, Params: map[string]string{"values": "a"}}}}
	if got := w.Resolve(enum); got != "date" {
		t.Fatalf("later registration must win a tie, got %q", got)
	}

	var empty *Widgets
	if got := empty.Resolve(model.FieldDefinition{}); got != WidgetText {
		t.Fatalf("nil registry = %q", got)
	}
	if got := enumValues(enum); len(got) != 1 || got[0] != "a" {
		t.Fatalf("enumValues = %v", got)
	}
}

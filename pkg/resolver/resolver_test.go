package resolver_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/resolver"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

func TestActiveSchemaDocumentTypeSelector(t *testing.T) {
	t.Parallel()

	r := resolver.New(testsupport.KYCDefinition())

	schema, err := r.ActiveSchema(0, map[string]any{"documentType": "aadharNumber"})
	if err != nil {
		t.Fatalf("ActiveSchema: %v", err)
	}
	want := []string{"fullName", "documentType", "aadharNumber", "aadharFile"}
	if diff := cmp.Diff(want, schema.Required()); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}

	schema, err = r.ActiveSchema(0, map[string]any{"documentType": "panNumber"})
	if err != nil {
		t.Fatalf("ActiveSchema: %v", err)
	}
	want = []string{"fullName", "documentType", "panNumber", "panFile"}
	if diff := cmp.Diff(want, schema.Required()); diff != "" {
		t.Fatalf("required mismatch after switching (-want +got):\n%s", diff)
	}
}

func TestActiveSchemaIgnoresUnsetWhenField(t *testing.T) {
	t.Parallel()

	r := resolver.New(testsupport.KYCDefinition())
	schema, err := r.ActiveSchema(0, map[string]any{})
	if err != nil {
		t.Fatalf("ActiveSchema: %v", err)
	}
	if diff := cmp.Diff([]string{"fullName", "documentType"}, schema.Required()); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestShowRuleHidesUntilActive(t *testing.T) {
	t.Parallel()

	r := resolver.New(testsupport.KYCDefinition())

	schema, _ := r.ActiveSchema(2, map[string]any{"waterSource": "canal"})
	if field, _ := schema.Field("borewellDepth"); !field.Hidden || field.Required {
		t.Fatalf("borewellDepth should be hidden and optional: %+v", field)
	}

	schema, _ = r.ActiveSchema(2, map[string]any{"waterSource": "borewell"})
	if field, _ := schema.Field("borewellDepth"); field.Hidden || !field.Required {
		t.Fatalf("borewellDepth should be visible and required: %+v", field)
	}
}

func TestLastActiveRuleWins(t *testing.T) {
	t.Parallel()

	def := &model.Definition{
		Steps: []model.StepDefinition{{
			Index: 0,
			Fields: []model.FieldDefinition{
				{Name: "role", Required: true},
				{Name: "registrationType", Required: true},
				{Name: "registrationNumber"},
			},
			Rules: []model.ConditionalRule{
				{WhenField: "role", WhenValue: []any{"ADMIN", "SUPER_ADMIN"}, ThenField: "registrationNumber", Effect: model.EffectRequire},
				{WhenField: "role", WhenValue: "SUPER_ADMIN", ThenField: "registrationType", Effect: model.EffectHide},
				{WhenField: "role", WhenValue: "SUPER_ADMIN", ThenField: "registrationNumber", Effect: model.EffectHide},
			},
		}},
	}
	r := resolver.New(def)

	schema, _ := r.ActiveSchema(0, map[string]any{"role": "ADMIN"})
	if diff := cmp.Diff([]string{"role", "registrationType", "registrationNumber"}, schema.Required()); diff != "" {
		t.Fatalf("admin required mismatch (-want +got):\n%s", diff)
	}

	schema, _ = r.ActiveSchema(0, map[string]any{"role": "SUPER_ADMIN"})
	if diff := cmp.Diff([]string{"role"}, schema.Required()); diff != "" {
		t.Fatalf("super admin required mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"role"}, schema.Visible()); diff != "" {
		t.Fatalf("super admin visible mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveSchemaOutOfRange(t *testing.T) {
	t.Parallel()

	r := resolver.New(testsupport.KYCDefinition())
	if _, err := r.ActiveSchema(9, nil); !errors.Is(err, resolver.ErrStepOutOfRange) {
		t.Fatalf("expected ErrStepOutOfRange, got %v", err)
	}
	schemas, err := r.ActiveSchemas(99, nil)
	if err != nil || len(schemas) != 4 {
		t.Fatalf("ActiveSchemas = %d, %v", len(schemas), err)
	}
}

func TestExpressionRules(t *testing.T) {
	t.Parallel()

	def := &model.Definition{
		Steps: []model.StepDefinition{{
			Fields: []model.FieldDefinition{
				{Name: "registrationType", Required: true},
				{Name: "memberCount", Required: true},
				{Name: "auditReport"},
				{Name: "remarks"},
			},
			Rules: []model.ConditionalRule{
				{When: `registrationType == companiesAct && memberCount >= 500`, ThenField: "auditReport", Effect: model.EffectRequire},
				{When: `memberCount >=`, ThenField: "remarks", Effect: model.EffectShow},
			},
		}},
	}
	r := resolver.New(def)

	schema, _ := r.ActiveSchema(0, map[string]any{"registrationType": "companiesAct", "memberCount": 640})
	if diff := cmp.Diff([]string{"registrationType", "memberCount", "auditReport"}, schema.Required()); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
	schema, _ = r.ActiveSchema(0, map[string]any{"registrationType": "companiesAct", "memberCount": "120"})
	if field, _ := schema.Field("auditReport"); field.Required {
		t.Fatalf("auditReport required below the threshold: %+v", field)
	}
	if field, _ := schema.Field("remarks"); !field.Hidden {
		t.Fatalf("a rule that does not compile must never show its field: %+v", field)
	}
}

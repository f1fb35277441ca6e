package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/session"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/memory"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

// scriptedDriver answers prompts by field label. Unscripted prompts accept
// their default, like pressing enter in a terminal.
type scriptedDriver struct {
	inputs   map[string][]string
	selects  map[string][]string
	confirms []bool
	infos    []string
}

func promptKey(message string) string {
	if i := strings.Index(message, " ["); i >= 0 {
		message = message[:i]
	}
	message = strings.TrimSuffix(message, " (file)")
	return strings.TrimSuffix(message, " *")
}

func (d *scriptedDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	key := promptKey(cfg.Message)
	queue := d.inputs[key]
	if len(queue) == 0 {
		return cfg.Default, nil
	}
	d.inputs[key] = queue[1:]
	return queue[0], nil
}

func (d *scriptedDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	if len(d.confirms) == 0 {
		return cfg.Default, nil
	}
	val := d.confirms[0]
	d.confirms = d.confirms[1:]
	return val, nil
}

func (d *scriptedDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	key := promptKey(cfg.Message)
	queue := d.selects[key]
	if len(queue) == 0 {
		if key == "Continue?" {
			return -1, errors.New("navigation not scripted")
		}
		if cfg.DefaultIndex >= 0 {
			return cfg.DefaultIndex, nil
		}
		return 0, nil
	}
	d.selects[key] = queue[1:]
	idx := indexOf(cfg.Options, queue[0])
	if idx < 0 {
		return -1, fmt.Errorf("%q is not offered for %q: %v", queue[0], key, cfg.Options)
	}
	return idx, nil
}

func (d *scriptedDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func (d *scriptedDriver) sawInfo(substr string) bool {
	for _, info := range d.infos {
		if strings.Contains(info, substr) {
			return true
		}
	}
	return false
}

var places = refdata.Static{
	"states": {"": {{Value: "TS", Label: "Telangana"}, {Value: "AP", Label: "Andhra Pradesh"}}},
	"districts": {
		"TS": {{Value: "WGL", Label: "Warangal"}},
		"AP": {{Value: "GNT", Label: "Guntur"}},
	},
}

var files = map[string][]byte{
	"/docs/pan.pdf": testsupport.PDF("pan.pdf").Data,
	"/docs/me.png":  testsupport.PNG("me.png").Data,
}

func readFake(path string) ([]byte, error) {
	if data, ok := files[path]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("open %s: no such file", path)
}

func newSession(t *testing.T, backend store.Store) *session.Session {
	t.Helper()
	s := session.New(testsupport.KYCDefinition(),
		session.WithClock(testsupport.Clock()),
		session.WithStore(backend),
		session.WithRefData(places),
	)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func panScript() *scriptedDriver {
	return &scriptedDriver{
		inputs: map[string][]string{
			"Full name":                    {"Ravi Kumar"},
			"Date of birth":                {testsupport.DOB(35, 0)},
			"PAN":                          {"ABCDE1234F"},
			"PAN copy":                     {"/docs/pan.pdf"},
			"Mobile number":                {"9876543210"},
			"Water source":                 {"canal"},
			"Current land holding (acres)": {"2.5"},
			"Bank name":                    {"SBI"},
			"IFSC":                         {"SBIN0001234"},
			"Photo":                        {"/docs/missing.png", "/docs/pan.pdf", "/docs/me.png"},
		},
		selects: map[string][]string{
			"Document type": {"panNumber"},
			"State":         {"Telangana"},
			"District":      {"Warangal"},
			"Continue?":     {ChoiceNext, ChoiceNext, ChoiceNext, ChoiceSubmit},
		},
		confirms: []bool{true},
	}
}

func TestRunnerSubmitsWizard(t *testing.T) {
	t.Parallel()

	backend := memory.New(memory.WithIDs(func() string { return "f-1" }))
	s := newSession(t, backend)
	driver := panScript()

	if err := NewRunner(WithPromptDriver(driver), WithFileReader(readFake)).Run(testsupport.Context(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entity, err := backend.GetByID(testsupport.Context(), "f-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	for key, want := range map[string]any{
		"fullName":       "Ravi Kumar",
		"documentType":   "panNumber",
		"documentNumber": "ABCDE1234F",
		"documentFile":   "pan.pdf",
		"state":          "TS",
		"district":       "WGL",
		"photo":          "me.png",
	} {
		if entity[key] != want {
			t.Errorf("%s = %v, want %v", key, entity[key], want)
		}
	}
	if !driver.sawInfo("Review: Farmer KYC") || !driver.sawInfo("Full name: Ravi Kumar") {
		t.Fatalf("review not shown: %v", driver.infos)
	}
	if !driver.sawInfo("no such file") || !driver.sawInfo("Photo:") {
		t.Fatalf("file errors not shown: %v", driver.infos)
	}
	if !driver.sawInfo("Saved Farmer KYC (id f-1)") {
		t.Fatalf("success not shown: %v", driver.infos)
	}
}

func TestRunnerRetriesFailedSubmission(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	backend.FailNext(&store.Error{Status: 503, Message: "Registry is down"})
	s := newSession(t, backend)
	driver := panScript()
	driver.selects["Continue?"] = append(driver.selects["Continue?"], ChoiceSubmit)
	driver.confirms = []bool{true, true, true}

	if err := NewRunner(WithPromptDriver(driver), WithFileReader(readFake)).Run(testsupport.Context(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !driver.sawInfo("Registry is down") {
		t.Fatalf("failure not shown: %v", driver.infos)
	}
	if got := len(backend.Calls()); got != 2 {
		t.Fatalf("expected 2 store calls, got %d", got)
	}
}

func TestRunnerStopsWhenRetryDeclined(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	backend.FailNext(&store.Error{Status: 500})
	s := newSession(t, backend)
	driver := panScript()
	driver.confirms = []bool{true, false}

	err := NewRunner(WithPromptDriver(driver), WithFileReader(readFake)).Run(testsupport.Context(), s)
	var subErr *session.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.UserMessage() != session.GenericSubmissionMessage {
		t.Fatalf("message = %q", subErr.UserMessage())
	}
}

func TestRunnerShowsValidationErrorsAndCancels(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	driver := &scriptedDriver{
		inputs: map[string][]string{},
		selects: map[string][]string{
			"Continue?": {ChoiceNext, ChoiceCancel},
		},
	}

	err := NewRunner(WithPromptDriver(driver)).Run(testsupport.Context(), s)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !driver.sawInfo("Full name: Full name is required") {
		t.Fatalf("validation errors not shown: %v", driver.infos)
	}
	if s.State().CurrentStep != 0 {
		t.Fatalf("step = %d", s.State().CurrentStep)
	}
}

func TestRunnerGoesBack(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	driver := panScript()
	driver.selects["Continue?"] = []string{ChoiceNext, ChoiceBack, ChoiceCancel}

	err := NewRunner(WithPromptDriver(driver), WithFileReader(readFake)).Run(testsupport.Context(), s)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	state := s.State()
	if state.CurrentStep != 0 || state.MaxReachedStep != 1 {
		t.Fatalf("state = %+v", state)
	}
}

func TestProgressAndReview(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	if err := s.Set("fullName", "Asha & Co"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	view := s.View()

	progress := Progress(view)
	for _, part := range []string{"Farmer KYC", "● Identity", "○ Contact", "○ Bank"} {
		if !strings.Contains(progress, part) {
			t.Errorf("progress %q missing %q", progress, part)
		}
	}

	review, err := Review(view)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !strings.Contains(review, "Full name: Asha & Co") {
		t.Fatalf("review must not escape values:\n%s", review)
	}
	if strings.Contains(review, "Contact") {
		t.Fatalf("unreached steps must be left out:\n%s", review)
	}
}

package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/assembler"
	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/session"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/memory"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

var places = refdata.Static{
	"states": {"": {{Value: "TS", Label: "Telangana"}, {Value: "AP", Label: "Andhra Pradesh"}}},
	"districts": {
		"TS": {{Value: "WGL", Label: "Warangal"}, {Value: "HYD", Label: "Hyderabad"}},
		"AP": {{Value: "GNT", Label: "Guntur"}},
	},
}

func newSession(t *testing.T, backend store.Store, options ...session.Option) *session.Session {
	t.Helper()
	base := []session.Option{
		session.WithClock(testsupport.Clock()),
		session.WithRefData(places),
		session.WithStrict(true),
	}
	if backend != nil {
		base = append(base, session.WithStore(backend))
	}
	s := session.New(testsupport.KYCDefinition(), append(base, options...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustSet(t *testing.T, s *session.Session, values map[string]any) {
	t.Helper()
	for field, value := range values {
		if err := s.Set(field, value); err != nil {
			t.Fatalf("Set(%s): %v", field, err)
		}
	}
}

func mustAdvance(t *testing.T, s *session.Session) {
	t.Helper()
	res, err := s.Advance(testsupport.Context())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !res.Valid {
		t.Fatalf("Advance blocked: %v", res.Errors)
	}
}

// fillPAN walks the four steps choosing PAN as identity document. It stops
// on the final step without submitting.
func fillPAN(t *testing.T, s *session.Session) {
	t.Helper()
	mustSet(t, s, map[string]any{
		"fullName":     "Ravi Kumar",
		"dateOfBirth":  testsupport.DOB(35, 0),
		"documentType": "panNumber",
		"panNumber":    "ABCDE1234F",
	})
	if _, err := s.Attach("panFile", testsupport.PDF("pan.pdf")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	mustAdvance(t, s)

	mustSet(t, s, map[string]any{"mobileNumber": "9876543210", "state": "TS"})
	mustSet(t, s, map[string]any{"district": "WGL", "pincode": "506001"})
	mustAdvance(t, s)

	mustSet(t, s, map[string]any{"currentLandHolding": 2.5, "waterSource": "canal"})
	mustAdvance(t, s)

	mustSet(t, s, map[string]any{"bankName": "SBI", "ifscCode": "SBIN0001234"})
}

func TestAdvanceIsGatedByValidation(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	res, err := s.Advance(testsupport.Context())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Valid {
		t.Fatalf("empty identity step must not validate")
	}
	if diff := cmp.Diff(map[string]string{
		"fullName":     "Full name is required",
		"documentType": "Document type is required",
	}, res.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if state := s.State(); state.CurrentStep != 0 || state.MaxReachedStep != 0 {
		t.Fatalf("step moved on failed validation: %+v", state)
	}
	if got := s.View().Current().Fields[0].Error; got != "Full name is required" {
		t.Fatalf("view error = %q", got)
	}
}

func TestJumpToIsBoundedByMaxReached(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	mustSet(t, s, map[string]any{"fullName": "Ravi", "documentType": "ppbNumber", "ppbNumber": "P-1"})
	if _, err := s.Attach("ppbFile", testsupport.PNG("ppb.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	mustAdvance(t, s)

	if err := s.JumpTo(2); !errors.Is(err, session.ErrStepUnreachable) {
		t.Fatalf("expected ErrStepUnreachable, got %v", err)
	}
	if s.State().CurrentStep != 1 {
		t.Fatalf("failed jump must not move")
	}
	if err := s.JumpTo(0); err != nil {
		t.Fatalf("JumpTo(0): %v", err)
	}
	if err := s.JumpTo(1); err != nil {
		t.Fatalf("JumpTo(1): %v", err)
	}
	if err := s.Retreat(); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if err := s.Retreat(); err != nil {
		t.Fatalf("Retreat at 0: %v", err)
	}
	state := s.State()
	if state.CurrentStep != 0 || state.MaxReachedStep != 1 {
		t.Fatalf("state = %+v", state)
	}
}

func TestPANScenarioSubmitsCanonicalPayload(t *testing.T) {
	t.Parallel()

	backend := memory.New(memory.WithIDs(func() string { return "f-42" }))
	s := newSession(t, backend)
	fillPAN(t, s)

	if !s.View().IsLastStep {
		t.Fatalf("expected to be on the final step")
	}
	mustAdvance(t, s)

	state := s.State()
	if state.Phase != model.PhaseSubmitted || state.EntityID != "f-42" {
		t.Fatalf("state = %+v", state)
	}
	calls := backend.Calls()
	if len(calls) != 1 || calls[0].Op != "create" {
		t.Fatalf("calls = %+v", calls)
	}
	dto := calls[0].DTO
	if dto["documentType"] != "panNumber" || dto["documentNumber"] != "ABCDE1234F" {
		t.Fatalf("document keys = %v / %v", dto["documentType"], dto["documentNumber"])
	}
	for _, key := range []string{"aadharNumber", "aadharFile", "voterId", "voterFile", "ppbNumber", "ppbFile", "panNumber", "panFile"} {
		if _, ok := dto[key]; ok {
			t.Fatalf("dto leaked %s", key)
		}
	}
	if diff := cmp.Diff([]string{"documentFile"}, calls[0].Files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Advance(testsupport.Context()); !errors.Is(err, session.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmissionFailureIsRetrySafe(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	s := newSession(t, backend)
	fillPAN(t, s)
	before := s.Values()

	backend.FailNext(&store.Error{Status: 503, Message: "Registry is under maintenance"})
	_, err := s.Submit(testsupport.Context())
	var subErr *session.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.UserMessage() != "Registry is under maintenance" {
		t.Fatalf("message = %q", subErr.UserMessage())
	}
	state := s.State()
	if state.Phase != model.PhaseFailed || state.CurrentStep != 3 {
		t.Fatalf("state after failure = %+v", state)
	}
	if diff := cmp.Diff(before, s.Values()); diff != "" {
		t.Fatalf("values lost (-before +after):\n%s", diff)
	}
	if s.View().Error != "Registry is under maintenance" {
		t.Fatalf("view error = %q", s.View().Error)
	}

	if _, err := s.Submit(testsupport.Context()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.State().Phase != model.PhaseSubmitted {
		t.Fatalf("retry did not submit")
	}
	calls := backend.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if diff := cmp.Diff(calls[0].DTO, calls[1].DTO); diff != "" {
		t.Fatalf("retry payload differs (-first +retry):\n%s", diff)
	}
}

func TestBackendFieldErrorsMapToAliases(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	s := newSession(t, backend)
	fillPAN(t, s)

	backend.FailNext(&store.Error{
		Status:  422,
		Message: "",
		Fields: map[string][]string{
			"/data/documentNumber": {"already registered"},
			"ifscCode":             {"unknown branch"},
			"_form":                {"duplicate farmer"},
		},
	})
	_, err := s.Submit(testsupport.Context())
	var subErr *session.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.UserMessage() != session.GenericSubmissionMessage {
		t.Fatalf("empty backend message must fall back, got %q", subErr.UserMessage())
	}
	errs := s.Errors()
	if errs["panNumber"] != "already registered" || errs["ifscCode"] != "unknown branch" {
		t.Fatalf("field errors = %v", errs)
	}
	if diff := cmp.Diff([]string{"duplicate farmer"}, s.FormErrors()); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

type rejectAll struct{}

func (rejectAll) Validate(operation string, dto map[string]any) error {
	return &rejection{operation: operation}
}

type rejection struct{ operation string }

func (r *rejection) Error() string { return "rejected " + r.operation }

func (r *rejection) StoreError() *store.Error {
	return &store.Error{Status: 422, Message: "contract violation", Fields: map[string][]string{"bankName": {"too short"}}}
}

func TestPayloadValidatorBlocksStore(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	def := testsupport.KYCDefinition()
	def.Operations = model.Operations{Create: "createFarmer", Update: "updateFarmer"}
	s := session.New(def,
		session.WithClock(testsupport.Clock()),
		session.WithStore(backend),
		session.WithPayloadValidator(rejectAll{}),
	)
	defer s.Close()
	fillPAN(t, s)

	_, err := s.Submit(testsupport.Context())
	var subErr *session.SubmissionError
	if !errors.As(err, &subErr) || subErr.Status != 422 {
		t.Fatalf("expected 422 SubmissionError, got %v", err)
	}
	if len(backend.Calls()) != 0 {
		t.Fatalf("store must not be called after a contract violation")
	}
	if s.Errors()["bankName"] != "too short" {
		t.Fatalf("bankName error = %q", s.Errors()["bankName"])
	}
}

func TestSubmitOnlyFromFinalStep(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	if _, err := s.Submit(testsupport.Context()); !errors.Is(err, session.ErrNotFinalStep) {
		t.Fatalf("expected ErrNotFinalStep, got %v", err)
	}
}

func TestEditSessionKeepsPersistedFiles(t *testing.T) {
	t.Parallel()

	backend := memory.New(memory.WithEntities(map[string]store.Entity{
		"f-7": {
			"id":             "f-7",
			"fullName":       "Lakshmi",
			"dateOfBirth":    "1980-01-01",
			"documentType":   "aadharNumber",
			"documentNumber": "123412341234",
			"documentFile":   "aadhar-7.png",
			"mobileNumber":   "9000000000",
			"state":          "AP",
			"district":       "GNT",
			"waterSource":    "canal",
			"bankName":       "Canara",
			"photoFileName":  "lakshmi.jpg",
		},
	}))
	s, err := session.Open(testsupport.Context(), testsupport.KYCDefinition(), "f-7",
		session.WithClock(testsupport.Clock()),
		session.WithStore(backend),
		session.WithRefData(places),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	state := s.State()
	if state.Mode != model.ModeEdit || state.EntityID != "f-7" || state.MaxReachedStep != 0 {
		t.Fatalf("state = %+v", state)
	}
	if slot, _ := s.Slot("aadharFile"); slot.PersistedName != "aadhar-7.png" {
		t.Fatalf("aadharFile slot = %+v", slot)
	}

	mustAdvance(t, s)
	mustAdvance(t, s)
	mustAdvance(t, s)
	mustSet(t, s, map[string]any{"bankName": "Canara Bank"})
	mustAdvance(t, s)

	calls := backend.Calls()
	if len(calls) != 1 || calls[0].Op != "update" || calls[0].ID != "f-7" {
		t.Fatalf("calls = %+v", calls)
	}
	if len(calls[0].Files) != 0 {
		t.Fatalf("persisted files must not be re-sent: %v", calls[0].Files)
	}
	entity, _ := backend.GetByID(testsupport.Context(), "f-7")
	if entity["photoFileName"] != "lakshmi.jpg" || entity["documentFile"] != "aadhar-7.png" {
		t.Fatalf("persisted files lost: %v", entity)
	}
	if entity["bankName"] != "Canara Bank" {
		t.Fatalf("bankName = %v", entity["bankName"])
	}
}

func TestOpenReportsHydrationErrors(t *testing.T) {
	t.Parallel()

	_, err := session.Open(testsupport.Context(), testsupport.KYCDefinition(), "missing", session.WithStore(memory.New()))
	var hydErr *session.HydrationError
	if !errors.As(err, &hydErr) || hydErr.EntityID != "missing" {
		t.Fatalf("expected HydrationError, got %v", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("HydrationError must wrap the store error")
	}
}

func TestCascadingSelects(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	ctx := testsupport.Context()

	districts, err := s.Options(ctx, "district")
	if err != nil || len(districts) != 0 {
		t.Fatalf("district options without state = %v, %v", districts, err)
	}

	mustSet(t, s, map[string]any{"state": "TS"})
	districts, _ = s.Options(ctx, "district")
	if len(districts) != 2 {
		t.Fatalf("TS districts = %v", districts)
	}
	mustSet(t, s, map[string]any{"district": "WGL"})
	mustSet(t, s, map[string]any{"state": "TS"})
	if s.Value("district") != "WGL" {
		t.Fatalf("re-selecting the same state must keep the district")
	}

	mustSet(t, s, map[string]any{"state": "AP"})
	if s.Value("district") != nil {
		t.Fatalf("district must be cleared when state changes, got %v", s.Value("district"))
	}
	if _, err := s.Options(ctx, "bankName"); !errors.Is(err, session.ErrNoOptions) {
		t.Fatalf("expected ErrNoOptions, got %v", err)
	}
}

func TestStrictOptionsRejectUnknownValues(t *testing.T) {
	t.Parallel()

	def := testsupport.KYCDefinition()
	for i, field := range def.Steps[1].Fields {
		if field.Options != nil {
			def.Steps[1].Fields[i].Options.Strict = true
		}
	}
	s := session.New(def, session.WithClock(testsupport.Clock()), session.WithRefData(places))
	defer s.Close()

	mustSet(t, s, map[string]any{"fullName": "Ravi", "documentType": "ppbNumber", "ppbNumber": "P-1"})
	if _, err := s.Attach("ppbFile", testsupport.PNG("p.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	mustAdvance(t, s)

	mustSet(t, s, map[string]any{"state": "TS"})
	mustSet(t, s, map[string]any{"district": "GNT"})
	res, err := s.Advance(testsupport.Context())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Valid || res.Errors["district"] != "District is not a valid choice" {
		t.Fatalf("result = %+v", res)
	}
	mustSet(t, s, map[string]any{"district": "HYD"})
	mustAdvance(t, s)
}

func TestAttachRejectionLeavesSlot(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	first, err := s.Attach("photo", testsupport.PNG("a.png"))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	_, err = s.Attach("photo", testsupport.PDF("b.pdf"))
	var attErr *attachments.Error
	if !errors.As(err, &attErr) || attErr.Code != attachments.CodeUnsupportedType {
		t.Fatalf("expected UNSUPPORTED_TYPE, got %v", err)
	}
	slot, _ := s.Slot("photo")
	if slot.File == nil || slot.File.Name != "a.png" || slot.PreviewHandle != first.PreviewHandle {
		t.Fatalf("slot changed after rejection: %+v", slot)
	}
	if s.Value("photo") != "a.png" {
		t.Fatalf("photo value = %v", s.Value("photo"))
	}
	if err := s.Set("photo", "x.png"); !errors.Is(err, session.ErrAttachmentField) {
		t.Fatalf("expected ErrAttachmentField, got %v", err)
	}

	if err := s.ClearAttachment("photo"); err != nil {
		t.Fatalf("ClearAttachment: %v", err)
	}
	if s.Value("photo") != nil {
		t.Fatalf("cleared photo value = %v", s.Value("photo"))
	}
	if _, ok := s.Preview(first.PreviewHandle); ok {
		t.Fatalf("cleared preview must be revoked")
	}
}

func TestCloseReleasesPreviews(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	slot, err := s.Attach("passbook", testsupport.PDF("passbook.pdf"))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, ok := s.Preview(slot.PreviewHandle); !ok {
		t.Fatalf("preview should resolve before close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := s.Preview(slot.PreviewHandle); ok {
		t.Fatalf("preview must be revoked after close")
	}
	if err := s.Set("bankName", "SBI"); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	s := newSession(t, memory.New())
	mustSet(t, s, map[string]any{"fullName": "Ravi", "documentType": "ppbNumber", "ppbNumber": "P-1"})
	if _, err := s.Attach("ppbFile", testsupport.PNG("p.png")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	mustAdvance(t, s)
	mustSet(t, s, map[string]any{"mobileNumber": "9876543210"})

	data, err := s.Snapshot().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	snap, err := session.UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	restored, err := session.Restore(testsupport.KYCDefinition(), snap, session.WithClock(testsupport.Clock()))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer restored.Close()

	if restored.ID() != s.ID() {
		t.Fatalf("id not preserved")
	}
	if diff := cmp.Diff(s.State(), restored.State()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	if restored.Value("mobileNumber") != "9876543210" {
		t.Fatalf("mobileNumber = %v", restored.Value("mobileNumber"))
	}
	if restored.Value("ppbFile") != nil {
		t.Fatalf("pending upload must not survive a restore")
	}
	if err := restored.JumpTo(0); err != nil {
		t.Fatalf("JumpTo: %v", err)
	}
	res, _ := restored.Advance(testsupport.Context())
	if res.Valid {
		t.Fatalf("identity step must require the upload again")
	}

	other := testsupport.KYCDefinition()
	other.ID = "employee"
	if _, err := session.Restore(other, snap); !errors.Is(err, session.ErrWizardMismatch) {
		t.Fatalf("expected ErrWizardMismatch, got %v", err)
	}
}

func TestIncompleteSubmissionIsReported(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	s := newSession(t, backend, session.WithAssembler(assembler.New()))
	fillPAN(t, s)
	snap := s.Snapshot()
	snap.Values["fullName"] = ""
	// the restored session skips re-validating step 0, so only the
	// assembler's required-field check can catch the empty name
	restored, err := session.Restore(testsupport.KYCDefinition(), snap,
		session.WithClock(testsupport.Clock()),
		session.WithStore(backend),
	)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer restored.Close()
	if _, err := restored.Attach("panFile", testsupport.PDF("pan.pdf")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	_, err = restored.Submit(testsupport.Context())
	if !errors.Is(err, assembler.ErrIncompleteSubmission) {
		t.Fatalf("expected incomplete submission, got %v", err)
	}
	if restored.State().Phase != model.PhaseFailed {
		t.Fatalf("phase = %s", restored.State().Phase)
	}
	if restored.View().Error != assembler.IncompleteSubmissionMessage {
		t.Fatalf("view error = %q", restored.View().Error)
	}
	if len(backend.Calls()) != 0 {
		t.Fatalf("store must not be called")
	}
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()

	run := func() (model.SessionState, map[string]string) {
		s := newSession(t, memory.New(memory.WithIDs(func() string { return "same" })))
		mustSet(t, s, map[string]any{"fullName": "Ravi", "documentType": "panNumber", "panNumber": "bad", "dateOfBirth": testsupport.DOB(17, 0)})
		_, _ = s.Advance(testsupport.Context())
		return s.State(), s.Errors()
	}
	state1, errs1 := run()
	state2, errs2 := run()
	if diff := cmp.Diff(state1, state2); diff != "" {
		t.Fatalf("state differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(errs1, errs2); diff != "" {
		t.Fatalf("errors differ (-first +second):\n%s", diff)
	}
	if _, ok := errs1["dateOfBirth"]; !ok {
		t.Fatalf("17 year old must be rejected: %v", errs1)
	}
}

type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Create(ctx context.Context, dto map[string]any, files store.Files) (string, error) {
	close(b.entered)
	<-b.release
	return b.Store.Create(ctx, dto, files)
}

func TestConcurrentCallsAreRejected(t *testing.T) {
	t.Parallel()

	backend := &blockingStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newSession(t, backend)
	fillPAN(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Advance(testsupport.Context())
		done <- err
	}()
	<-backend.entered

	if _, err := s.Submit(testsupport.Context()); !errors.Is(err, session.ErrSubmitInProgress) {
		t.Errorf("second Submit: expected ErrSubmitInProgress, got %v", err)
	}
	if _, err := s.Advance(testsupport.Context()); !errors.Is(err, session.ErrNavigationInProgress) {
		t.Errorf("Advance: expected ErrNavigationInProgress, got %v", err)
	}
	if err := s.Set("bankName", "HDFC"); !errors.Is(err, session.ErrSubmitInProgress) {
		t.Errorf("Set: expected ErrSubmitInProgress, got %v", err)
	}
	view := s.View()
	if !view.IsSubmitting || view.CanGoNext || view.CanGoBack {
		t.Errorf("view while submitting = %+v", view)
	}

	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.State().Phase != model.PhaseSubmitted {
		t.Fatalf("phase = %s", s.State().Phase)
	}
	if len(backend.Calls()) != 1 {
		t.Fatalf("exactly one create expected, got %d", len(backend.Calls()))
	}
}

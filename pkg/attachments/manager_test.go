package attachments

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-formwizard/pkg/model"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHeader = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
)

func testDefinition() *model.Definition {
	return &model.Definition{
		ID: "attachments",
		Steps: []model.StepDefinition{
			{
				Index: 0,
				Fields: []model.FieldDefinition{
					{Name: "photo", Attachment: &model.AttachmentPolicy{MaxBytes: 64, Accept: []string{"image/*"}}},
					{Name: "passbook", Attachment: &model.AttachmentPolicy{}},
					{Name: "name"},
				},
			},
		},
	}
}

func newTestManager() *Manager {
	clock := func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return NewManager(testDefinition(), WithClock(clock), WithEntropy(bytes.NewReader(bytes.Repeat([]byte{7}, 4096))))
}

func TestAttachStoresFileAndIssuesHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	slot, err := m.Attach("photo", File{Name: "me.png", Data: pngHeader})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if slot.PreviewHandle == "" {
		t.Fatalf("expected a preview handle")
	}
	if slot.File.ContentType != "image/png" {
		t.Fatalf("content type = %q", slot.File.ContentType)
	}
	file, ok := m.Resolve(slot.PreviewHandle)
	if !ok || file.Name != "me.png" {
		t.Fatalf("Resolve = %v, %v", file, ok)
	}
}

func TestAttachRejectsTooLarge(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	first, err := m.Attach("photo", File{Name: "ok.png", Data: pngHeader})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	big := append(append([]byte(nil), pngHeader...), make([]byte, 128)...)
	_, err = m.Attach("photo", File{Name: "big.png", Data: big})
	if !IsCode(err, CodeTooLarge) {
		t.Fatalf("expected TOO_LARGE, got %v", err)
	}

	slot, _ := m.Slot("photo")
	if slot.File == nil || slot.File.Name != "ok.png" || slot.PreviewHandle != first.PreviewHandle {
		t.Fatalf("rejected file must leave the prior attachment in place: %+v", slot)
	}
}

func TestAttachRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	_, err := m.Attach("photo", File{Name: "scan.pdf", Data: pdfHeader})
	var attErr *Error
	if !errors.As(err, &attErr) || attErr.Code != CodeUnsupportedType {
		t.Fatalf("expected UNSUPPORTED_TYPE, got %v", err)
	}
	if attErr.Message() == "" {
		t.Fatalf("expected a user-facing message")
	}

	if _, err := m.Attach("passbook", File{Name: "scan.pdf", Data: pdfHeader}); err != nil {
		t.Fatalf("passbook should accept PDF: %v", err)
	}
}

func TestReplacingRevokesPreviousHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	first, _ := m.Attach("photo", File{Name: "a.png", Data: pngHeader})
	second, _ := m.Attach("photo", File{Name: "b.png", Data: pngHeader})

	if first.PreviewHandle == second.PreviewHandle {
		t.Fatalf("handles must differ")
	}
	if _, ok := m.Resolve(first.PreviewHandle); ok {
		t.Fatalf("replaced handle must be revoked")
	}
	if m.LiveHandles() != 1 {
		t.Fatalf("LiveHandles = %d", m.LiveHandles())
	}
}

func TestClearKeepsPersistedName(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	if err := m.Seed("photo", "old.jpg", "/uploads/old.jpg"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := m.Attach("photo", File{Name: "new.png", Data: pngHeader}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := m.Clear("photo"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	slot, _ := m.Slot("photo")
	if slot.Pending() || slot.PersistedName != "old.jpg" || !slot.Present() {
		t.Fatalf("unexpected slot after clear: %+v", slot)
	}
}

func TestReleaseFreesHandles(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	slot, _ := m.Attach("photo", File{Name: "a.png", Data: pngHeader})
	_, _ = m.Attach("passbook", File{Name: "p.pdf", Data: pdfHeader})

	m.Release()
	m.Release()

	if m.LiveHandles() != 0 {
		t.Fatalf("LiveHandles = %d after release", m.LiveHandles())
	}
	if _, ok := m.Resolve(slot.PreviewHandle); ok {
		t.Fatalf("handle must not resolve after release")
	}
	if _, err := m.Attach("photo", File{Name: "a.png", Data: pngHeader}); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestUnknownField(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	if _, err := m.Attach("name", File{Name: "a.png", Data: pngHeader}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestAccepts(t *testing.T) {
	t.Parallel()

	if !Accepts([]string{"image/*"}, "image/jpeg") {
		t.Fatalf("image/* should accept image/jpeg")
	}
	if Accepts([]string{"image/*"}, "application/pdf") {
		t.Fatalf("image/* should reject pdf")
	}
	if !Accepts(nil, "anything/else") {
		t.Fatalf("empty list accepts everything")
	}
	if got := DetectContentType(File{Name: "x.pdf"}); got != "application/pdf" {
		t.Fatalf("extension fallback = %q", got)
	}
}

func TestDetectContentTypeSniffsPayload(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.7\n1 0 obj")
	cases := []struct {
		name string
		file File
		want string
	}{
		{"mislabelled pdf", File{Name: "me.png", ContentType: "image/png", Data: pdf}, "application/pdf"},
		{"declared subtype kept", File{Name: "me.jpg", ContentType: "image/jpg", Data: []byte("\xff\xd8\xff\xe0")}, "image/jpg"},
		{"inconclusive sniff keeps declared", File{Name: "a.bin", ContentType: "application/pdf", Data: []byte{0x00, 0x01, 0x02}}, "application/pdf"},
		{"nothing declared", File{Name: "scan", Data: pdf}, "application/pdf"},
	}
	for _, tc := range cases {
		if got := DetectContentType(tc.file); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAttachRejectsMislabelledFile(t *testing.T) {
	t.Parallel()

	def := &model.Definition{ID: "w", Steps: []model.StepDefinition{{ID: "s", Fields: []model.FieldDefinition{
		{Name: "photo", Attachment: &model.AttachmentPolicy{Accept: []string{"image/*"}}},
	}}}}
	m := NewManager(def)
	defer m.Release()

	_, err := m.Attach("photo", File{Name: "me.png", ContentType: "image/png", Data: pdfHeader})
	var attErr *Error
	if !errors.As(err, &attErr) || attErr.Code != CodeUnsupportedType {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	if slot, ok := m.Slot("photo"); ok && slot.Present() {
		t.Fatalf("rejected file must not fill the slot")
	}
}

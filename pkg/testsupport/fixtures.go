package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/attachments"
)

// Today is the fixed "now" used across engine tests.
var Today = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

// Clock returns a time source frozen at Today.
func Clock() func() time.Time {
	return func() time.Time { return Today }
}

// DOB returns the ISO date of birth for someone aged years (plus days) at Today.
func DOB(years, days int) string {
	return Today.AddDate(-years, 0, -days).Format("2006-01-02")
}

// PNG returns a small file whose bytes sniff as image/png.
func PNG(name string) attachments.File {
	return attachments.File{Name: name, Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR" + name)}
}

// PDF returns a small file whose bytes sniff as application/pdf.
func PDF(name string) attachments.File {
	return attachments.File{Name: name, Data: []byte("%PDF-1.7\n" + name)}
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// WriteGolden writes arbitrary data to a golden file when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// Package store defines the narrow contract the wizard engine uses to read
// and write backend entities.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/attachments"
)

// ErrNotFound is matched by errors for entities that do not exist.
var ErrNotFound = errors.New("store: entity not found")

// Entity is the raw backend representation of a record.
type Entity map[string]any

// ID returns the entity identifier, or "".
func (e Entity) ID() string {
	if e == nil {
		return ""
	}
	switch id := e["id"].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// Files are the binary parts of a submission keyed by canonical field name.
type Files map[string]attachments.File

// Store persists entities of a single resource.
type Store interface {
	Create(ctx context.Context, dto map[string]any, files Files) (string, error)
	Update(ctx context.Context, id string, dto map[string]any, files Files) (string, error)
	GetByID(ctx context.Context, id string) (Entity, error)
}

// Error is a failed store call. Fields carries per-field messages keyed by
// canonical backend field when the backend reports them.
type Error struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Err     error               `json:"-"`
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.Status > 0 {
		return fmt.Sprintf("store: %d %s", e.Status, msg)
	}
	return "store: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes a 404 Error match ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// FieldNames lists the fields with messages, sorted.
func (e *Error) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NotFound builds the error returned for a missing id.
func NotFound(id string) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf("entity %q not found", id)}
}

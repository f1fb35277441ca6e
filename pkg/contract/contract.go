// Package contract checks assembled payloads against the request schemas of
// the backend's OpenAPI document before they are sent.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/store"
)

var (
	// ErrUnknownOperation is returned for operation ids the document lacks.
	ErrUnknownOperation = errors.New("contract: unknown operation")
	// ErrNoOperations is returned for documents without request bodies.
	ErrNoOperations = errors.New("contract: document declares no request bodies")
)

// Option configures Load.
type Option func(*Contract)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Contract) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDocumentValidation runs the kin-openapi document validator after
// loading.
func WithDocumentValidation(enabled bool) Option {
	return func(c *Contract) {
		c.validateDocument = enabled
	}
}

// Contract holds the request schema of every operation with a JSON or
// multipart body.
type Contract struct {
	schemas          map[string]*openapi3.Schema
	validateDocument bool
	logger           *zap.Logger
}

// Load parses an OpenAPI 3 document given as JSON or YAML.
func Load(ctx context.Context, data []byte, options ...Option) (*Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Contract{
		schemas: make(map[string]*openapi3.Schema),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("contract: load document: %w", err)
	}
	if c.validateDocument {
		if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return nil, fmt.Errorf("contract: validate document: %w", err)
		}
	}

	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			if item == nil {
				continue
			}
			for method, op := range item.Operations() {
				c.collect(method, path, op)
			}
		}
	}
	if len(c.schemas) == 0 {
		return nil, ErrNoOperations
	}
	return c, nil
}

// LoadFS reads the document at name from fsys.
func LoadFS(ctx context.Context, fsys fs.FS, name string, options ...Option) (*Contract, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("contract: read %s: %w", name, err)
	}
	return Load(ctx, data, options...)
}

// Operations lists the operation ids with a request schema, sorted.
func (c *Contract) Operations() []string {
	out := make([]string, 0, len(c.schemas))
	for id := range c.schemas {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Has reports whether operation has a request schema.
func (c *Contract) Has(operation string) bool {
	_, ok := c.schemas[operation]
	return ok
}

// Validate checks dto against the request schema of operation. Violations
// are returned as *ViolationError.
func (c *Contract) Validate(operation string, dto map[string]any) error {
	schema, ok := c.schemas[operation]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	doc, err := normalize(dto)
	if err != nil {
		return fmt.Errorf("contract: normalise payload: %w", err)
	}

	err = schema.VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	violation := &ViolationError{Operation: operation, Fields: make(map[string][]string)}
	collectViolations(err, violation)
	if len(violation.Fields) == 0 {
		violation.Fields = nil
	}
	c.logger.Debug("payload violates contract",
		zap.String("operation", operation),
		zap.Int("fields", len(violation.Fields)),
		zap.Strings("form", violation.Form),
	)
	return violation
}

func (c *Contract) collect(method, path string, op *openapi3.Operation) {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return
	}
	id := op.OperationID
	if id == "" {
		id = strings.ToLower(method) + ":" + path
	}
	content := op.RequestBody.Value.Content
	if media := content.Get("application/json"); media != nil && media.Schema != nil && media.Schema.Value != nil {
		c.schemas[id] = media.Schema.Value
		return
	}
	if media := content.Get("multipart/form-data"); media != nil && media.Schema != nil && media.Schema.Value != nil {
		schema := media.Schema.Value
		if data, ok := schema.Properties["data"]; ok && data != nil && data.Value != nil {
			schema = data.Value
		}
		c.schemas[id] = schema
	}
}

// ViolationError lists payload fields that do not satisfy the schema.
// Fields is keyed by top-level canonical field name; Form holds messages
// that do not point at a field.
type ViolationError struct {
	Operation string
	Fields    map[string][]string
	Form      []string
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+len(e.Form))
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	parts = append(parts, e.Form...)
	return fmt.Sprintf("contract: %s payload invalid: %s", e.Operation, strings.Join(parts, ", "))
}

// StoreError renders the violation the way a backend reports it.
func (e *ViolationError) StoreError() *store.Error {
	msg := "payload does not match the " + e.Operation + " contract"
	if len(e.Form) > 0 {
		msg = e.Form[0]
	}
	return &store.Error{Status: http.StatusUnprocessableEntity, Message: msg, Fields: e.Fields}
}

func collectViolations(err error, out *ViolationError) {
	switch typed := err.(type) {
	case openapi3.MultiError:
		for _, item := range typed {
			collectViolations(item, out)
		}
	case *openapi3.SchemaError:
		pointer := typed.JSONPointer()
		reason := strings.TrimSpace(typed.Reason)
		if reason == "" {
			reason = typed.Error()
		}
		if len(pointer) == 0 {
			out.Form = appendUnique(out.Form, reason)
			return
		}
		out.Fields[pointer[0]] = appendUnique(out.Fields[pointer[0]], reason)
	default:
		out.Form = appendUnique(out.Form, err.Error())
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

// normalize converts dto into the shapes VisitJSON expects (float64
// numbers, []any lists).
func normalize(dto map[string]any) (any, error) {
	if dto == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

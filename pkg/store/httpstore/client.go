// Package httpstore talks to an entity store over HTTP. Client implements
// store.Store against a REST resource; NewHandler exposes any store.Store
// with the same wire format.
//
// Writes without files are sent as application/json. Writes with files are
// sent as multipart/form-data with the JSON document in the "data" part and
// one part per file, named by its canonical field.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/store"
)

// DataPart is the multipart field carrying the JSON document.
const DataPart = "data"

const maxErrorBody = 4 << 10

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithHeader adds a header to every request, such as an authorization token.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a store.Store backed by a REST resource at {base}/{resource}.
type Client struct {
	endpoint string
	http     *http.Client
	headers  http.Header
	logger   *zap.Logger
}

var _ store.Store = (*Client)(nil)

// New builds a client for resource under baseURL.
func New(baseURL, resource string, options ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("httpstore: parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("httpstore: base url %q is not absolute", baseURL)
	}
	c := &Client{
		endpoint: strings.TrimRight(base.String(), "/") + "/" + strings.Trim(resource, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		headers:  make(http.Header),
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Endpoint returns the collection URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Create posts a new entity and returns the id the backend assigned.
func (c *Client) Create(ctx context.Context, dto map[string]any, files store.Files) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.write(ctx, http.MethodPost, c.endpoint, dto, files, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &store.Error{Status: http.StatusBadGateway, Message: "create response carried no id"}
	}
	return created.ID, nil
}

// Update replaces the fields present in dto on entity id.
func (c *Client) Update(ctx context.Context, id string, dto map[string]any, files store.Files) (string, error) {
	var updated struct {
		ID string `json:"id"`
	}
	if err := c.write(ctx, http.MethodPut, c.entityURL(id), dto, files, &updated); err != nil {
		return "", err
	}
	if updated.ID == "" {
		return id, nil
	}
	return updated.ID, nil
}

// GetByID fetches entity id.
func (c *Client) GetByID(ctx context.Context, id string) (store.Entity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.entityURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("httpstore: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	var entity store.Entity
	if err := c.do(req, &entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (c *Client) entityURL(id string) string {
	return c.endpoint + "/" + url.PathEscape(id)
}

func (c *Client) write(ctx context.Context, method, target string, dto map[string]any, files store.Files, out any) error {
	body, contentType, err := Encode(dto, files)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("httpstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &store.Error{Message: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("store request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &store.Error{Status: resp.StatusCode, Message: "read response", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &store.Error{Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// Encode renders dto and files in the wire format. The returned string is
// the request Content-Type.
func Encode(dto map[string]any, files store.Files) (io.Reader, string, error) {
	if dto == nil {
		dto = map[string]any{}
	}
	doc, err := json.Marshal(dto)
	if err != nil {
		return nil, "", fmt.Errorf("httpstore: encode dto: %w", err)
	}
	if len(files) == 0 {
		return bytes.NewReader(doc), "application/json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, DataPart))
	header.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("httpstore: data part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", fmt.Errorf("httpstore: data part: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		file := files[name]
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("httpstore: file part %s: %w", name, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("httpstore: file part %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("httpstore: close multipart: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// errorBody is the JSON error shape shared by Client and NewHandler.
type errorBody struct {
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	out := &store.Error{Status: resp.StatusCode}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		out.Message = strings.TrimSpace(body.Message)
		if out.Message == "" {
			out.Message = strings.TrimSpace(body.Error)
		}
		out.Fields = body.Fields
		return out
	}
	out.Message = strings.TrimSpace(string(data))
	return out
}

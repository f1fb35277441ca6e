package httpstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/store"
)

// DefaultMaxUpload bounds the size of a multipart request.
const DefaultMaxUpload int64 = 32 << 20

// Validator inspects a decoded write before it reaches the store. A non-nil
// result is returned to the caller as the response.
type Validator func(op string, dto map[string]any) *store.Error

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithValidator installs a pre-write check.
func WithValidator(fn Validator) HandlerOption {
	return func(h *handler) {
		h.validate = fn
	}
}

// WithMaxUpload overrides DefaultMaxUpload.
func WithMaxUpload(limit int64) HandlerOption {
	return func(h *handler) {
		if limit > 0 {
			h.maxUpload = limit
		}
	}
}

// WithHandlerLogger attaches a logger to the handler.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Operation names passed to a Validator.
const (
	OpCreate = "create"
	OpUpdate = "update"
)

type handler struct {
	store     store.Store
	validate  Validator
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler serves s with routes POST /, GET /{id} and PUT /{id}. Mount it
// under the resource path.
func NewHandler(s store.Store, options ...HandlerOption) http.Handler {
	h := &handler{
		store:     s,
		maxUpload: DefaultMaxUpload,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(h)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	return r
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	dto, files, err := h.decode(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if h.validate != nil {
		if verr := h.validate(OpCreate, dto); verr != nil {
			h.fail(w, verr)
			return
		}
	}
	id, err := h.store.Create(r.Context(), dto, files)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dto, files, err := h.decode(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if h.validate != nil {
		if verr := h.validate(OpUpdate, dto); verr != nil {
			h.fail(w, verr)
			return
		}
	}
	id, err = h.store.Update(r.Context(), id, dto, files)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	entity, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *handler) decode(r *http.Request) (map[string]any, store.Files, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	if mediaType != "multipart/form-data" {
		dto := map[string]any{}
		body := io.LimitReader(r.Body, h.maxUpload)
		if err := json.NewDecoder(body).Decode(&dto); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, &store.Error{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err}
		}
		return dto, nil, nil
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, nil, &store.Error{Status: http.StatusBadRequest, Message: "invalid multipart body", Err: err}
	}
	dto := map[string]any{}
	if raw := strings.TrimSpace(r.FormValue(DataPart)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &dto); err != nil {
			return nil, nil, &store.Error{Status: http.StatusBadRequest, Message: "invalid data part", Err: err}
		}
	}
	files := make(store.Files)
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		header := headers[0]
		src, err := header.Open()
		if err != nil {
			return nil, nil, &store.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("open part %s", name), Err: err}
		}
		data, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			return nil, nil, &store.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("read part %s", name), Err: err}
		}
		files[name] = attachments.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	return dto, files, nil
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		h.logger.Error("store call failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
		return
	}
	status := storeErr.Status
	if status < 400 {
		status = http.StatusInternalServerError
	}
	h.logger.Debug("store call rejected", zap.Int("status", status), zap.String("message", storeErr.Message))
	writeJSON(w, status, errorBody{Message: storeErr.Message, Fields: storeErr.Fields})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

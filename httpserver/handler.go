package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/kms-env-resolver/descriptor"
	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/ruteri/kms-env-resolver/resolver"
)

const (
	// FormatQueryParam overrides the descriptor format derived from Content-Type.
	FormatQueryParam = "format"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler serves descriptor resolution requests.
type Handler struct {
	resolver *resolver.Resolver
	log      *slog.Logger
}

func NewHandler(r *resolver.Resolver, log *slog.Logger) *Handler {
	return &Handler{
		resolver: r,
		log:      log,
	}
}

// HandleResolve resolves every cipher reference of the posted descriptor.
//
// URL format: POST /api/v1/resolve[?format=yaml|json]
//
// Request body: deployment descriptor, JSON when Content-Type is
// application/json, YAML otherwise.
//
// Response: the resolved descriptor in the request format. Nothing is
// returned when any reference fails to resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	desc, tree, reqErr := h.loadDescriptor(r)
	if reqErr != nil {
		h.writeError(w, reqErr)
		return
	}

	if err := h.resolver.ResolveTree(r.Context(), tree); err != nil {
		h.writeError(w, resolveError(err))
		return
	}

	var buf bytes.Buffer
	if err := desc.Encode(&buf); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusInternalServerError, Err: err})
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(desc.Format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Debug("Failed to write response", "err", err)
	}
}

// HandleEnvironment resolves the posted descriptor and returns the process
// environment of one function: shared variables overridden by the function's.
//
// URL format: POST /api/v1/environment/{function}
//
// Response: JSON object mapping variable names to values.
func (h *Handler) HandleEnvironment(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")

	_, tree, reqErr := h.loadDescriptor(r)
	if reqErr != nil {
		h.writeError(w, reqErr)
		return
	}

	if _, ok := tree.Unit(function); !ok {
		h.writeError(w, &RequestError{
			StatusCode: http.StatusNotFound,
			Err:        fmt.Errorf("%w: %s", interfaces.ErrUnknownUnit, function),
		})
		return
	}

	if err := h.resolver.ResolveTree(r.Context(), tree); err != nil {
		h.writeError(w, resolveError(err))
		return
	}

	env := resolver.MapEnvironment{}
	if err := resolver.ProjectToProcessEnvironment(tree, function, env); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusInternalServerError, Err: err})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.log.Debug("Failed to write response", "err", err)
	}
}

func (h *Handler) loadDescriptor(r *http.Request) (*descriptor.Descriptor, *interfaces.ConfigurationTree, *RequestError) {
	format, err := requestFormat(r)
	if err != nil {
		return nil, nil, &RequestError{StatusCode: http.StatusUnsupportedMediaType, Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, nil, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}

	desc, err := descriptor.Parse(body, format)
	if err != nil {
		return nil, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}

	tree, err := desc.Tree()
	if err != nil {
		return nil, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return desc, tree, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err *RequestError) {
	if err.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.Int("status", err.StatusCode), "err", err.Err)
	} else {
		h.log.Debug("Request rejected", slog.Int("status", err.StatusCode), "err", err.Err)
	}
	http.Error(w, err.Error(), err.StatusCode)
}

// resolveError maps resolution failures to status codes. Malformed references
// are the caller's fault; oracle failures are upstream failures.
func resolveError(err error) *RequestError {
	switch {
	case errors.Is(err, interfaces.ErrMalformedCipherObject), errors.Is(err, interfaces.ErrMalformedInlineCipher):
		return &RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err}
	default:
		return &RequestError{StatusCode: http.StatusBadGateway, Err: err}
	}
}

func requestFormat(r *http.Request) (descriptor.Format, error) {
	if name := r.URL.Query().Get(FormatQueryParam); name != "" {
		return descriptor.ParseFormat(name)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return descriptor.FormatJSON, nil
	}
	return descriptor.FormatYAML, nil
}

func contentTypeFor(format descriptor.Format) string {
	if format == descriptor.FormatJSON {
		return "application/json"
	}
	return "application/yaml"
}

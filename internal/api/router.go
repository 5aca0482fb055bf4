package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/internal/contract"
	"github.com/searchforge/fusion_proxy/internal/controller"
	"github.com/searchforge/fusion_proxy/internal/health"
	"github.com/searchforge/fusion_proxy/policy"
)

const maxBodyBytes = 8 << 20

// Router wires the HTTP endpoints for the fusion proxy.
type Router struct {
	controller *controller.Controller
	logger     *zap.Logger
}

// NewRouter constructs the HTTP router.
func NewRouter(ctrl *controller.Controller, logger *zap.Logger) (*chi.Mux, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{controller: ctrl, logger: logger}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(traceID)

	mux.Get("/healthz", r.handleHealthz)
	mux.Get("/readyz", health.Readyz(ctrl))
	mux.Route("/v1/collections", func(cr chi.Router) {
		cr.Post("/", r.handleCreateCollection)
		cr.Post("/{name}/docs", r.handleInsert)
		cr.Post("/{name}/search", r.handleSearch)
	})

	return mux, nil
}

// traceID propagates the caller's trace id or mints a new one.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(req.Header.Get(contract.TraceIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(contract.TraceIDHeader, id)
		next.ServeHTTP(w, req.WithContext(contract.WithTraceID(req.Context(), id)))
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleCreateCollection(w http.ResponseWriter, req *http.Request) {
	var body contract.CreateCollectionRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.writeError(w, req, err)
		return
	}

	schema := engine.NewCollectionSchema(normalizeName(body.Name))
	for _, f := range body.Fields {
		f.Name = normalizeName(f.Name)
		if err := schema.AddField(f); err != nil {
			r.writeError(w, req, err)
			return
		}
	}

	if err := r.controller.CreateCollection(req.Context(), schema); err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, schema)
}

func (r *Router) handleInsert(w http.ResponseWriter, req *http.Request) {
	collection := normalizeName(chi.URLParam(req, "name"))

	var body contract.InsertRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.writeError(w, req, err)
		return
	}
	if len(body.Docs) == 0 {
		r.writeError(w, req, engine.Errorf(engine.StatusInvalidArgument, "at least one doc required"))
		return
	}

	docs := make([]*engine.Doc, len(body.Docs))
	for i := range body.Docs {
		docs[i] = &body.Docs[i]
	}
	if err := r.controller.Insert(req.Context(), collection, docs); err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.InsertResponse{Inserted: len(docs)})
}

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	var body contract.SearchRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.writeError(w, req, err)
		return
	}
	body.Collection = normalizeName(chi.URLParam(req, "name"))
	body.TraceID, _ = contract.TraceIDFromContext(req.Context())
	for i := range body.Queries {
		body.Queries[i].Field = normalizeName(body.Queries[i].Field)
	}

	resp, err := r.controller.Search(req.Context(), body)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status, code := classify(err)
	traceID, _ := contract.TraceIDFromContext(req.Context())

	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed",
			zap.String("path", req.URL.Path),
			zap.String("trace_id", traceID),
			zap.String("code", code),
			zap.Error(err),
		)
	}

	writeJSON(w, status, contract.ErrorResponse{
		Code:    code,
		Message: err.Error(),
		TraceID: traceID,
	})
}

// classify maps an error to an HTTP status and a response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, policy.ErrBudgetExceeded):
		return http.StatusGatewayTimeout, "budget_exceeded"
	case errors.Is(err, policy.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, policy.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	}

	code := engine.CodeOf(err)
	switch code {
	case engine.StatusNotFound:
		return http.StatusNotFound, code.String()
	case engine.StatusAlreadyExists:
		return http.StatusConflict, code.String()
	case engine.StatusInvalidArgument:
		return http.StatusBadRequest, code.String()
	case engine.StatusPermissionDenied:
		return http.StatusForbidden, code.String()
	case engine.StatusNotSupported:
		return http.StatusNotImplemented, code.String()
	case engine.StatusFailedPrecondition:
		return http.StatusPreconditionFailed, code.String()
	default:
		return http.StatusBadGateway, code.String()
	}
}

func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return engine.Wrap(err, engine.StatusInvalidArgument, "decode body")
	}
	return nil
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	return norm.NFKC.String(name)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

// Package web serves the compound lookup pages, the JSON API and the export
// archive endpoints.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"chebi2gene/internal/blob"
	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
	"chebi2gene/internal/export"
	"chebi2gene/internal/identifier"
	"chebi2gene/internal/render"
	"chebi2gene/internal/sparql"
)

// Reports is the pipeline surface the handlers need; *core.Service
// satisfies it.
type Reports interface {
	Report(ctx context.Context, chebiID string) (*core.Report, error)
	Search(ctx context.Context, name string, extended bool) (core.SearchResult, error)
	Lookup(ctx context.Context, input string) (*core.Lookup, error)
}

// Exports schedules and serves archived reports; *export.Worker satisfies it.
type Exports interface {
	Enqueue(ctx context.Context, input export.Input) (export.Record, error)
	Get(ctx context.Context, id string) (export.Record, error)
	List(ctx context.Context) ([]export.Record, error)
	Open(ctx context.Context, id, name string) (export.Artifact, io.ReadCloser, error)
	DownloadURL(ctx context.Context, id, name string, expiry time.Duration) (string, bool, error)
}

// Metrics exposes the scrape handler and the per-route instrumentation.
type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Options wires optional collaborators into the handler.
type Options struct {
	Links          config.LinkConfig
	Exports        Exports // nil disables /api/v1/exports
	Metrics        Metrics
	Logger         *zap.Logger
	DownloadExpiry time.Duration
}

// Handler routes every HTTP request of the service.
type Handler struct {
	reports  Reports
	exports  Exports
	renderer *render.Renderer
	links    config.LinkConfig
	log      *zap.Logger
	expiry   time.Duration
	router   *mux.Router
}

// NewHandler builds the router.
func NewHandler(reports Reports, opts Options) (*Handler, error) {
	renderer, err := render.New(opts.Links)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DownloadExpiry <= 0 {
		opts.DownloadExpiry = 15 * time.Minute
	}
	h := &Handler{
		reports:  reports,
		exports:  opts.Exports,
		renderer: renderer,
		links:    opts.Links,
		log:      opts.Logger.Named("http"),
		expiry:   opts.DownloadExpiry,
		router:   mux.NewRouter().UseEncodedPath(),
	}
	h.routes(opts.Metrics)
	return h, nil
}

func (h *Handler) routes(metrics Metrics) {
	r := h.router
	r.Use(h.logRequests)
	if metrics != nil {
		r.Use(metrics.Middleware)
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/", h.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/", h.handleLookupForm).Methods(http.MethodPost)
	r.HandleFunc("/search/{name}", h.handleSearch(false)).Methods(http.MethodGet)
	r.HandleFunc("/fullsearch/{name}", h.handleSearch(true)).Methods(http.MethodGet)
	r.HandleFunc("/chebi/{id}", h.handleReportPage).Methods(http.MethodGet)
	r.HandleFunc("/csv/{id}", h.handleReportCSV).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/compounds/{id}", h.handleReportJSON).Methods(http.MethodGet)
	api.HandleFunc("/search", h.handleSearchJSON).Methods(http.MethodGet)
	api.HandleFunc("/lookup", h.handleLookupJSON).Methods(http.MethodGet)
	if h.exports != nil {
		api.HandleFunc("/exports", h.handleCreateExport).Methods(http.MethodPost)
		api.HandleFunc("/exports", h.handleListExports).Methods(http.MethodGet)
		api.HandleFunc("/exports/{id}", h.handleGetExport).Methods(http.MethodGet)
		api.HandleFunc("/exports/{id}/artifacts/{artifact}", h.handleArtifact).Methods(http.MethodGet)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	h.renderPage(w, http.StatusOK, func(buf io.Writer) error { return h.renderer.Index(buf, "", "") })
}

// handleLookupForm sends numeric ids to the report and anything else to
// the exact search.
func (h *Handler) handleLookupForm(w http.ResponseWriter, r *http.Request) {
	term, numeric := identifier.NormalizeCompound(r.FormValue("chebi_id"))
	if term == "" {
		h.renderPage(w, http.StatusBadRequest, func(buf io.Writer) error {
			return h.renderer.Index(buf, "", "Enter a ChEBI id or a compound name.")
		})
		return
	}
	if numeric {
		http.Redirect(w, r, "/chebi/"+term, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/search/"+url.PathEscape(term), http.StatusSeeOther)
}

func (h *Handler) handleSearch(extended bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := pathVar(r, "name")
		result, err := h.reports.Search(r.Context(), name, extended)
		if err != nil {
			h.pageError(w, name, err)
			return
		}
		if !extended && len(result) == 1 {
			http.Redirect(w, r, "/chebi/"+result.IDs()[0], http.StatusSeeOther)
			return
		}
		h.renderPage(w, http.StatusOK, func(buf io.Writer) error {
			return h.renderer.Search(buf, name, extended, result)
		})
	}
}

func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.compoundID(w, r)
	if !ok {
		return
	}
	report, err := h.reports.Report(r.Context(), id)
	if err != nil {
		h.pageError(w, id, err)
		return
	}
	h.renderPage(w, http.StatusOK, func(buf io.Writer) error { return h.renderer.Report(buf, report) })
}

func (h *Handler) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.compoundID(w, r)
	if !ok {
		return
	}
	report, err := h.reports.Report(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"chebi2gene_%s.csv\"", id))
	if err := render.CSV(w, core.ReportRows(report, h.links)); err != nil {
		h.log.Warn("stream csv", zap.String("chebi_id", id), zap.Error(err))
	}
}

// compoundID extracts a numeric id from the route. Free text is handed to
// the exact search instead.
func (h *Handler) compoundID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := pathVar(r, "id")
	id, numeric := identifier.NormalizeCompound(raw)
	if !numeric {
		http.Redirect(w, r, "/search/"+url.PathEscape(id), http.StatusSeeOther)
		return "", false
	}
	return id, true
}

func (h *Handler) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	id, numeric := identifier.NormalizeCompound(pathVar(r, "id"))
	if !numeric {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%q is not a numeric ChEBI id", id))
		return
	}
	report, err := h.reports.Report(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSearchJSON(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	extended, _ := strconv.ParseBool(query.Get("extended"))
	result, err := h.reports.Search(r.Context(), query.Get("q"), extended)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    query.Get("q"),
		"extended": extended,
		"matches":  result,
	})
}

func (h *Handler) handleLookupJSON(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.reports.Lookup(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (h *Handler) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var input export.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request: "+err.Error())
		return
	}
	record, err := h.exports.Enqueue(r.Context(), input)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Location", "/api/v1/exports/"+record.ID)
	writeJSON(w, http.StatusAccepted, record)
}

func (h *Handler) handleListExports(w http.ResponseWriter, r *http.Request) {
	records, err := h.exports.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": records})
}

func (h *Handler) handleGetExport(w http.ResponseWriter, r *http.Request) {
	record, err := h.exports.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleArtifact redirects to a presigned URL when the blob store offers
// one and streams the artifact otherwise.
func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id, name := pathVar(r, "id"), pathVar(r, "artifact")
	target, ok, err := h.exports.DownloadURL(r.Context(), id, name, h.expiry)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if ok {
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}
	artifact, body, err := h.exports.Open(r.Context(), id, name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer func() { _ = body.Close() }()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-%s\"", id, artifact.Name))
	if artifact.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn("stream artifact", zap.String("export_id", id), zap.String("artifact", name), zap.Error(err))
	}
}

// renderPage buffers the page so a template failure still yields a clean
// 500 instead of a truncated document.
func (h *Handler) renderPage(w http.ResponseWriter, status int, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.log.Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) pageError(w http.ResponseWriter, query string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("lookup failed", zap.String("query", query), zap.Error(err))
	}
	h.renderPage(w, status, func(buf io.Writer) error { return h.renderer.Index(buf, query, err.Error()) })
}

// statusFor maps domain errors onto HTTP status codes. Upstream SPARQL
// failures only surface in strict mode and answer 502.
// pathVar returns the decoded route variable. The router matches on the
// escaped path so a %2F inside a segment stays part of that segment.
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyInput),
		errors.Is(err, core.ErrEmptySearch),
		errors.Is(err, core.ErrInvalidCompound),
		errors.Is(err, export.ErrInvalidID),
		errors.Is(err, export.ErrInvalidFormat),
		errors.Is(err, sparql.ErrInvalidTerm):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, export.ErrQueueFull), errors.Is(err, export.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, sparql.ErrTransport), errors.Is(err, sparql.ErrUnparseable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/techsheet/internal/config"
	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

type Router struct {
	cfg    config.Config
	ingest ports.SpecificationIngestor
	reader ports.SpecificationReader
	logger *slog.Logger

	metricsHandler http.Handler
	httpMetrics    func(http.Handler) http.Handler
}

type RouterOption func(*Router)

// WithMetrics exposes handler on /metrics and wraps every route with
// instrument.
func WithMetrics(handler http.Handler, instrument func(http.Handler) http.Handler) RouterOption {
	return func(rt *Router) {
		rt.metricsHandler = handler
		rt.httpMetrics = instrument
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		rt.logger = logger
	}
}

func NewRouter(cfg config.Config, ingest ports.SpecificationIngestor, reader ports.SpecificationReader, opts ...RouterOption) *Router {
	rt := &Router{cfg: cfg, ingest: ingest, reader: reader, logger: slog.Default()}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	gate := newBackpressureGate(rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	mux.Handle("POST /v1/specifications", gate.wrap(http.HandlerFunc(rt.uploadSpecification)))
	mux.HandleFunc("GET /v1/specifications/{id}", rt.getSpecification)
	mux.Handle("POST /v1/specifications/{id}/reprocess", gate.wrap(http.HandlerFunc(rt.reprocessSpecification)))
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadSpecification(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ownerID := strings.TrimSpace(r.FormValue("owner_id"))
	spec, err := rt.ingest.Upload(r.Context(), ownerID, fileHeader.Filename, file)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, rt.dispatchStatus(), spec)
}

func (rt *Router) getSpecification(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "specification id is required")
		return
	}
	spec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (rt *Router) reprocessSpecification(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	spec, err := rt.ingest.Reprocess(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, spec)
}

// dispatchStatus is 202 while the run is still queued and 200 once the
// record already carries the outcome.
func (rt *Router) dispatchStatus() int {
	if rt.cfg.ProcessingMode == config.ModeSync {
		return http.StatusOK
	}
	return http.StatusAccepted
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	message := err.Error()
	if status == http.StatusNotFound {
		message = domain.ErrNotFound.Error()
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

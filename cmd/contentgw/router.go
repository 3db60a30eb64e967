package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	contentgw "github.com/connectlist/contentgw"
	"github.com/connectlist/contentgw/internal/admin"
	"github.com/connectlist/contentgw/internal/circuitbreaker"
	"github.com/connectlist/contentgw/internal/logging"
	"github.com/connectlist/contentgw/internal/metrics"
	"github.com/connectlist/contentgw/internal/version"
	"github.com/connectlist/contentgw/providers"
)

// newRouter builds the HTTP router.
func newRouter(svc *contentgw.Service, cfg contentgw.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	if cfg.RequestsPerMinute > 0 {
		r.Use(rateLimitMiddleware(cfg.RequestsPerMinute))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   version.Info(),
			"providers": svc.ListProviders(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	secret := []byte(cfg.SessionSecret)
	h := &contentHandlers{svc: svc}
	r.Route("/v1", func(r chi.Router) {
		r.Use(admin.SessionMiddleware(secret))
		r.Get("/search", h.search)
		r.Get("/content/{type}/{id}", h.details)
	})

	if len(secret) > 0 {
		adminHandlers := &admin.Handlers{Cache: svc}
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.SessionMiddleware(secret))
			r.Mount("/", adminHandlers.Routes())
		})
	}

	return r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	})
}

func rateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			metrics.HTTPRejections.WithLabelValues("rate_limited").Inc()
			admin.WriteError(w, http.StatusTooManyRequests, "too many requests", "", "rate_limited")
		}),
	)
}

type contentHandlers struct {
	svc *contentgw.Service
}

func (h *contentHandlers) search(w http.ResponseWriter, r *http.Request) {
	params := searchParams{
		Query: r.URL.Query().Get("q"),
		Type:  r.URL.Query().Get("type"),
	}
	if err := validateStruct(params); err != nil {
		metrics.HTTPRejections.WithLabelValues("invalid_request").Inc()
		admin.WriteError(w, http.StatusBadRequest, err.Error(), "", "invalid_parameters")
		return
	}

	ct := contentgw.ContentType(params.Type)
	value, err := h.svc.TrySearch(r.Context(), params.Query, ct)
	if err != nil {
		if lookupStatus(err) == http.StatusBadRequest {
			writeLookupError(w, err)
			return
		}
		// Failures read as an empty result, like Service.Search.
		logging.FromContext(r.Context()).Warn("search returned no results",
			"content_type", params.Type, "error", err.Error())
		value = nil
	}
	writeJSON(w, http.StatusOK, searchResponse{Type: ct, Query: params.Query, Results: value})
}

type searchResponse struct {
	Type    contentgw.ContentType `json:"type"`
	Query   string                `json:"query"`
	Results json.RawMessage       `json:"results"`
}

func (h *contentHandlers) details(w http.ResponseWriter, r *http.Request) {
	ct, err := contentgw.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		admin.WriteError(w, http.StatusBadRequest, "malformed id", "", "invalid_parameters")
		return
	}

	value, err := h.svc.GetDetails(r.Context(), ct, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeRaw(w, value)
}

// lookupStatus maps a lookup error to the HTTP status returned to clients.
func lookupStatus(err error) int {
	var perr *providers.Error
	switch {
	case errors.Is(err, contentgw.ErrUnknownContentType),
		errors.Is(err, contentgw.ErrInvalidID),
		errors.Is(err, contentgw.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, contentgw.ErrProviderNotConfigured),
		errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	status := lookupStatus(err)
	code := ""
	switch status {
	case http.StatusBadGateway:
		code = "upstream_error"
	case http.StatusGatewayTimeout:
		code = "upstream_timeout"
	}
	admin.WriteError(w, status, err.Error(), "", code)
}

func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

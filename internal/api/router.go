// Package api serves rendered experiences with their sponsored cards
// resolved.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"adloader/internal/ads"
	"adloader/internal/auth"
	"adloader/internal/store"
	"adloader/pkg/logger"
)

const traceHeader = "X-Request-ID"

type Deps struct {
	Loader *ads.Loader
	// Store backs GET /experiences/{id}; the route is not mounted when nil.
	Store    store.Store
	Auth     *auth.Service
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, withTrace(d.Log), accessLog, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	if d.Store != nil {
		r.Get("/experiences/{id}", handleGetExperience(d.Store, d.Loader))
	}
	r.With(d.Auth.RequireScope(auth.ScopeResolve)).Post("/ads/resolve", handleResolve(d.Loader))
	r.With(d.Auth.RequireScope(auth.ScopeCardsRead)).Get("/cards/{id}", handleGetCard(d.Loader))
	return r
}

// withTrace binds the request's trace id, taken from X-Request-ID or
// generated, to the request context and echoes it on the response.
func withTrace(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(traceHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(traceHeader, id)
			next.ServeHTTP(w, r.WithContext(logger.WithTrace(r.Context(), log, id)))
		})
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

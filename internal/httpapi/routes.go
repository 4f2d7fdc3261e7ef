// Package httpapi exposes queue management, session queries and on-demand
// matching passes over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
)

// HealthFunc reports whether the service's dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// API serves the matchmaker's HTTP endpoints.
type API struct {
	store   matchmaking.Store
	pass    matchmaking.Pass
	buckets matchmaking.LatencyBuckets
	health  HealthFunc
	metrics http.Handler
	logger  *zap.Logger
}

// Options carries the optional collaborators of an API.
type Options struct {
	// Health backs /healthz. Nil always reports healthy.
	Health HealthFunc
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
}

// NewAPI creates an API over store that triggers passes through pass.
//
// Precondition: store, pass and logger must be non-nil.
func NewAPI(store matchmaking.Store, pass matchmaking.Pass, buckets matchmaking.LatencyBuckets, opts Options, logger *zap.Logger) *API {
	return &API{
		store:   store,
		pass:    pass,
		buckets: buckets,
		health:  opts.Health,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Routes builds the router for every endpoint.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.Healthz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/queue", func(r chi.Router) {
		r.Post("/", a.Enqueue)
		r.Get("/{playerID}", a.GetQueued)
		r.Delete("/{playerID}", a.Dequeue)
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", a.GetSession)
		r.Get("/players", a.ListMembers)
		r.Post("/players", a.AddPlayer)
		r.Delete("/players/{playerID}", a.RemovePlayer)
	})

	r.Post("/match/run", a.RunMatch)
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/newsfeed/internal/api"
	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/middleware"
)

// serviceName identifies the API in traces and the root endpoint.
const serviceName = "newsfeed-api"

// routerDeps are the collaborators behind the HTTP routes.
type routerDeps struct {
	Logger      *slog.Logger
	Generator   api.FeedGenerator
	Feeds       feed.FeedReader
	Tokens      middleware.TokenValidator
	RateStore   middleware.RateLimitStore
	RateLimit   middleware.RateLimitConfig
	Health      *api.HealthHandlers
	Gatherer    prometheus.Gatherer
	HTTPMetrics *middleware.Metrics
}

// newRouter builds the route table and wraps it as
// RequestID -> Logging -> Tracing -> HTTPMetrics -> mux.
func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", d.Health.Health)
	mux.HandleFunc("/ready", d.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	newsfeed := api.NewNewsfeedHandlers(d.Generator, d.Feeds, d.Logger)
	requireAuth := middleware.RequireAuth(d.Tokens)
	limitGenerate := middleware.RateLimiter(d.RateStore, d.RateLimit, middleware.UserKeyFunc(), d.HTTPMetrics)

	mux.Handle("POST /api/v1/me/newsfeed", requireAuth(limitGenerate(http.HandlerFunc(newsfeed.GenerateMine))))
	mux.Handle("POST /api/v1/users/{id}/newsfeed", requireAuth(limitGenerate(http.HandlerFunc(newsfeed.GenerateForUser))))
	mux.Handle("GET /api/v1/me/newsfeed", requireAuth(http.HandlerFunc(newsfeed.GetMine)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + serviceName + `","version":"` + version + `"}`)); err != nil {
			slog.ErrorContext(r.Context(), "failed to write response", "error", err)
		}
	})

	handler := middleware.HTTPMetrics(d.HTTPMetrics)(mux)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.Logging(d.Logger)(handler)
	return middleware.RequestID(handler)
}

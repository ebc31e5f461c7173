package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"curator/api"
	"curator/config"
	"curator/handlers"
	"curator/services/cache"
	"curator/services/featured"
	"curator/services/metadata"
	"curator/services/prowlarr"
	"curator/services/scheduler"
	"curator/utils"
)

// application holds the wired components for one process.
type application struct {
	settings     *config.Settings
	registry     *prometheus.Registry
	store        cache.Store
	orchestrator *featured.Orchestrator
	scheduler    *scheduler.Service
	service      *featured.Service
}

func newApplication(settings *config.Settings) (*application, error) {
	app := &application{settings: settings}

	var reg prometheus.Registerer
	if settings.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = app.registry
	}

	store, err := cache.Open(cache.Options{
		Backend:       settings.Cache.Backend,
		MemoryEntries: settings.Cache.MemoryEntries,
		Dir:           settings.Cache.Dir,
		RedisAddr:     settings.Cache.RedisAddr,
		RedisPassword: settings.Cache.RedisPassword,
		RedisDB:       settings.Cache.RedisDB,
		RedisPrefix:   settings.Cache.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	app.store = store
	if rs, ok := store.(*cache.RedisStore); ok {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rs.Ping(pingCtx); err != nil {
			// Reads fall through to live aggregation until redis comes back.
			log.Warn().Err(err).Str("addr", settings.Cache.RedisAddr).Msg("[curator] redis cache unreachable")
		}
		cancel()
	}

	tmdb := metadata.NewTMDBClient(metadata.TMDBConfig{
		APIKey:            settings.TMDB.APIKey,
		Language:          settings.TMDB.Language,
		Timeout:           time.Duration(settings.TMDB.HTTPTimeoutSeconds) * time.Second,
		RequestsPerSecond: settings.TMDB.RequestsPerSecond,
		Burst:             settings.TMDB.Burst,
	})
	enricher := metadata.NewEnricher(tmdb, metadata.EnricherOptions{
		Concurrency: settings.Enrichment.Concurrency,
		Store:       store,
	})

	listings := prowlarr.NewClient(prowlarr.Config{
		BaseURL: settings.Prowlarr.URL,
		APIKey:  settings.Prowlarr.APIKey,
		Timeout: time.Duration(settings.Prowlarr.HTTPTimeoutSeconds) * time.Second,
	})

	metrics := featured.NewMetrics(reg)
	aggregator := featured.NewAggregator(listings, enricher, featured.AggregatorOptions{
		Limit:        settings.Featured.CategoryLimit,
		QueryTimeout: time.Duration(settings.Featured.QueryTimeoutSeconds) * time.Second,
		Metrics:      metrics,
	})
	app.orchestrator = featured.NewOrchestrator(aggregator, store, featured.OrchestratorOptions{
		TTL:     settings.CacheTTL(),
		Metrics: metrics,
	})
	app.scheduler = scheduler.NewService(app.orchestrator, scheduler.Options{
		Interval:   settings.RefreshInterval(),
		RunOnStart: settings.Refresh.OnStart,
		Registerer: reg,
	})
	app.service = featured.NewService(app.orchestrator, app.scheduler).WithMemo(enricher)

	log.Info().
		Str("cache", settings.Cache.Backend).
		Bool("tmdb", tmdb.Configured()).
		Bool("prowlarr", listings.Configured()).
		Dur("ttl", app.orchestrator.TTL()).
		Msg("[curator] components initialised")
	return app, nil
}

// handler builds the full HTTP handler tree.
func (app *application) handler(ctx context.Context) http.Handler {
	s := app.settings.Server
	r := utils.NewRouter(handlers.BackendVersion())
	r.Use(api.RequestLogger)

	var adminMW []mux.MiddlewareFunc
	if s.RateLimit > 0 {
		limiter := api.NewIPRateLimiter(rate.Limit(s.RateLimit), max(s.RateBurst, 1), s.TrustProxy)
		go limiter.Run(ctx)
		adminMW = append(adminMW, limiter.Middleware())
	}
	adminMW = append(adminMW, api.AdminKeyMiddleware(s.AdminKey))

	handlers.NewFeaturedHandler(app.service).Register(r, adminMW...)

	if app.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return utils.CORS(utils.OriginPolicy{Allowed: s.AllowedOrigins, Private: s.AllowPrivate})(r)
}

func (app *application) close() {
	if c, ok := app.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("[curator] failed to close cache store")
		}
	}
}

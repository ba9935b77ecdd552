package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/api/handlers"
	mw "github.com/Harshitk-cp/medgraph/internal/api/middleware"
	"github.com/Harshitk-cp/medgraph/internal/buildconfig"
	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend bundles the storage the app runs on. DB is nil for the in-memory
// backend, which also has no locker or invalidation source.
type Backend struct {
	DB            *pgxpool.Pool
	Revisions     domain.RevisionStore
	Computed      domain.ComputedRelationStore
	Locker        domain.Locker
	Invalidations domain.InvalidationSource
	Publisher     handlers.Publisher
}

func NewPostgresBackend(db *pgxpool.Pool, logger *zap.Logger) Backend {
	revisions := store.NewRevisionStore(db)
	revisions.SetInvalidationChannel(config.InvalidationChannel())
	notifier := store.NewNotifier(db, config.InvalidationChannel(), logger)

	return Backend{
		DB:            db,
		Revisions:     revisions,
		Computed:      store.NewComputedRelationStore(db),
		Locker:        store.NewLeaseLocker(db, config.CacheLockTTL()),
		Invalidations: notifier,
		Publisher:     notifier,
	}
}

// NewMemoryBackend returns a backend whose revision store writes through to
// its computed store, along with the store for seeding.
func NewMemoryBackend() (Backend, *store.MemoryRevisionStore) {
	computed := store.NewMemoryComputedRelationStore()
	revisions := store.NewMemoryRevisionStore(computed)
	return Backend{Revisions: revisions, Computed: computed}, revisions
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Sweeper   *service.SweeperService
	Listener  *service.InvalidationListener
	Inference *service.InferenceService
	Cache     *service.ComputedRelationCache
	startTime time.Time
	counters  mw.Counters
}

func NewApp(b Backend, logger *zap.Logger) *App {
	modelVersion := config.InferenceModelVersion()
	resolverTimeout := config.ResolverTimeout()

	// Services
	aggregator := service.NewAggregator(config.ExpectedEvidenceUnit())
	cache := service.NewComputedRelationCache(b.Computed, logger)
	if b.Locker != nil {
		cache.SetLocker(b.Locker)
	}

	inferenceSvc := service.NewInferenceService(b.Revisions, cache, aggregator, logger)
	inferenceSvc.SetModelVersion(modelVersion)
	inferenceSvc.SetResolverTimeout(resolverTimeout)

	explainSvc := service.NewExplanationService(b.Revisions, aggregator, logger)
	explainSvc.SetModelVersion(modelVersion)
	explainSvc.SetResolverTimeout(resolverTimeout)

	sweeperSvc := service.NewSweeperService(b.Computed, modelVersion, logger)
	sweeperSvc.SetInterval(config.CacheSweepInterval())

	var listener *service.InvalidationListener
	if b.Invalidations != nil {
		listener = service.NewInvalidationListener(b.Invalidations, b.Revisions, cache, logger)
	}

	// Handlers
	inferenceHandler := handlers.NewInferenceHandler(inferenceSvc, logger)
	explainHandler := handlers.NewExplainHandler(explainSvc, logger)
	scopeHandler := handlers.NewScopeHandler()
	computedHandler := handlers.NewComputedHandler(cache, logger)
	if b.Publisher != nil {
		computedHandler.SetPublisher(b.Publisher)
	}

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sweeper:   sweeperSvc,
		Listener:  listener,
		Inference: inferenceSvc,
		Cache:     cache,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.counters)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(b.DB))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler(modelVersion))

	r.Get("/inferences/entity/{entity_id}", inferenceHandler.GetEntity)
	r.Get("/explain/inference/{entity_id}/{role_type}", explainHandler.Explain)
	r.Get("/scopes/hash", scopeHandler.Hash)

	r.Route("/computed", func(r chi.Router) {
		r.Get("/stats", computedHandler.Stats)
		r.Delete("/relations/{relation_id}", computedHandler.InvalidateRelation)
		r.Delete("/scopes/{scope_hash}", computedHandler.InvalidateScope)
	})

	return app
}

// Start launches the background services.
func (app *App) Start() {
	app.Sweeper.Start()
	if app.Listener != nil {
		app.Listener.Start()
	}
}

// Stop stops the background services and waits for them to exit.
func (app *App) Stop() {
	app.Sweeper.Stop()
	if app.Listener != nil {
		app.Listener.Stop()
	}
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(modelVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo(modelVersion))
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":     uptime.Seconds(),
			"uptime_human":       uptime.Round(time.Second).String(),
			"request_count":      app.counters.Requests.Load(),
			"client_error_count": app.counters.ClientErrors.Load(),
			"server_error_count": app.counters.ServerErrors.Load(),
			"computed_cache":     app.Cache.Stats(),
			"inference_model":    app.Inference.ModelVersion(),
			"goroutines":         runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.RevisionStore         = (*store.RevisionStore)(nil)
	_ domain.RevisionWriter        = (*store.RevisionStore)(nil)
	_ domain.RevisionStore         = (*store.MemoryRevisionStore)(nil)
	_ domain.RevisionWriter        = (*store.MemoryRevisionStore)(nil)
	_ domain.ComputedRelationStore = (*store.ComputedRelationStore)(nil)
	_ domain.ComputedRelationStore = (*store.MemoryComputedRelationStore)(nil)
	_ domain.Locker                = (*store.LeaseLocker)(nil)
	_ domain.InvalidationSource    = (*store.Notifier)(nil)
	_ handlers.Publisher           = (*store.Notifier)(nil)
)

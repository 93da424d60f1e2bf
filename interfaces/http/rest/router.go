package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"topicgraph/interfaces/http/rest/handlers"
	"topicgraph/interfaces/http/rest/middleware"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/observability"
)

// RouterConfig holds the switches the router reads
type RouterConfig struct {
	EnableCORS         bool
	CORSAllowedOrigins []string
	EnableMetrics      bool
	Debug              bool

	// Per-client request budget for /api/v1; zero disables it
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Bearer auth on mutating routes. TrustGatewayAuth accepts requests
	// the Lambda entrypoint marked as authorized by API Gateway.
	RequireAuth      bool
	JWTSecret        string
	JWTIssuer        string
	TrustGatewayAuth bool
}

// Router creates and configures the HTTP router
type Router struct {
	engine  handlers.TopicService
	config  RouterConfig
	logger  *zap.Logger
	metrics *observability.Collector
	tracer  *observability.Tracer
}

// NewRouter creates a new router instance
func NewRouter(
	engine handlers.TopicService,
	cfg RouterConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) *Router {
	return &Router{
		engine:  engine,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.config.Debug)
	topicHandler := handlers.NewTopicHandler(rt.engine, errorHandler, rt.logger)
	healthHandler := handlers.NewHealthHandler(rt.engine, rt.logger)

	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger, rt.metrics))
	router.Use(errorHandler.Middleware)
	router.Use(middleware.Tracing(rt.tracer))

	if rt.config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.config.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Get("/health", healthHandler.Health)
	router.Get("/ready", healthHandler.Ready)
	if rt.config.EnableMetrics && rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	// Mutating routes sit behind bearer auth when it is required
	authenticated := func(r chi.Router) chi.Router { return r }
	if rt.config.RequireAuth {
		auth := middleware.NewAuthenticator(rt.config.JWTSecret, rt.config.JWTIssuer, rt.config.TrustGatewayAuth)
		authMiddleware := middleware.Authenticate(auth, errorHandler, rt.logger)
		authenticated = func(r chi.Router) chi.Router { return r.With(authMiddleware) }
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(versionHeaders)
		if rt.config.RateLimitPerSecond > 0 {
			limiter := middleware.NewClientRateLimiter(rt.config.RateLimitPerSecond, rt.config.RateLimitBurst)
			r.Use(middleware.RateLimit(limiter, errorHandler))
		}

		authenticated(r).Post("/observations", topicHandler.SubmitObservations)
		authenticated(r).Post("/flush", topicHandler.Flush)
		authenticated(r).Post("/merges", topicHandler.RunMerges)
		r.Get("/stats", topicHandler.GetStats)

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", topicHandler.ListTopics)
			authenticated(r).Post("/", topicHandler.CreateTopic)
			r.Get("/{key}", topicHandler.GetTopic)
			r.Get("/{key}/related", topicHandler.GetRelated)
		})
	})

	return router
}

// versionHeaders adds API version headers to responses
func versionHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Version", "v1")
		next.ServeHTTP(w, r)
	})
}

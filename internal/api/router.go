package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/api/middleware"
	"github.com/David-Byun/wemake/internal/auth"
	"github.com/David-Byun/wemake/internal/config"
	"github.com/David-Byun/wemake/internal/handlers"
	"github.com/David-Byun/wemake/internal/messaging"
	"github.com/David-Byun/wemake/internal/realtime"
	"github.com/David-Byun/wemake/internal/store"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
	Redis  *store.RedisStore // nil disables rate limiting and count caching
	Feed   realtime.Feed
	Tokens *auth.TokenManager
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// Session identity, before rate limiting so limits can key on the user
	authmw := middleware.NewAuthMiddleware(d.Tokens, d.Logger)
	r.Use(authmw.Identify)

	// Rate limiting
	if d.Redis != nil {
		var cfg middleware.RateLimiterConfig
		if d.Config != nil {
			cfg.Whitelist = d.Config.RateLimitWhitelist
			cfg.AutoBlockEnabled = d.Config.AutoBlockEnabled
		}
		limiter := middleware.NewRateLimiter(d.Redis.Client(), d.Logger, cfg)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	db := d.Store
	if d.Redis != nil {
		db = store.WithCountInvalidation(d.Store, d.Redis, d.Logger)
	}

	resolver := messaging.NewResolver(db, d.Feed, d.Logger)
	h := handlers.NewHandler(handlers.Deps{
		Store:         db,
		Redis:         d.Redis,
		Feed:          d.Feed,
		Resolver:      resolver,
		Tokens:        d.Tokens,
		Logger:        d.Logger,
		SecureCookies: d.Config != nil && d.Config.IsProduction(),
	})

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/auth/login", h.Login)
	r.Post("/auth/join", h.Join)
	r.Post("/auth/logout", h.Logout)
	r.Get("/users/{username}", h.Who)

	// Authenticated routes (redirect to login without a session)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Post("/users/{username}/messages", h.SendDM)

		r.Get("/my/profile", h.MyProfile)
		r.Post("/my/settings", h.UpdateSettings)

		r.Get("/my/messages", h.ListConversations)
		r.Get("/my/messages/{id}", h.GetRoom)
		r.Post("/my/messages/{id}", h.PostMessage)
		r.Get("/my/messages/{id}/live", h.Live)

		r.Get("/my/notifications", h.ListNotifications)
		r.Get("/my/notifications/count", h.UnseenCount)
		r.Post("/my/notifications/{id}/see", h.SeeNotification)
	})

	return r
}

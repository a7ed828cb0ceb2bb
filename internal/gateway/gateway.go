// Package gateway is a self-contained HTTP server speaking the Buddy API.
// It keeps all state in memory and is meant for local development and tests.
package gateway

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/config"
	"github.com/buddyapp/buddy-client-go/internal/jobs"
	"github.com/buddyapp/buddy-client-go/internal/middleware"
	"github.com/buddyapp/buddy-client-go/internal/model"
)

type Gateway struct {
	store     *Store
	issuer    *Issuer
	responder Responder
	models    []model.LLMModel
	now       func() time.Time

	refreshTTL   time.Duration
	loginLimiter *middleware.LoginRateLimiter
}

type Option func(*Gateway)

func WithResponder(r Responder) Option {
	return func(g *Gateway) {
		g.responder = r
	}
}

func WithModels(models []model.LLMModel) Option {
	return func(g *Gateway) {
		g.models = models
	}
}

// WithNowFunc replaces the clock used for token expiry and timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

func WithLoginLimit(maxAttempts int, window time.Duration) Option {
	return func(g *Gateway) {
		g.loginLimiter = middleware.NewLoginRateLimiter(maxAttempts, window)
	}
}

func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		responder:    EchoResponder{},
		models:       DefaultModels,
		now:          time.Now,
		refreshTTL:   config.GatewayRefreshTokenTTL,
		loginLimiter: middleware.NewLoginRateLimiter(0, 0),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.store = NewStore(g.now)
	g.issuer = NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL(), g.now)

	if cfg.SeedEmail != "" && cfg.SeedPasswordHash != "" {
		if _, err := g.store.CreateUser(context.Background(), cfg.SeedEmail, cfg.SeedPasswordHash); err != nil {
			return nil, err
		}
		log.Info().Str("email", cfg.SeedEmail).Msg("seed user created")
	}
	return g, nil
}

func (g *Gateway) Store() *Store {
	return g.store
}

// CleanupTasks lists the maintenance the gateway needs run periodically.
func (g *Gateway) CleanupTasks() []jobs.CleanupTask {
	return []jobs.CleanupTask{
		{Name: "refresh tokens", Fn: g.store.DeleteExpiredRefreshTokens},
	}
}

// Router returns the full HTTP handler.
func (g *Gateway) Router() chi.Router {
	authMiddleware := middleware.NewAuthMiddleware(g.issuer)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get(config.HealthPath, g.ping)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", g.register)
			r.With(g.loginLimiter.Handler).Post("/login", g.login)
			r.Post("/refresh", g.refresh)
			r.With(authMiddleware.Handler).Get("/session", g.session)
		})

		r.Route("/llm/chats", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/", g.listRooms)
			r.Post("/", g.sendMessage)
			r.Get("/{roomID}", g.listMessages)
		})
	})

	return r
}

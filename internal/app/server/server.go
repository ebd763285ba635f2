package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vkuzn/gatelink/internal/app/service"
	"github.com/vkuzn/gatelink/internal/bot"
	inthttp "github.com/vkuzn/gatelink/internal/http/handler"
	"github.com/vkuzn/gatelink/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server exposes: the web
// redemption flow and the chat webhook front door.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	Links     service.LinkService
	Publisher *service.RedeemPublisher
	BotRouter *bot.Router
	BotToken  string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with middleware and routes installed.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}

	redeemHandler := inthttp.NewRedeemHandler(inthttp.RedeemDeps{
		Logger:    s.deps.Logger,
		Links:     s.deps.Links,
		Publisher: s.deps.Publisher,
	})
	redeemHandler.Register(s.app)

	if s.deps.BotRouter != nil {
		webhookHandler := inthttp.NewWebhookHandler(inthttp.WebhookDeps{
			Logger: s.deps.Logger,
			Router: s.deps.BotRouter,
			Token:  s.deps.BotToken,
		})
		webhookHandler.Register(s.app)
	}
}

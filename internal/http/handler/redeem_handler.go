package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vkuzn/gatelink/internal/app/repository"
	"github.com/vkuzn/gatelink/internal/app/service"
	infraprometheus "github.com/vkuzn/gatelink/internal/infra/prometheus"
	"github.com/vkuzn/gatelink/internal/http/view"
	"go.uber.org/zap"
)

// RedeemDeps groups dependencies required by the web redemption handlers.
type RedeemDeps struct {
	Logger    *zap.Logger
	Links     service.LinkService
	Publisher *service.RedeemPublisher
}

// RedeemHandler serves the web redemption flow: the join page shown
// inside the chat client's web app, and the JSON endpoint that exchanges
// a token for the real destination.
type RedeemHandler struct {
	logger    *zap.Logger
	links     service.LinkService
	publisher *service.RedeemPublisher
}

// NewRedeemHandler creates a redemption handler with the provided dependencies.
func NewRedeemHandler(deps RedeemDeps) *RedeemHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedeemHandler{
		logger:    logger,
		links:     deps.Links,
		publisher: deps.Publisher,
	}
}

// Register wires redemption routes onto the provided router.
func (h *RedeemHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/join", h.JoinPage)
	router.Get("/redeem", h.Redeem)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedeemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "gatelink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// JoinPage renders the web-app page whose script performs the actual
// redemption. Serving the page is not a redemption; no click is counted
// until the script calls /redeem.
func (h *RedeemHandler) JoinPage(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing token",
		})
	}

	html, err := view.RenderJoinPage(view.JoinPageData{
		Title: "Join the group",
		Token: token,
	})
	if err != nil {
		h.logger.Error("failed to render join page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to render page",
		})
	}

	return c.
		Type("html", "utf-8").
		SendString(html)
}

// Redeem handles GET /redeem?token=<token>. Revoked and unknown tokens
// answer the same 404; the click counter moves exactly once per success.
func (h *RedeemHandler) Redeem(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing token",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := h.links.Redeem(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			infraprometheus.RedemptionMisses.Inc()
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("redemption failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	infraprometheus.RedemptionsTotal.Inc()
	if h.publisher != nil {
		go h.publishRedeemEvent(token, c.IP(), c.Get("User-Agent"))
	}

	return c.JSON(fiber.Map{
		"url": target,
	})
}

func (h *RedeemHandler) publishRedeemEvent(token, ip, userAgent string) {
	if err := h.publisher.Publish(token, ip, userAgent); err != nil {
		h.logger.Error("failed to publish redemption event", zap.Error(err), zap.String("token", token))
	}
}

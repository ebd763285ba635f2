package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/vkuzn/gatelink/internal/bot"
	"github.com/vkuzn/gatelink/internal/telegram"
	"go.uber.org/zap"
)

// WebhookDeps groups dependencies for the chat webhook front door.
type WebhookDeps struct {
	Logger *zap.Logger
	Router *bot.Router
	// Token is the bot token doubling as the webhook path secret.
	Token string
}

// WebhookHandler receives Bot API updates and hands them to the command
// router. Updates are processed off the request goroutine so the webhook
// always acknowledges quickly.
type WebhookHandler struct {
	logger *zap.Logger
	router *bot.Router
	token  string
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(deps WebhookDeps) *WebhookHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		logger: logger,
		router: deps.Router,
		token:  deps.Token,
	}
}

// Register wires the webhook route onto the provided router.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/webhook/:token", h.Receive)
}

// Receive handles POST /webhook/:token.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	provided := c.Params("token")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) != 1 {
		return c.SendStatus(fiber.StatusForbidden)
	}

	var update telegram.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		h.logger.Warn("malformed webhook update", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	go h.router.HandleUpdate(context.Background(), update)

	return c.SendStatus(fiber.StatusOK)
}

package handler

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkuzn/gatelink/internal/bot"
)

func newWebhookApp(token string) *fiber.App {
	app := fiber.New()
	NewWebhookHandler(WebhookDeps{
		Router: bot.NewRouter(bot.Dependencies{}),
		Token:  token,
	}).Register(app)
	return app
}

func postUpdate(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestWebhookRejectsWrongPathSecret(t *testing.T) {
	app := newWebhookApp("REAL-TOKEN")

	assert.Equal(t, fiber.StatusForbidden, postUpdate(t, app, "/webhook/WRONG-TOKEN", `{"update_id":1}`))
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	app := newWebhookApp("REAL-TOKEN")

	assert.Equal(t, fiber.StatusBadRequest, postUpdate(t, app, "/webhook/REAL-TOKEN", `{not json`))
}

func TestWebhookAcknowledgesValidUpdate(t *testing.T) {
	app := newWebhookApp("REAL-TOKEN")

	assert.Equal(t, fiber.StatusOK, postUpdate(t, app, "/webhook/REAL-TOKEN", `{"update_id":1}`))
}

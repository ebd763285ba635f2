package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	clientTimeout  = 15 * time.Second
)

// Client is a minimal Bot API client covering what the engine's
// collaborators need: messaging, membership queries, and invite links.
// It implements service.MembershipClient and service.DeliverySender.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient builds a Bot API client for the given bot token.
func NewClient(token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		logger:     logger,
	}
}

// WithBaseURL overrides the API endpoint; tests point it at a local server.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call posts params as JSON to a Bot API method and unmarshals the result.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: %s failed (%d): %s", method, apiResp.ErrorCode, apiResp.Description)
	}

	if out != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("telegram: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe fetches the bot's own account, used for building deep links.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// SetWebhook points the Bot API at the given update endpoint.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	return c.call(ctx, "setWebhook", map[string]string{"url": url}, nil)
}

// SendMessage sends text to a chat with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// AnswerCallbackQuery acknowledges an inline-button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// memberStatuses are the chat-member states that count as membership in
// good standing. "restricted" and "left"/"kicked" do not pass the gate.
var memberStatuses = map[string]bool{
	"creator":       true,
	"administrator": true,
	"member":        true,
}

// IsMember queries the external source of truth for (channel, user)
// membership. Channel ids are passed through as configured ("@name" or a
// raw "-100..." id).
func (c *Client) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	var member ChatMember
	params := map[string]any{
		"chat_id": channelID,
		"user_id": userID,
	}
	if err := c.call(ctx, "getChatMember", params, &member); err != nil {
		return false, err
	}
	return memberStatuses[member.Status], nil
}

// CreateInviteLink asks the channel for a fresh invite link. Fails when
// the bot lacks admin rights there.
func (c *Client) CreateInviteLink(ctx context.Context, channelID string) (string, error) {
	var link ChatInviteLink
	params := map[string]any{"chat_id": channelID}
	if err := c.call(ctx, "createChatInviteLink", params, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// Send delivers one broadcast payload to one recipient.
func (c *Client) Send(ctx context.Context, userID int64, message string) error {
	return c.SendMessage(ctx, userID, message, nil)
}

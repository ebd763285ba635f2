package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
	"github.com/vkuzn/gatelink/internal/app/service"
	"github.com/vkuzn/gatelink/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
	markup *telegram.InlineKeyboardMarkup
}

// recordingAPI captures outgoing traffic instead of talking to the Bot API.
type recordingAPI struct {
	messages []sentMessage
	answers  []string
}

func (r *recordingAPI) SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	r.messages = append(r.messages, sentMessage{chatID: chatID, text: text, markup: markup})
	return nil
}

func (r *recordingAPI) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	r.answers = append(r.answers, text)
	return nil
}

func (r *recordingAPI) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, r.messages, "expected a reply")
	return r.messages[len(r.messages)-1]
}

type fakeLinkService struct {
	createFunc func(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error)
	listFunc   func(ctx context.Context, ownerID int64, limit int) ([]model.Link, error)
	redeemFunc func(ctx context.Context, token string) (string, error)
	peekFunc   func(ctx context.Context, token string) (*model.Link, error)
	revokeFunc func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error)
}

func (f *fakeLinkService) CreateLink(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error) {
	return f.createFunc(ctx, ownerID, targetURI)
}

func (f *fakeLinkService) ListLinks(ctx context.Context, ownerID int64, limit int) ([]model.Link, error) {
	return f.listFunc(ctx, ownerID, limit)
}

func (f *fakeLinkService) Redeem(ctx context.Context, token string) (string, error) {
	return f.redeemFunc(ctx, token)
}

func (f *fakeLinkService) Peek(ctx context.Context, token string) (*model.Link, error) {
	return f.peekFunc(ctx, token)
}

func (f *fakeLinkService) RevokeAsOwner(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
	return f.revokeFunc(ctx, ownerID, identifier)
}

type nopUserRepository struct{}

func (nopUserRepository) Upsert(ctx context.Context, user *model.User) error { return nil }
func (nopUserRepository) Count(ctx context.Context) (int64, error)           { return 0, nil }
func (nopUserRepository) EachUser(ctx context.Context, fn func(user model.User) error) error {
	return nil
}

type memberClient struct {
	member bool
}

func (m memberClient) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	return m.member, nil
}

func (m memberClient) CreateInviteLink(ctx context.Context, channelID string) (string, error) {
	return "https://t.me/+InviteHash", nil
}

type staticChannelRepository struct {
	channels []model.RequiredChannel
}

func (s *staticChannelRepository) Add(ctx context.Context, channel *model.RequiredChannel) error {
	s.channels = append(s.channels, *channel)
	return nil
}

func (s *staticChannelRepository) Remove(ctx context.Context, id string) error { return nil }

func (s *staticChannelRepository) List(ctx context.Context) ([]model.RequiredChannel, error) {
	return s.channels, nil
}

func (s *staticChannelRepository) SetInviteLink(ctx context.Context, id, inviteLink string, resolvedAt time.Time) error {
	return nil
}

type routerFixture struct {
	api      *recordingAPI
	links    *fakeLinkService
	channels *staticChannelRepository
	router   *Router
}

func newRouterFixture(t *testing.T, member bool, adminIDs ...int64) *routerFixture {
	t.Helper()
	api := &recordingAPI{}
	links := &fakeLinkService{}
	channels := &staticChannelRepository{}
	gate := service.NewMembershipGate(channels, memberClient{member: member}, nil, nil)
	broadcasts := service.NewBroadcastService(nopUserRepository{}, nopBroadcastRepository{}, nopSender{}, []byte("unit-test-secret"), nil, service.WithSendDelay(0))

	router := NewRouter(Dependencies{
		API:        api,
		Links:      links,
		Gate:       gate,
		Broadcasts: broadcasts,
		Users:      nopUserRepository{},
		Channels:   channels,
		Config: Config{
			BotUsername:   "gatelink_bot",
			PublicBaseURL: "https://links.example.com",
			AdminIDs:      adminIDs,
		},
	})
	return &routerFixture{api: api, links: links, channels: channels, router: router}
}

type nopBroadcastRepository struct{}

func (nopBroadcastRepository) Create(ctx context.Context, record *model.BroadcastRecord) error {
	return nil
}
func (nopBroadcastRepository) Count(ctx context.Context) (int64, error) { return 0, nil }

type nopSender struct{}

func (nopSender) Send(ctx context.Context, userID int64, message string) error { return nil }

func messageFrom(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: userID, FirstName: "Test"},
		Chat: telegram.Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in          string
		wantCommand string
		wantArgs    string
	}{
		{"/start", "/start", ""},
		{"/start abc123", "/start", "abc123"},
		{"/protect@gatelink_bot https://t.me/group", "/protect", "https://t.me/group"},
		{"/broadcast line one\nline two", "/broadcast", "line one\nline two"},
		{"plain text", "", "plain text"},
		{"  /revoke  ABCD1234 ", "/revoke", "ABCD1234"},
	}

	for _, tt := range tests {
		command, args := splitCommand(tt.in)
		assert.Equal(t, tt.wantCommand, command, "input %q", tt.in)
		assert.Equal(t, tt.wantArgs, args, "input %q", tt.in)
	}
}

func TestProtectRepliesWithDeepLink(t *testing.T) {
	fx := newRouterFixture(t, true)
	fx.links.createFunc = func(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error) {
		assert.Equal(t, int64(7), ownerID)
		assert.Equal(t, "https://t.me/mygroup", targetURI)
		return &model.Link{Token: "tok123", ShortID: "TOK123AB", TargetURI: targetURI, OwnerID: ownerID, Active: true}, nil
	}

	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/protect https://t.me/mygroup"))

	reply := fx.api.last(t)
	assert.Contains(t, reply.text, "https://t.me/gatelink_bot?start=tok123")
	assert.Contains(t, reply.text, "TOK123AB")
}

func TestProtectRejectsInvalidTarget(t *testing.T) {
	fx := newRouterFixture(t, true)
	fx.links.createFunc = func(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error) {
		return nil, service.ErrInvalidDestination
	}

	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/protect https://evil.example/x"))

	assert.Contains(t, fx.api.last(t).text, "valid group link")
}

func TestStartDeepLinkOffersWebAppButton(t *testing.T) {
	fx := newRouterFixture(t, true)
	fx.links.peekFunc = func(ctx context.Context, token string) (*model.Link, error) {
		assert.Equal(t, "tok123", token)
		return &model.Link{Token: token, Active: true}, nil
	}

	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/start tok123"))

	reply := fx.api.last(t)
	require.NotNil(t, reply.markup)
	require.Len(t, reply.markup.InlineKeyboard, 1)
	button := reply.markup.InlineKeyboard[0][0]
	require.NotNil(t, button.WebApp)
	assert.Equal(t, "https://links.example.com/join?token=tok123", button.WebApp.URL)
}

func TestStartDeepLinkHidesUnknownAndRevokedAlike(t *testing.T) {
	fx := newRouterFixture(t, true)
	fx.links.peekFunc = func(ctx context.Context, token string) (*model.Link, error) {
		return nil, repository.ErrLinkNotFound
	}

	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/start whatever"))

	assert.Equal(t, genericLinkFailure, fx.api.last(t).text)
}

func TestStartDeepLinkGatedUserGetsChannelPrompt(t *testing.T) {
	fx := newRouterFixture(t, false)
	fx.channels.channels = []model.RequiredChannel{{ID: "@alpha", Title: "Alpha"}}
	fx.links.peekFunc = func(ctx context.Context, token string) (*model.Link, error) {
		t.Fatal("a gated-out user must not reach link resolution")
		return nil, nil
	}

	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/start tok123"))

	reply := fx.api.last(t)
	assert.Contains(t, reply.text, "join the required channels")
	require.NotNil(t, reply.markup)
	// One row per channel plus the retry row.
	require.Len(t, reply.markup.InlineKeyboard, 2)
	assert.Contains(t, reply.markup.InlineKeyboard[0][0].Text, "Alpha")
	assert.Contains(t, reply.markup.InlineKeyboard[1][0].URL, "start=tok123")
}

func TestRevokeOutcomes(t *testing.T) {
	fx := newRouterFixture(t, true)

	fx.links.revokeFunc = func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
		return &model.Link{ShortID: "TOK123AB"}, nil
	}
	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/revoke TOK123AB"))
	assert.Contains(t, fx.api.last(t).text, "revoked")

	fx.links.revokeFunc = func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
		return nil, repository.ErrLinkRevoked
	}
	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/revoke TOK123AB"))
	assert.Contains(t, fx.api.last(t).text, "already revoked")

	// Unknown and not-owned collapse to the same generic failure.
	fx.links.revokeFunc = func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
		return nil, repository.ErrLinkNotFound
	}
	fx.router.HandleUpdate(context.Background(), messageFrom(7, "/revoke SOMEONEELSES"))
	assert.Equal(t, genericLinkFailure, fx.api.last(t).text)
}

func TestAdminCommandsRejectNonAdmins(t *testing.T) {
	fx := newRouterFixture(t, true, 1)

	for _, cmd := range []string{"/broadcast hello", "/addchannel @alpha", "/removechannel @alpha", "/channels", "/stats"} {
		fx.router.HandleUpdate(context.Background(), messageFrom(7, cmd))
		assert.Contains(t, fx.api.last(t).text, "admins only", "command %q", cmd)
	}
	assert.Empty(t, fx.channels.channels, "non-admin must not mutate the gate")
}

func TestBroadcastProposalOffersConfirmButtons(t *testing.T) {
	fx := newRouterFixture(t, true, 1)

	fx.router.HandleUpdate(context.Background(), messageFrom(1, "/broadcast hello everyone"))

	reply := fx.api.last(t)
	assert.Contains(t, reply.text, "hello everyone")
	require.NotNil(t, reply.markup)
	require.Len(t, reply.markup.InlineKeyboard, 1)
	row := reply.markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.True(t, strings.HasPrefix(row[0].CallbackData, callbackConfirmPrefix))
	assert.Equal(t, callbackCancel, row[1].CallbackData)
}

func TestCallbackFromNonAdminIsRefused(t *testing.T) {
	fx := newRouterFixture(t, true, 1)

	fx.router.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 7},
		Data: callbackConfirmPrefix + "whatever",
	}})

	require.NotEmpty(t, fx.api.answers)
	assert.Equal(t, "Not allowed.", fx.api.answers[len(fx.api.answers)-1])
}

func TestCancelCallbackDiscardsProposal(t *testing.T) {
	fx := newRouterFixture(t, true, 1)

	fx.router.HandleUpdate(context.Background(), messageFrom(1, "/broadcast hello"))
	fx.router.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 1},
		Data: callbackCancel,
	}})

	require.NotEmpty(t, fx.api.answers)
	assert.Equal(t, "Broadcast cancelled.", fx.api.answers[len(fx.api.answers)-1])

	// With nothing pending a confirm is refused.
	fx.router.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb2",
		From: telegram.User{ID: 1},
		Data: callbackConfirmPrefix + "stale",
	}})
	assert.Equal(t, "Confirmation expired or invalid.", fx.api.answers[len(fx.api.answers)-1])
}

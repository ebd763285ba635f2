package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
	"github.com/vkuzn/gatelink/internal/app/service"
	"github.com/vkuzn/gatelink/internal/telegram"
	"go.uber.org/zap"
)

// API is the slice of the chat transport the router talks back through.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Config carries the static identity the router needs to build links and
// authorize admin commands.
type Config struct {
	BotUsername   string
	PublicBaseURL string
	AdminIDs      []int64
}

// Dependencies bundles everything the router dispatches into.
type Dependencies struct {
	Logger     *zap.Logger
	API        API
	Links      service.LinkService
	Gate       *service.MembershipGate
	Broadcasts *service.BroadcastService
	Users      repository.UserRepository
	Channels   repository.ChannelRepository
	Stats      *service.StatsService
	Config     Config
}

// Router maps the closed set of chat commands onto engine calls. Transport
// parsing stays here; no engine code ever sees a command string.
type Router struct {
	logger     *zap.Logger
	api        API
	links      service.LinkService
	gate       *service.MembershipGate
	broadcasts *service.BroadcastService
	users      repository.UserRepository
	channels   repository.ChannelRepository
	stats      *service.StatsService
	cfg        Config
	admins     map[int64]bool
}

// NewRouter builds the command router.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[int64]bool, len(deps.Config.AdminIDs))
	for _, id := range deps.Config.AdminIDs {
		admins[id] = true
	}
	return &Router{
		logger:     logger,
		api:        deps.API,
		links:      deps.Links,
		gate:       deps.Gate,
		broadcasts: deps.Broadcasts,
		users:      deps.Users,
		channels:   deps.Channels,
		stats:      deps.Stats,
		cfg:        deps.Config,
		admins:     admins,
	}
}

// genericLinkFailure is the one message shown for unknown, revoked, and
// not-owned links alike, so none of those states can be told apart.
const genericLinkFailure = "Sorry, this link is invalid or has expired."

// HandleUpdate processes one webhook update. Every interaction upserts the
// user registry before dispatch.
func (r *Router) HandleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.touchUser(ctx, update.CallbackQuery.From)
		r.handleCallback(ctx, *update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		r.touchUser(ctx, *update.Message.From)
		r.handleMessage(ctx, *update.Message)
	}
}

func (r *Router) touchUser(ctx context.Context, from telegram.User) {
	if from.IsBot {
		return
	}
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	err := r.users.Upsert(ctx, &model.User{
		ID:           from.ID,
		DisplayName:  name,
		Username:     from.Username,
		LastActiveAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn("user upsert failed", zap.Int64("user", from.ID), zap.Error(err))
	}
}

func (r *Router) handleMessage(ctx context.Context, msg telegram.Message) {
	command, args := splitCommand(msg.Text)

	switch command {
	case "/start":
		r.handleStart(ctx, msg, args)
	case "/protect":
		r.handleProtect(ctx, msg, args)
	case "/mylinks":
		r.handleMyLinks(ctx, msg)
	case "/revoke":
		r.handleRevoke(ctx, msg, args)
	case "/addchannel":
		r.handleAddChannel(ctx, msg, args)
	case "/removechannel":
		r.handleRemoveChannel(ctx, msg, args)
	case "/channels":
		r.handleChannels(ctx, msg)
	case "/broadcast":
		r.handleBroadcast(ctx, msg, args)
	case "/stats":
		r.handleStats(ctx, msg)
	default:
		// Unrecognized input gets the welcome text rather than silence.
		r.reply(ctx, msg.Chat.ID, welcomeText, nil)
	}
}

const welcomeText = "Welcome! I create protected links for private groups.\n\n" +
	"Use /protect <group link> to create one, /mylinks to list yours, " +
	"and /revoke <id> to disable one."

// handleStart covers both the plain /start and the deep-link redemption
// preview (/start <token>). The preview never counts a click; the click
// happens once on the web redemption endpoint.
func (r *Router) handleStart(ctx context.Context, msg telegram.Message, args string) {
	token := strings.TrimSpace(args)
	if token == "" {
		r.reply(ctx, msg.Chat.ID, welcomeText, nil)
		return
	}

	if msg.From != nil && !r.gate.Passes(ctx, msg.From.ID) {
		r.promptRequiredChannels(ctx, msg.Chat.ID, token)
		return
	}

	if _, err := r.links.Peek(ctx, token); err != nil {
		if !errors.Is(err, repository.ErrLinkNotFound) {
			r.logger.Error("link preview failed", zap.Error(err))
		}
		r.reply(ctx, msg.Chat.ID, genericLinkFailure, nil)
		return
	}

	joinURL := fmt.Sprintf("%s/join?token=%s", r.cfg.PublicBaseURL, token)
	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Join Group", WebApp: &telegram.WebAppInfo{URL: joinURL}},
		}},
	}
	r.reply(ctx, msg.Chat.ID, "Click the button below to join the group.", markup)
}

// promptRequiredChannels tells a gated-out user what to join, with one
// URL button per required channel.
func (r *Router) promptRequiredChannels(ctx context.Context, chatID int64, token string) {
	invites, err := r.gate.InviteLinks(ctx)
	if err != nil {
		r.logger.Error("resolving invite links failed", zap.Error(err))
		r.reply(ctx, chatID, "Please join the required channels first, then try the link again.", nil)
		return
	}

	rows := make([][]telegram.InlineKeyboardButton, 0, len(invites)+1)
	for _, inv := range invites {
		label := inv.Channel.Title
		if label == "" {
			label = inv.Channel.ID
		}
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "Join " + label, URL: inv.InviteLink},
		})
	}
	deepLink := fmt.Sprintf("https://t.me/%s?start=%s", r.cfg.BotUsername, token)
	rows = append(rows, []telegram.InlineKeyboardButton{
		{Text: "I joined, check again", URL: deepLink},
	})

	r.reply(ctx, chatID, "You need to join the required channels before using this link.",
		&telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (r *Router) handleProtect(ctx context.Context, msg telegram.Message, args string) {
	if msg.From == nil {
		return
	}
	target := strings.TrimSpace(args)
	if target == "" {
		r.reply(ctx, msg.Chat.ID, "Usage: /protect https://t.me/yourgroupname", nil)
		return
	}

	link, err := r.links.CreateLink(ctx, msg.From.ID, target)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDestination) {
			r.reply(ctx, msg.Chat.ID, "Please provide a valid group link.\nUsage: /protect https://t.me/yourgroupname", nil)
			return
		}
		r.logger.Error("link creation failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Something went wrong creating the link, please try again.", nil)
		return
	}

	protected := fmt.Sprintf("https://t.me/%s?start=%s", r.cfg.BotUsername, link.Token)
	r.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Protected link generated (id %s).\n\nShare this link:\n%s", link.ShortID, protected), nil)
}

func (r *Router) handleMyLinks(ctx context.Context, msg telegram.Message) {
	if msg.From == nil {
		return
	}
	links, err := r.links.ListLinks(ctx, msg.From.ID, 20)
	if err != nil {
		r.logger.Error("listing links failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not load your links, please try again.", nil)
		return
	}
	if len(links) == 0 {
		r.reply(ctx, msg.Chat.ID, "You have no active protected links. Create one with /protect.", nil)
		return
	}

	var b strings.Builder
	b.WriteString("Your active protected links:\n")
	for _, l := range links {
		fmt.Fprintf(&b, "\n%s  ->  %s\nclicks: %d, created %s\n",
			l.ShortID, l.TargetURI, l.Clicks, l.CreatedAt.Format("2006-01-02"))
	}
	b.WriteString("\nRevoke one with /revoke <id>.")
	r.reply(ctx, msg.Chat.ID, b.String(), nil)
}

func (r *Router) handleRevoke(ctx context.Context, msg telegram.Message, args string) {
	if msg.From == nil {
		return
	}
	identifier := strings.TrimSpace(args)
	if identifier == "" {
		r.reply(ctx, msg.Chat.ID, "Usage: /revoke <short id or token>", nil)
		return
	}

	link, err := r.links.RevokeAsOwner(ctx, msg.From.ID, identifier)
	switch {
	case err == nil:
		r.reply(ctx, msg.Chat.ID, fmt.Sprintf("Link %s revoked. It can no longer be redeemed.", link.ShortID), nil)
	case errors.Is(err, repository.ErrLinkRevoked):
		r.reply(ctx, msg.Chat.ID, "That link is already revoked.", nil)
	case errors.Is(err, repository.ErrLinkNotFound):
		r.reply(ctx, msg.Chat.ID, genericLinkFailure, nil)
	default:
		r.logger.Error("revoke failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Something went wrong, please try again.", nil)
	}
}

func (r *Router) handleAddChannel(ctx context.Context, msg telegram.Message, args string) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.reply(ctx, msg.Chat.ID, "Usage: /addchannel <@channel or -100...id> [private]", nil)
		return
	}

	id := fields[0]
	private := len(fields) > 1 && strings.EqualFold(fields[1], "private")
	channel := &model.RequiredChannel{
		ID:       id,
		IsPublic: !private && strings.HasPrefix(id, "@"),
		AddedBy:  msg.From.ID,
	}
	if err := r.channels.Add(ctx, channel); err != nil {
		r.logger.Error("adding required channel failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not add the channel, please try again.", nil)
		return
	}
	r.reply(ctx, msg.Chat.ID, fmt.Sprintf("Channel %s added to the membership gate.", id), nil)
}

func (r *Router) handleRemoveChannel(ctx context.Context, msg telegram.Message, args string) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	id := strings.TrimSpace(args)
	if id == "" {
		r.reply(ctx, msg.Chat.ID, "Usage: /removechannel <@channel or -100...id>", nil)
		return
	}

	err := r.channels.Remove(ctx, id)
	switch {
	case err == nil:
		r.reply(ctx, msg.Chat.ID, fmt.Sprintf("Channel %s removed from the membership gate.", id), nil)
	case errors.Is(err, repository.ErrChannelNotFound):
		r.reply(ctx, msg.Chat.ID, "That channel is not configured.", nil)
	default:
		r.logger.Error("removing required channel failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not remove the channel, please try again.", nil)
	}
}

func (r *Router) handleChannels(ctx context.Context, msg telegram.Message) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	channels, err := r.channels.List(ctx)
	if err != nil {
		r.logger.Error("listing required channels failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not load the channel list.", nil)
		return
	}
	if len(channels) == 0 {
		r.reply(ctx, msg.Chat.ID, "No required channels configured; the gate passes everyone.", nil)
		return
	}

	var b strings.Builder
	b.WriteString("Required channels:\n")
	for _, ch := range channels {
		visibility := "private"
		if ch.IsPublic {
			visibility = "public"
		}
		fmt.Fprintf(&b, "\n%s (%s), added %s", ch.ID, visibility, ch.AddedAt.Format("2006-01-02"))
	}
	r.reply(ctx, msg.Chat.ID, b.String(), nil)
}

const (
	callbackConfirmPrefix = "bcast:confirm:"
	callbackCancel        = "bcast:cancel"
)

func (r *Router) handleBroadcast(ctx context.Context, msg telegram.Message, args string) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	payload := strings.TrimSpace(args)
	if payload == "" {
		r.reply(ctx, msg.Chat.ID, "Usage: /broadcast <message>", nil)
		return
	}

	proposal, err := r.broadcasts.Propose(ctx, msg.From.ID, payload)
	if err != nil {
		if errors.Is(err, service.ErrBroadcastInFlight) {
			r.reply(ctx, msg.Chat.ID, "You already have a broadcast waiting for confirmation.", nil)
			return
		}
		r.logger.Error("broadcast proposal failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not prepare the broadcast, please try again.", nil)
		return
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Send it", CallbackData: callbackConfirmPrefix + proposal.ConfirmToken},
			{Text: "Cancel", CallbackData: callbackCancel},
		}},
	}
	r.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"About to broadcast to %d users:\n\n%s\n\nConfirm?", proposal.Recipients, payload), markup)
}

func (r *Router) handleCallback(ctx context.Context, cb telegram.CallbackQuery) {
	if !r.admins[cb.From.ID] {
		r.answer(ctx, cb.ID, "Not allowed.")
		return
	}

	switch {
	case strings.HasPrefix(cb.Data, callbackConfirmPrefix):
		token := strings.TrimPrefix(cb.Data, callbackConfirmPrefix)
		if _, err := r.broadcasts.Confirm(cb.From.ID, token); err != nil {
			r.logger.Warn("broadcast confirm rejected", zap.Int64("admin", cb.From.ID), zap.Error(err))
			r.answer(ctx, cb.ID, "Confirmation expired or invalid.")
			return
		}
		r.answer(ctx, cb.ID, "Broadcast started.")
	case cb.Data == callbackCancel:
		if err := r.broadcasts.Cancel(cb.From.ID); err != nil {
			r.answer(ctx, cb.ID, "Nothing to cancel.")
			return
		}
		r.answer(ctx, cb.ID, "Broadcast cancelled.")
	default:
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) handleStats(ctx context.Context, msg telegram.Message) {
	if !r.requireAdmin(ctx, msg) {
		return
	}
	st, err := r.stats.Collect(ctx)
	if err != nil {
		r.logger.Error("collecting stats failed", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, "Could not collect statistics.", nil)
		return
	}
	r.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Links: %d (%d active)\nClicks: %d\nUsers: %d\nRedemptions logged: %d\nBroadcasts sent: %d",
		st.TotalLinks, st.ActiveLinks, st.TotalClicks, st.TotalUsers, st.TotalRedemptions, st.BroadcastsSent), nil)
}

func (r *Router) requireAdmin(ctx context.Context, msg telegram.Message) bool {
	if msg.From == nil || !r.admins[msg.From.ID] {
		r.reply(ctx, msg.Chat.ID, "This command is for admins only.", nil)
		return false
	}
	return true
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) {
	if err := r.api.SendMessage(ctx, chatID, text, markup); err != nil {
		r.logger.Warn("sending reply failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.api.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		r.logger.Warn("answering callback failed", zap.Error(err))
	}
}

// splitCommand separates "/cmd@BotName arg arg" into the bare command and
// its raw argument string.
func splitCommand(text string) (command, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command = text
	if idx := strings.IndexAny(text, " \n"); idx >= 0 {
		command = text[:idx]
		args = strings.TrimSpace(text[idx+1:])
	}
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return command, args
}

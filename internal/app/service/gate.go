package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
	infraprometheus "github.com/vkuzn/gatelink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	defaultQueryTimeout = 5 * time.Second
	defaultInviteTTL    = 24 * time.Hour

	inviteCachePrefix = "invite:"
)

// MembershipClient is the external source of truth for channel membership
// and invite links. The chat transport implements it; tests fake it.
type MembershipClient interface {
	IsMember(ctx context.Context, channelID string, userID int64) (bool, error)
	CreateInviteLink(ctx context.Context, channelID string) (string, error)
}

// ChannelInvite pairs a required channel with the invite link a denied
// user should be shown.
type ChannelInvite struct {
	Channel    model.RequiredChannel
	InviteLink string
}

// MembershipGate evaluates the conjunction of required-channel
// memberships. External query failures and timeouts always fail closed:
// the gate denies rather than silently granting.
//
// Channels the client cannot verify (private channels where the bot lacks
// query capability surface as query errors) are likewise denied. The gate
// never grants on a membership answer it did not actually receive.
type MembershipGate struct {
	channels     repository.ChannelRepository
	client       MembershipClient
	cache        *redis.Client
	logger       *zap.Logger
	queryTimeout time.Duration
	inviteTTL    time.Duration
}

// GateOption tweaks gate construction.
type GateOption func(*MembershipGate)

// WithQueryTimeout bounds each external membership query.
func WithQueryTimeout(d time.Duration) GateOption {
	return func(g *MembershipGate) { g.queryTimeout = d }
}

// WithInviteTTL sets the freshness window for cached invite links.
func WithInviteTTL(d time.Duration) GateOption {
	return func(g *MembershipGate) { g.inviteTTL = d }
}

// NewMembershipGate builds a gate. The redis cache is optional; without it
// invite links are cached only on the channel record.
func NewMembershipGate(channels repository.ChannelRepository, client MembershipClient, cache *redis.Client, logger *zap.Logger, opts ...GateOption) *MembershipGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &MembershipGate{
		channels:     channels,
		client:       client,
		cache:        cache,
		logger:       logger,
		queryTimeout: defaultQueryTimeout,
		inviteTTL:    defaultInviteTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Passes reports whether the user is a member of every required channel.
// An empty channel set passes immediately: the gate is optional
// infrastructure. The answer is always a deterministic yes/no; failures
// are logged here, never surfaced.
func (g *MembershipGate) Passes(ctx context.Context, userID int64) bool {
	ok := g.passes(ctx, userID)
	if !ok {
		infraprometheus.GateDenialsTotal.Inc()
	}
	return ok
}

func (g *MembershipGate) passes(ctx context.Context, userID int64) bool {
	channels, err := g.channels.List(ctx)
	if err != nil {
		g.logger.Error("gate: listing required channels failed", zap.Error(err))
		return false
	}
	if len(channels) == 0 {
		return true
	}

	for _, ch := range channels {
		queryCtx, cancel := context.WithTimeout(ctx, g.queryTimeout)
		member, err := g.client.IsMember(queryCtx, ch.ID, userID)
		cancel()

		if err != nil {
			g.logger.Warn("gate: membership query failed, denying",
				zap.String("channel", ch.ID),
				zap.Int64("user", userID),
				zap.Bool("public", ch.IsPublic),
				zap.Error(err))
			return false
		}
		if !member {
			return false
		}
	}
	return true
}

// InviteLinks resolves a join link for every required channel so a denied
// user can be told what to join. Resolution failures degrade to a URL
// constructed from the raw identifier.
func (g *MembershipGate) InviteLinks(ctx context.Context) ([]ChannelInvite, error) {
	channels, err := g.channels.List(ctx)
	if err != nil {
		return nil, err
	}

	invites := make([]ChannelInvite, 0, len(channels))
	for _, ch := range channels {
		invites = append(invites, ChannelInvite{
			Channel:    ch,
			InviteLink: g.resolveInvite(ctx, ch),
		})
	}
	return invites, nil
}

// resolveInvite returns a usable join link for the channel, freshest
// source first: the channel record within its freshness window, then the
// redis cache, then a newly generated link, then the constructed fallback.
func (g *MembershipGate) resolveInvite(ctx context.Context, ch model.RequiredChannel) string {
	if ch.InviteLink != nil && ch.InviteLinkAt != nil && time.Since(*ch.InviteLinkAt) < g.inviteTTL {
		return *ch.InviteLink
	}

	if g.cache != nil {
		cached, err := g.cache.Get(ctx, inviteCachePrefix+ch.ID).Result()
		if err == nil && cached != "" {
			return cached
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			g.logger.Warn("gate: invite cache read failed", zap.String("channel", ch.ID), zap.Error(err))
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	link, err := g.client.CreateInviteLink(queryCtx, ch.ID)
	cancel()
	if err != nil || link == "" {
		if err != nil {
			g.logger.Warn("gate: invite link generation failed, using fallback",
				zap.String("channel", ch.ID), zap.Error(err))
		}
		return fallbackInviteURL(ch.ID)
	}

	now := time.Now()
	if err := g.channels.SetInviteLink(ctx, ch.ID, link, now); err != nil {
		g.logger.Warn("gate: persisting invite link failed", zap.String("channel", ch.ID), zap.Error(err))
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, inviteCachePrefix+ch.ID, link, g.inviteTTL).Err(); err != nil {
			g.logger.Warn("gate: invite cache write failed", zap.String("channel", ch.ID), zap.Error(err))
		}
	}
	return link
}

// fallbackInviteURL builds a best-effort join URL from a raw channel
// identifier such as "@somechannel" or "somechannel".
func fallbackInviteURL(id string) string {
	return destinationPrefix + strings.TrimPrefix(id, "@")
}

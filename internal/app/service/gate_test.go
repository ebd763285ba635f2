package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkuzn/gatelink/internal/app/model"
)

type fakeChannelRepository struct {
	channels  []model.RequiredChannel
	listErr   error
	persisted map[string]string
}

func (f *fakeChannelRepository) Add(ctx context.Context, channel *model.RequiredChannel) error {
	f.channels = append(f.channels, *channel)
	return nil
}

func (f *fakeChannelRepository) Remove(ctx context.Context, id string) error { return nil }

func (f *fakeChannelRepository) List(ctx context.Context) ([]model.RequiredChannel, error) {
	return f.channels, f.listErr
}

func (f *fakeChannelRepository) SetInviteLink(ctx context.Context, id, inviteLink string, resolvedAt time.Time) error {
	if f.persisted == nil {
		f.persisted = make(map[string]string)
	}
	f.persisted[id] = inviteLink
	return nil
}

type fakeMembershipClient struct {
	members map[string]bool
	errFor  map[string]error
	queries []string

	inviteLinks map[string]string
	inviteErr   error
}

func (f *fakeMembershipClient) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	f.queries = append(f.queries, channelID)
	if err, ok := f.errFor[channelID]; ok {
		return false, err
	}
	return f.members[channelID], nil
}

func (f *fakeMembershipClient) CreateInviteLink(ctx context.Context, channelID string) (string, error) {
	if f.inviteErr != nil {
		return "", f.inviteErr
	}
	return f.inviteLinks[channelID], nil
}

func requiredChannels(ids ...string) []model.RequiredChannel {
	out := make([]model.RequiredChannel, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RequiredChannel{ID: id, Title: id})
	}
	return out
}

func TestGatePassesWithNoRequiredChannels(t *testing.T) {
	gate := NewMembershipGate(&fakeChannelRepository{}, &fakeMembershipClient{}, nil, nil)

	assert.True(t, gate.Passes(context.Background(), 42))
}

func TestGateRequiresEveryChannel(t *testing.T) {
	repo := &fakeChannelRepository{channels: requiredChannels("@alpha", "@beta")}
	client := &fakeMembershipClient{members: map[string]bool{"@alpha": true, "@beta": true}}
	gate := NewMembershipGate(repo, client, nil, nil)

	assert.True(t, gate.Passes(context.Background(), 42))

	client.members["@beta"] = false
	assert.False(t, gate.Passes(context.Background(), 42),
		"membership is a conjunction; one missing channel denies")
}

func TestGateDeniesOnQueryError(t *testing.T) {
	repo := &fakeChannelRepository{channels: requiredChannels("@alpha")}
	client := &fakeMembershipClient{
		members: map[string]bool{"@alpha": true},
		errFor:  map[string]error{"@alpha": errors.New("chat not found")},
	}
	gate := NewMembershipGate(repo, client, nil, nil)

	assert.False(t, gate.Passes(context.Background(), 42),
		"an unverifiable channel must deny, never silently grant")
}

func TestGateDeniesWhenChannelListUnavailable(t *testing.T) {
	repo := &fakeChannelRepository{listErr: errors.New("db down")}
	gate := NewMembershipGate(repo, &fakeMembershipClient{}, nil, nil)

	assert.False(t, gate.Passes(context.Background(), 42))
}

func TestGateShortCircuitsAfterFirstDenial(t *testing.T) {
	repo := &fakeChannelRepository{channels: requiredChannels("@alpha", "@beta", "@gamma")}
	client := &fakeMembershipClient{members: map[string]bool{"@alpha": false}}
	gate := NewMembershipGate(repo, client, nil, nil)

	assert.False(t, gate.Passes(context.Background(), 42))
	assert.Equal(t, []string{"@alpha"}, client.queries,
		"no further channels should be queried after the first denial")
}

func TestInviteLinksPrefersFreshRecord(t *testing.T) {
	link := "https://t.me/+FreshHash"
	now := time.Now()
	repo := &fakeChannelRepository{channels: []model.RequiredChannel{
		{ID: "@alpha", Title: "Alpha", InviteLink: &link, InviteLinkAt: &now},
	}}
	client := &fakeMembershipClient{inviteErr: errors.New("must not be called")}
	gate := NewMembershipGate(repo, client, nil, nil)

	invites, err := gate.InviteLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, link, invites[0].InviteLink)
}

func TestInviteLinksGeneratesAndPersists(t *testing.T) {
	repo := &fakeChannelRepository{channels: requiredChannels("@alpha")}
	client := &fakeMembershipClient{inviteLinks: map[string]string{"@alpha": "https://t.me/+MadeHash"}}
	gate := NewMembershipGate(repo, client, nil, nil)

	invites, err := gate.InviteLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "https://t.me/+MadeHash", invites[0].InviteLink)
	assert.Equal(t, "https://t.me/+MadeHash", repo.persisted["@alpha"])
}

func TestInviteLinksFallBackToConstructedURL(t *testing.T) {
	repo := &fakeChannelRepository{channels: requiredChannels("@alpha")}
	client := &fakeMembershipClient{inviteErr: errors.New("bot lacks invite rights")}
	gate := NewMembershipGate(repo, client, nil, nil)

	invites, err := gate.InviteLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "https://t.me/alpha", invites[0].InviteLink)
}

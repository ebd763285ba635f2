package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vkuzn/gatelink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrChannelNotFound signals that the requested required channel is not configured.
var ErrChannelNotFound = errors.New("required channel not found")

// ChannelRepository manages the set of required channels that make up the
// membership gate.
type ChannelRepository interface {
	Add(ctx context.Context, channel *model.RequiredChannel) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.RequiredChannel, error)
	SetInviteLink(ctx context.Context, id, inviteLink string, resolvedAt time.Time) error
}

type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository returns a GORM-backed ChannelRepository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Add(ctx context.Context, channel *model.RequiredChannel) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "is_public", "added_by"}),
		}).
		Create(channel).Error
}

func (r *channelRepository) Remove(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.RequiredChannel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (r *channelRepository) List(ctx context.Context) ([]model.RequiredChannel, error) {
	var channels []model.RequiredChannel
	if err := r.db.WithContext(ctx).
		Order("added_at").
		Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *channelRepository) SetInviteLink(ctx context.Context, id, inviteLink string, resolvedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.RequiredChannel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"invite_link":    inviteLink,
			"invite_link_at": resolvedAt,
		}).Error
}

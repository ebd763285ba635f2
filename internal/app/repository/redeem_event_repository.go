package repository

import (
	"context"

	"github.com/vkuzn/gatelink/internal/app/model"
	"gorm.io/gorm"
)

// RedeemEventRepository stores redemption audit events drained from the
// JetStream pipeline.
type RedeemEventRepository interface {
	Create(ctx context.Context, event *model.RedeemEvent) error
	Count(ctx context.Context) (int64, error)
}

type redeemEventRepository struct {
	db *gorm.DB
}

// NewRedeemEventRepository returns a GORM-backed RedeemEventRepository.
func NewRedeemEventRepository(db *gorm.DB) RedeemEventRepository {
	return &redeemEventRepository{db: db}
}

func (r *redeemEventRepository) Create(ctx context.Context, event *model.RedeemEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *redeemEventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RedeemEvent{}).Count(&count).Error
	return count, err
}

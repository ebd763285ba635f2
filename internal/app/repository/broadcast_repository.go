package repository

import (
	"context"

	"github.com/vkuzn/gatelink/internal/app/model"
	"gorm.io/gorm"
)

// BroadcastRepository persists broadcast audit entries. The table is
// append-only; there is no update path.
type BroadcastRepository interface {
	Create(ctx context.Context, record *model.BroadcastRecord) error
	Count(ctx context.Context) (int64, error)
}

type broadcastRepository struct {
	db *gorm.DB
}

// NewBroadcastRepository returns a GORM-backed BroadcastRepository.
func NewBroadcastRepository(db *gorm.DB) BroadcastRepository {
	return &broadcastRepository{db: db}
}

func (r *broadcastRepository) Create(ctx context.Context, record *model.BroadcastRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *broadcastRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BroadcastRecord{}).Count(&count).Error
	return count, err
}

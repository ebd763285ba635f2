package repository

import (
	"context"

	"github.com/vkuzn/gatelink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const userBatchSize = 500

// UserRepository defines the data access contract for the user registry.
//
// EachUser streams the registry in batches rather than materializing the
// whole table; the broadcast dispatcher relies on this for large
// registries.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	Count(ctx context.Context) (int64, error)
	EachUser(ctx context.Context, fn func(user model.User) error) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a GORM-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Upsert creates or refreshes a user row, unique on id. There is no
// separate create step anywhere in the system.
func (r *userRepository) Upsert(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "username", "last_active_at"}),
		}).
		Create(user).Error
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}

func (r *userRepository) EachUser(ctx context.Context, fn func(user model.User) error) error {
	var batch []model.User
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Order("id").
		FindInBatches(&batch, userBatchSize, func(tx *gorm.DB, _ int) error {
			for _, u := range batch {
				if err := fn(u); err != nil {
					return err
				}
			}
			return nil
		}).Error
}

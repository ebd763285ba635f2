package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/vkuzn/gatelink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested protected link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkRevoked signals that the link exists but was already revoked.
	ErrLinkRevoked = errors.New("link already revoked")
)

// LinkRepository defines the data access contract for protected links.
//
// IncrementClicks and Revoke are storage-level conditional updates so that
// concurrent redemptions never lose counts and concurrent revokes resolve
// to exactly one winner.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetActive(ctx context.Context, token string) (*model.Link, error)
	GetByOwnerShortOrToken(ctx context.Context, ownerID int64, identifier string) (*model.Link, error)
	IncrementClicks(ctx context.Context, token string) error
	Revoke(ctx context.Context, token string) error
	ListActiveByOwner(ctx context.Context, ownerID int64, limit int) ([]model.Link, error)
	AllTokens(ctx context.Context) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return err
	}
	return nil
}

// GetActive looks up a link filtered to active=true. Revoked and unknown
// tokens are indistinguishable to the caller.
func (r *linkRepository) GetActive(ctx context.Context, token string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Where("token = ? AND active = ?", token, true).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// GetByOwnerShortOrToken matches either the full token or the short alias,
// restricted to the given owner. The owner restriction is the
// authorization check: another owner's link answers ErrLinkNotFound.
func (r *linkRepository) GetByOwnerShortOrToken(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND (token = ? OR short_id = ?)", ownerID, identifier, strings.ToUpper(identifier)).
		Order("created_at DESC").
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) IncrementClicks(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("token = ? AND active = ?", token, true).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// Revoke performs a compare-and-set on active: true -> false. Exactly one
// concurrent caller observes success; the rest observe ErrLinkRevoked.
func (r *linkRepository) Revoke(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("token = ? AND active = ?", token, true).
		Updates(map[string]interface{}{
			"active":     false,
			"revoked_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("token = ?", token).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrLinkNotFound
	}
	return ErrLinkRevoked
}

func (r *linkRepository) ListActiveByOwner(ctx context.Context, ownerID int64, limit int) ([]model.Link, error) {
	if limit <= 0 {
		limit = 20
	}

	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// AllTokens returns every stored token. Used once at startup to seed the
// resolver's negative-lookup filter.
func (r *linkRepository) AllTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

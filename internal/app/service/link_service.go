package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
)

const (
	// bloomCapacity sizes the negative-lookup filter; false positives just
	// cost one extra database miss.
	bloomCapacity      = 1_000_000
	bloomFalsePositive = 0.001
)

// LinkService is the engine surface for protected links: issuance,
// redemption with usage accounting, and owner-scoped revocation.
type LinkService interface {
	CreateLink(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error)
	ListLinks(ctx context.Context, ownerID int64, limit int) ([]model.Link, error)
	// Redeem exchanges a token for its destination URI and increments the
	// click counter exactly once. Unknown and revoked tokens both answer
	// repository.ErrLinkNotFound.
	Redeem(ctx context.Context, token string) (string, error)
	// Peek resolves a token without the click side effect; used by the
	// deep-link preview before handing off to the web redemption flow.
	Peek(ctx context.Context, token string) (*model.Link, error)
	// RevokeAsOwner revokes by short alias or full token. Links owned by
	// someone else answer repository.ErrLinkNotFound, never a forbidden
	// error, so existence is not leaked.
	RevokeAsOwner(ctx context.Context, ownerID int64, identifier string) (*model.Link, error)
}

type linkService struct {
	repo repository.LinkRepository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewLinkService returns a service backed by the given repository. The
// negative-lookup filter is seeded from every stored token so that
// definitely-unknown tokens are rejected without touching Postgres.
func NewLinkService(ctx context.Context, repo repository.LinkRepository) (LinkService, error) {
	s := &linkService{
		repo:   repo,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFalsePositive),
	}

	tokens, err := repo.AllTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed token filter: %w", err)
	}
	for _, t := range tokens {
		s.filter.AddString(t)
	}

	return s, nil
}

func (s *linkService) CreateLink(ctx context.Context, ownerID int64, targetURI string) (*model.Link, error) {
	dest, err := ParseDestination(targetURI)
	if err != nil {
		return nil, err
	}

	token, shortID := NewToken()
	link := &model.Link{
		Token:     token,
		ShortID:   shortID,
		TargetURI: dest.URI,
		OwnerID:   ownerID,
		Active:    true,
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	s.mu.Lock()
	s.filter.AddString(token)
	s.mu.Unlock()

	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID int64, limit int) ([]model.Link, error) {
	links, err := s.repo.ListActiveByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) Redeem(ctx context.Context, token string) (string, error) {
	if !s.mightExist(token) {
		return "", repository.ErrLinkNotFound
	}

	link, err := s.repo.GetActive(ctx, token)
	if err != nil {
		return "", err
	}

	// Conditional on active so that a redemption racing a revoke either
	// counts against a still-active link or reports the revoked outcome.
	if err := s.repo.IncrementClicks(ctx, token); err != nil {
		return "", err
	}

	return link.TargetURI, nil
}

func (s *linkService) Peek(ctx context.Context, token string) (*model.Link, error) {
	if !s.mightExist(token) {
		return nil, repository.ErrLinkNotFound
	}
	return s.repo.GetActive(ctx, token)
}

func (s *linkService) RevokeAsOwner(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
	link, err := s.repo.GetByOwnerShortOrToken(ctx, ownerID, identifier)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Revoke(ctx, link.Token); err != nil {
		return nil, err
	}

	link.Active = false
	return link, nil
}

func (s *linkService) mightExist(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter.TestString(token)
}

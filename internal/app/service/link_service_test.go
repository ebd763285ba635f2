package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
)

// mockLinkRepository lets each test supply only the calls it expects.
type mockLinkRepository struct {
	createFunc                 func(ctx context.Context, link *model.Link) error
	getActiveFunc              func(ctx context.Context, token string) (*model.Link, error)
	getByOwnerShortOrTokenFunc func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error)
	incrementClicksFunc        func(ctx context.Context, token string) error
	revokeFunc                 func(ctx context.Context, token string) error
	listActiveByOwnerFunc      func(ctx context.Context, ownerID int64, limit int) ([]model.Link, error)
	allTokensFunc              func(ctx context.Context) ([]string, error)
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link) error {
	return m.createFunc(ctx, link)
}

func (m *mockLinkRepository) GetActive(ctx context.Context, token string) (*model.Link, error) {
	return m.getActiveFunc(ctx, token)
}

func (m *mockLinkRepository) GetByOwnerShortOrToken(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
	return m.getByOwnerShortOrTokenFunc(ctx, ownerID, identifier)
}

func (m *mockLinkRepository) IncrementClicks(ctx context.Context, token string) error {
	return m.incrementClicksFunc(ctx, token)
}

func (m *mockLinkRepository) Revoke(ctx context.Context, token string) error {
	return m.revokeFunc(ctx, token)
}

func (m *mockLinkRepository) ListActiveByOwner(ctx context.Context, ownerID int64, limit int) ([]model.Link, error) {
	return m.listActiveByOwnerFunc(ctx, ownerID, limit)
}

func (m *mockLinkRepository) AllTokens(ctx context.Context) ([]string, error) {
	if m.allTokensFunc != nil {
		return m.allTokensFunc(ctx)
	}
	return nil, nil
}

func TestCreateLinkRejectsInvalidDestination(t *testing.T) {
	repo := &mockLinkRepository{
		createFunc: func(ctx context.Context, link *model.Link) error {
			t.Fatal("repository must not be reached for an invalid destination")
			return nil
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	_, err = svc.CreateLink(context.Background(), 7, "https://evil.example/phish")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
}

func TestCreateLinkMintsTokenAndAlias(t *testing.T) {
	var stored *model.Link
	repo := &mockLinkRepository{
		createFunc: func(ctx context.Context, link *model.Link) error {
			stored = link
			return nil
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	link, err := svc.CreateLink(context.Background(), 7, "https://t.me/+AbCdEf")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if stored == nil {
		t.Fatal("link was not persisted")
	}
	if link.OwnerID != 7 {
		t.Fatalf("owner = %d, want 7", link.OwnerID)
	}
	if !link.Active {
		t.Fatal("new link must start active")
	}
	if link.Token == "" || link.ShortID != strings.ToUpper(link.Token[:shortIDLength]) {
		t.Fatalf("bad token/alias pair: %q / %q", link.Token, link.ShortID)
	}

	// The fresh token must be redeemable without reseeding the filter.
	repo.getActiveFunc = func(ctx context.Context, token string) (*model.Link, error) {
		if token != link.Token {
			t.Fatalf("lookup for unexpected token %q", token)
		}
		return stored, nil
	}
	repo.incrementClicksFunc = func(ctx context.Context, token string) error { return nil }

	target, err := svc.Redeem(context.Background(), link.Token)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if target != "https://t.me/+AbCdEf" {
		t.Fatalf("target = %q", target)
	}
}

func TestRedeemUnknownTokenSkipsStorage(t *testing.T) {
	touched := false
	repo := &mockLinkRepository{
		getActiveFunc: func(ctx context.Context, token string) (*model.Link, error) {
			touched = true
			return nil, repository.ErrLinkNotFound
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	_, err = svc.Redeem(context.Background(), "definitely-not-issued")
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if touched {
		t.Fatal("negative-lookup filter should have rejected the token before storage")
	}
}

func TestRedeemRevokedLooksLikeUnknown(t *testing.T) {
	repo := &mockLinkRepository{
		allTokensFunc: func(ctx context.Context) ([]string, error) {
			return []string{"revoked-token"}, nil
		},
		getActiveFunc: func(ctx context.Context, token string) (*model.Link, error) {
			// Storage filters on active, so a revoked row answers not-found.
			return nil, repository.ErrLinkNotFound
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	_, err = svc.Redeem(context.Background(), "revoked-token")
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("revoked token must answer ErrLinkNotFound, got %v", err)
	}
}

func TestRevokeAsOwnerHidesForeignLinks(t *testing.T) {
	repo := &mockLinkRepository{
		getByOwnerShortOrTokenFunc: func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
			if ownerID != 99 {
				t.Fatalf("lookup scoped to owner %d, want 99", ownerID)
			}
			// Row exists but belongs to someone else; the owner-scoped
			// query cannot see it.
			return nil, repository.ErrLinkNotFound
		},
		revokeFunc: func(ctx context.Context, token string) error {
			t.Fatal("revoke must not run for a link the caller does not own")
			return nil
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	_, err = svc.RevokeAsOwner(context.Background(), 99, "ABCD1234")
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestRevokeAsOwnerByAlias(t *testing.T) {
	revoked := ""
	repo := &mockLinkRepository{
		getByOwnerShortOrTokenFunc: func(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
			return &model.Link{Token: "full-token", ShortID: "ABCD1234", OwnerID: ownerID, Active: true}, nil
		},
		revokeFunc: func(ctx context.Context, token string) error {
			revoked = token
			return nil
		},
	}
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	link, err := svc.RevokeAsOwner(context.Background(), 7, "abcd1234")
	if err != nil {
		t.Fatalf("RevokeAsOwner: %v", err)
	}
	if revoked != "full-token" {
		t.Fatalf("revoked token = %q, want the full token", revoked)
	}
	if link.Active {
		t.Fatal("returned link must reflect the revoked state")
	}
}

// memoryLinkRepository is a mutex-guarded in-memory implementation with
// the same conditional-update semantics as the Postgres layer. It backs
// the concurrency tests.
type memoryLinkRepository struct {
	mu    sync.Mutex
	links map[string]*model.Link
}

func newMemoryLinkRepository() *memoryLinkRepository {
	return &memoryLinkRepository{links: make(map[string]*model.Link)}
}

func (m *memoryLinkRepository) Create(ctx context.Context, link *model.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.Token] = &cp
	return nil
}

func (m *memoryLinkRepository) GetActive(ctx context.Context, token string) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok || !link.Active {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *memoryLinkRepository) GetByOwnerShortOrToken(ctx context.Context, ownerID int64, identifier string) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	upper := strings.ToUpper(identifier)
	for _, link := range m.links {
		if link.OwnerID == ownerID && (link.Token == identifier || link.ShortID == upper) {
			cp := *link
			return &cp, nil
		}
	}
	return nil, repository.ErrLinkNotFound
}

func (m *memoryLinkRepository) IncrementClicks(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok || !link.Active {
		return repository.ErrLinkNotFound
	}
	link.Clicks++
	return nil
}

func (m *memoryLinkRepository) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok {
		return repository.ErrLinkNotFound
	}
	if !link.Active {
		return repository.ErrLinkRevoked
	}
	link.Active = false
	return nil
}

func (m *memoryLinkRepository) ListActiveByOwner(ctx context.Context, ownerID int64, limit int) ([]model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Link
	for _, link := range m.links {
		if link.OwnerID == ownerID && link.Active {
			result = append(result, *link)
		}
	}
	return result, nil
}

func (m *memoryLinkRepository) AllTokens(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]string, 0, len(m.links))
	for token := range m.links {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func TestConcurrentRedeemsCountEveryClick(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	link, err := svc.CreateLink(context.Background(), 1, "https://t.me/somegroup")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	const redeemers = 64
	var wg sync.WaitGroup
	wg.Add(redeemers)
	for i := 0; i < redeemers; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), link.Token); err != nil {
				t.Errorf("Redeem: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetActive(context.Background(), link.Token)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if stored.Clicks != redeemers {
		t.Fatalf("clicks = %d, want %d", stored.Clicks, redeemers)
	}
}

func TestConcurrentRevokesHaveOneWinner(t *testing.T) {
	repo := newMemoryLinkRepository()
	svc, err := NewLinkService(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewLinkService: %v", err)
	}

	link, err := svc.CreateLink(context.Background(), 1, "https://t.me/somegroup")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	const revokers = 32
	results := make(chan error, revokers)
	var wg sync.WaitGroup
	wg.Add(revokers)
	for i := 0; i < revokers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.RevokeAsOwner(context.Background(), 1, link.ShortID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, alreadyRevoked int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrLinkRevoked):
			alreadyRevoked++
		default:
			t.Fatalf("unexpected revoke outcome: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("revoke winners = %d, want exactly 1", wins)
	}
	if alreadyRevoked != revokers-1 {
		t.Fatalf("already-revoked outcomes = %d, want %d", alreadyRevoked, revokers-1)
	}

	if _, err := svc.Redeem(context.Background(), link.Token); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("redeeming a revoked link must answer ErrLinkNotFound, got %v", err)
	}
}

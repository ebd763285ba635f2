package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vkuzn/gatelink/internal/app/model"
	"github.com/vkuzn/gatelink/internal/app/repository"
	infraprometheus "github.com/vkuzn/gatelink/internal/infra/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrNoPendingBroadcast signals a confirm/cancel with nothing proposed.
	ErrNoPendingBroadcast = errors.New("no pending broadcast for this admin")
	// ErrBroadcastInFlight signals a second proposal while one is still pending.
	ErrBroadcastInFlight = errors.New("a broadcast is already pending confirmation")
)

const (
	defaultSendDelay  = 50 * time.Millisecond
	defaultConfirmTTL = 5 * time.Minute
	perSendTimeout    = 10 * time.Second
)

// DeliverySender delivers one broadcast payload to one recipient. The chat
// transport implements it; tests fake it.
type DeliverySender interface {
	Send(ctx context.Context, userID int64, message string) error
}

// Proposal describes a broadcast awaiting explicit confirmation.
type Proposal struct {
	ID           string
	ConfirmToken string
	Recipients   int64
}

type pendingBroadcast struct {
	id         string
	adminID    int64
	message    string
	state      model.BroadcastState
	proposedAt time.Time
}

// BroadcastService fans one admin message out to every registered user.
//
// The operation is two-phase: Propose never sends anything; only a
// Confirm carrying a valid HMAC token for the proposal starts the run.
// The run itself is a background task with a fixed inter-send delay; each
// recipient failure is counted individually and never aborts the rest.
type BroadcastService struct {
	users   repository.UserRepository
	records repository.BroadcastRepository
	sender  DeliverySender
	signer  *ConfirmSigner
	logger  *zap.Logger

	sendDelay  time.Duration
	confirmTTL time.Duration

	// OnComplete, when set, observes the persisted record after a run.
	OnComplete func(record model.BroadcastRecord)

	mu      sync.Mutex
	pending map[int64]*pendingBroadcast
}

// BroadcastOption tweaks dispatcher construction.
type BroadcastOption func(*BroadcastService)

// WithSendDelay sets the fixed pause between recipient deliveries.
func WithSendDelay(d time.Duration) BroadcastOption {
	return func(b *BroadcastService) { b.sendDelay = d }
}

// WithConfirmTTL bounds how long a proposal stays confirmable.
func WithConfirmTTL(d time.Duration) BroadcastOption {
	return func(b *BroadcastService) { b.confirmTTL = d }
}

// NewBroadcastService builds the dispatcher. secret signs confirm tokens.
func NewBroadcastService(users repository.UserRepository, records repository.BroadcastRepository, sender DeliverySender, secret []byte, logger *zap.Logger, opts ...BroadcastOption) *BroadcastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BroadcastService{
		users:      users,
		records:    records,
		sender:     sender,
		logger:     logger,
		sendDelay:  defaultSendDelay,
		confirmTTL: defaultConfirmTTL,
		pending:    make(map[int64]*pendingBroadcast),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.signer = NewConfirmSigner(secret, b.confirmTTL)
	return b
}

// Propose stages a broadcast and returns the token required to confirm
// it. One proposal per admin at a time; an expired one is displaced.
func (b *BroadcastService) Propose(ctx context.Context, adminID int64, message string) (*Proposal, error) {
	recipients, err := b.users.Count(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if prev, ok := b.pending[adminID]; ok {
		if time.Since(prev.proposedAt) < b.confirmTTL {
			b.mu.Unlock()
			return nil, ErrBroadcastInFlight
		}
		delete(b.pending, adminID)
	}

	p := &pendingBroadcast{
		id:         uuid.New().String(),
		adminID:    adminID,
		message:    message,
		state:      model.BroadcastPending,
		proposedAt: time.Now(),
	}
	b.pending[adminID] = p
	b.mu.Unlock()

	token, err := b.signer.Issue(p.id)
	if err != nil {
		b.mu.Lock()
		delete(b.pending, adminID)
		b.mu.Unlock()
		return nil, err
	}

	return &Proposal{ID: p.id, ConfirmToken: token, Recipients: recipients}, nil
}

// Confirm validates the token against the admin's pending proposal and
// launches the fan-out in the background. It returns as soon as the run
// is started so the event-handling path stays unblocked.
func (b *BroadcastService) Confirm(adminID int64, confirmToken string) (string, error) {
	b.mu.Lock()
	p, ok := b.pending[adminID]
	if !ok {
		b.mu.Unlock()
		return "", ErrNoPendingBroadcast
	}
	if err := b.signer.Validate(p.id, confirmToken); err != nil {
		b.mu.Unlock()
		return "", err
	}
	p.state = model.BroadcastConfirmed
	delete(b.pending, adminID)
	b.mu.Unlock()

	go b.run(p)
	return p.id, nil
}

// Cancel discards the admin's pending proposal.
func (b *BroadcastService) Cancel(adminID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[adminID]; !ok {
		return ErrNoPendingBroadcast
	}
	delete(b.pending, adminID)
	return nil
}

// run performs the fan-out. A failed delivery is final for this record;
// there is no per-recipient retry.
func (b *BroadcastService) run(p *pendingBroadcast) {
	p.state = model.BroadcastInProgress
	ctx := context.Background()
	startedAt := time.Now()

	var total, success, failure int64
	err := b.users.EachUser(ctx, func(user model.User) error {
		total++

		sendCtx, cancel := context.WithTimeout(ctx, perSendTimeout)
		sendErr := b.sender.Send(sendCtx, user.ID, p.message)
		cancel()

		if sendErr != nil {
			failure++
			infraprometheus.BroadcastDeliveries.WithLabelValues("failure").Inc()
			b.logger.Warn("broadcast delivery failed",
				zap.String("broadcast", p.id),
				zap.Int64("user", user.ID),
				zap.Error(sendErr))
		} else {
			success++
			infraprometheus.BroadcastDeliveries.WithLabelValues("success").Inc()
		}

		if b.sendDelay > 0 {
			time.Sleep(b.sendDelay)
		}
		return nil
	})
	if err != nil {
		// Registry iteration died mid-run; the record still reflects every
		// attempt made so far.
		b.logger.Error("broadcast aborted while iterating users",
			zap.String("broadcast", p.id), zap.Error(err))
	}

	record := model.BroadcastRecord{
		ID:              p.id,
		AdminID:         p.adminID,
		SentAt:          startedAt,
		TotalRecipients: total,
		SuccessCount:    success,
		FailureCount:    failure,
	}
	if err := b.records.Create(ctx, &record); err != nil {
		b.logger.Error("persisting broadcast record failed",
			zap.String("broadcast", p.id), zap.Error(err))
	}
	p.state = model.BroadcastComplete

	b.logger.Info("broadcast complete",
		zap.String("broadcast", p.id),
		zap.Int64("total", total),
		zap.Int64("success", success),
		zap.Int64("failure", failure),
		zap.Duration("took", time.Since(startedAt)))

	if b.OnComplete != nil {
		b.OnComplete(record)
	}
}

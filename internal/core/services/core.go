package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/pkg/keylock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// core holds what every circulation service shares: the store, the keyed
// locks, the policy and the notifier.
type core struct {
	store    repositories.Store
	locks    *keylock.Locker
	notifier Notifier
	policy   domain.Policy
	clock    Clock
	logger   *slog.Logger
}

// scope is one unit of work: a transactional store plus the notifications
// to send once it commits.
type scope struct {
	repositories.Store
	outbox []domain.Notification
}

func (s *scope) notify(n domain.Notification) {
	s.outbox = append(s.outbox, n)
}

func workKey(id uint) string        { return keylock.Key("work", id) }
func copyKey(id uint) string        { return keylock.Key("copy", id) }
func memberKey(id uint) string      { return keylock.Key("member", id) }
func reservationKey(id uint) string { return keylock.Key("reservation", id) }
func transactionKey(id uint) string { return keylock.Key("transaction", id) }

// run locks keys, executes fn in one database transaction and dispatches the
// collected notifications after commit
func (c *core) run(ctx context.Context, keys []string, fn func(tx *scope) error) error {
	release, err := c.locks.Acquire(ctx, keys...)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return domain.Wrap(domain.KindBusy, err, "resource is busy, try again")
		}
		return err
	}
	defer release()

	var outbox []domain.Notification
	err = c.store.WithinTx(ctx, func(tx repositories.Store) error {
		s := &scope{Store: tx}
		if err := fn(s); err != nil {
			return err
		}
		outbox = s.outbox
		return nil
	})
	if err != nil {
		return err
	}

	c.dispatch(ctx, outbox)
	return nil
}

// dispatch hands notifications to the notifier; failures are only logged
func (c *core) dispatch(ctx context.Context, outbox []domain.Notification) {
	for _, n := range outbox {
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Warn("notification dispatch failed",
				slog.String("notification_id", n.ID),
				slog.String("recipient", n.Recipient),
				slog.Any("error", err))
		}
	}
}

func (c *core) now() time.Time {
	if c.clock == nil {
		return SystemClock()
	}
	return c.clock().UTC()
}

func (c *core) newNotification(recipient, subject, body, refType string, refID uint) domain.Notification {
	return domain.Notification{
		ID:            uuid.NewString(),
		Recipient:     recipient,
		Subject:       subject,
		Body:          body,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     c.now(),
	}
}

// ============================================================
// Member terms
// ============================================================

// memberTerms are the effective limits for one member
type memberTerms struct {
	TierName      string
	TierDisabled  bool
	LoanDays      int
	RenewalDays   int
	MaxBooks      int
	MaxRenewals   int
	Priority      int
	LateFeePerDay decimal.Decimal
	CanReserve    bool
	CanRenew      bool
}

// termsFor resolves tier values with policy fallbacks
func (c *core) termsFor(m *models.Member) memberTerms {
	p := c.policy
	t := memberTerms{
		LoanDays:      p.DefaultLoanDays,
		RenewalDays:   p.DefaultRenewalDays,
		MaxBooks:      p.DefaultMaxBooks,
		MaxRenewals:   p.DefaultMaxRenewals,
		Priority:      p.DefaultPriority,
		LateFeePerDay: p.DefaultLateFeePerDay,
		CanReserve:    true,
		CanRenew:      true,
	}
	tier := m.Tier
	if tier == nil {
		return t
	}

	t.TierName = tier.Name
	t.TierDisabled = tier.Disabled
	t.CanReserve = tier.CanReserveBooks
	t.CanRenew = tier.CanRenewOnline
	t.MaxRenewals = tier.MaxRenewalsAllowed
	if tier.LoanPeriodDays > 0 {
		t.LoanDays = tier.LoanPeriodDays
	}
	if tier.RenewalPeriodDays > 0 {
		t.RenewalDays = tier.RenewalPeriodDays
	}
	if tier.MaxBooksAllowed > 0 {
		t.MaxBooks = tier.MaxBooksAllowed
	}
	if tier.LateFeePerDay.Valid {
		t.LateFeePerDay = tier.LateFeePerDay.Decimal
	}
	if tier.PriorityReservations && tier.PriorityLevel > 0 {
		t.Priority = tier.PriorityLevel
	}
	return t
}

// loadMember fetches a member with its tier
func (c *core) loadMember(ctx context.Context, tx repositories.Store, id uint) (*models.Member, error) {
	return tx.Members().GetWithTier(ctx, id)
}

// loadWork fetches a work and optionally requires it to circulate
func loadWork(ctx context.Context, tx repositories.Store, id uint, mustCirculate bool) (*models.Work, error) {
	work, err := tx.Works().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mustCirculate && work.Status != domain.WorkActive {
		return nil, domain.Errorf(domain.KindUnavailable, "work %s is not in circulation", work.Code)
	}
	return work, nil
}

// loadCopyOf fetches a copy and checks it belongs to workID
func loadCopyOf(ctx context.Context, tx repositories.Store, copyID, workID uint) (*models.Copy, error) {
	cp, err := tx.Copies().GetByID(ctx, copyID)
	if err != nil {
		return nil, err
	}
	if cp.WorkID != workID {
		return nil, domain.Errorf(domain.KindValidation, "copy %d does not belong to work %d", copyID, workID)
	}
	return cp, nil
}

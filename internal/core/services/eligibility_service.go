package services

import (
	"context"
	"fmt"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
)

// EligibilityService decides whether a member may borrow, reserve or renew
type EligibilityService struct {
	*core
}

// CanBorrow checks a member against a work using committed state
func (s *EligibilityService) CanBorrow(ctx context.Context, memberID, workID uint) (domain.Decision, error) {
	member, err := s.loadMember(ctx, s.store, memberID)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.canBorrow(ctx, s.store, member, workID)
}

// CanReserve checks a member against a work using committed state
func (s *EligibilityService) CanReserve(ctx context.Context, memberID, workID uint) (domain.Decision, error) {
	member, err := s.loadMember(ctx, s.store, memberID)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.canReserve(ctx, s.store, member, workID)
}

// CanRenew checks whether the loan behind transactionID may be renewed
func (s *EligibilityService) CanRenew(ctx context.Context, transactionID uint) (domain.Decision, error) {
	issue, err := issueOf(ctx, s.store, transactionID)
	if err != nil {
		return domain.Decision{}, err
	}
	member, err := s.loadMember(ctx, s.store, issue.MemberID)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.canRenew(ctx, s.store, member, issue)
}

// ============================================================
// Rules
// ============================================================

func (c *core) accountDenial(member *models.Member, terms memberTerms) (domain.Decision, bool) {
	if member.Disabled {
		return domain.Deny("member account is disabled"), true
	}
	if terms.TierDisabled {
		return domain.Deny(fmt.Sprintf("membership tier %s is disabled", terms.TierName)), true
	}
	return domain.Decision{}, false
}

func (c *core) canBorrow(ctx context.Context, tx repositories.Store, member *models.Member, workID uint) (domain.Decision, error) {
	terms := c.termsFor(member)
	if d, denied := c.accountDenial(member, terms); denied {
		return d, nil
	}

	open, err := tx.Transactions().Find(ctx, openIssuesOf(member.ID))
	if err != nil {
		return domain.Decision{}, err
	}
	if len(open) >= terms.MaxBooks {
		return domain.Deny(fmt.Sprintf("borrowing limit of %d books reached", terms.MaxBooks)), nil
	}

	owed, err := outstandingFine(ctx, tx, member.ID)
	if err != nil {
		return domain.Decision{}, err
	}
	if owed.IsPositive() {
		return domain.Deny(fmt.Sprintf("outstanding fines of %s must be cleared first", owed.StringFixed(2))), nil
	}

	for _, t := range open {
		if t.WorkID == workID {
			return domain.Deny("member already has this work on loan"), nil
		}
	}
	return domain.Allow(), nil
}

func (c *core) canReserve(ctx context.Context, tx repositories.Store, member *models.Member, workID uint) (domain.Decision, error) {
	terms := c.termsFor(member)
	if d, denied := c.accountDenial(member, terms); denied {
		return d, nil
	}

	owed, err := outstandingFine(ctx, tx, member.ID)
	if err != nil {
		return domain.Decision{}, err
	}
	if owed.IsPositive() {
		return domain.Deny(fmt.Sprintf("outstanding fines of %s must be cleared first", owed.StringFixed(2))), nil
	}
	if !terms.CanReserve {
		return domain.Deny("membership tier does not allow reservations"), nil
	}

	active, err := tx.Reservations().Exists(ctx, repositories.Where(
		repositories.Eq("member_id", member.ID),
		repositories.Eq("work_id", workID),
		repositories.Eq("status", domain.ReservationActive),
	))
	if err != nil {
		return domain.Decision{}, err
	}
	if active {
		return domain.Decision{
			Allowed: false,
			Reason:  "member already has an active reservation for this work",
			Kind:    domain.KindConflict,
		}, nil
	}

	holding, err := tx.Transactions().Exists(ctx, repositories.Query{
		Conds: append(openIssuesOf(member.ID).Conds, repositories.Eq("work_id", workID)),
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if holding {
		return domain.Deny("member already has this work on loan"), nil
	}
	return domain.Allow(), nil
}

func (c *core) canRenew(ctx context.Context, tx repositories.Store, member *models.Member, issue *models.Transaction) (domain.Decision, error) {
	terms := c.termsFor(member)
	if d, denied := c.accountDenial(member, terms); denied {
		return d, nil
	}
	if !terms.CanRenew {
		return domain.Deny("membership tier does not allow online renewal"), nil
	}

	renewals, err := tx.Transactions().Count(ctx, repositories.Where(
		repositories.Eq("parent_id", issue.ID),
		repositories.Eq("transaction_type", domain.TxRenewal),
	))
	if err != nil {
		return domain.Decision{}, err
	}
	if renewals >= int64(terms.MaxRenewals) {
		return domain.Deny(fmt.Sprintf("renewal limit of %d reached", terms.MaxRenewals)), nil
	}
	return domain.Allow(), nil
}

// ============================================================
// Shared lookups
// ============================================================

func openIssuesOf(memberID uint) repositories.Query {
	return repositories.Where(
		repositories.Eq("member_id", memberID),
		repositories.Eq("transaction_type", domain.TxIssue),
		repositories.IsNull("resolved_by_id"),
	)
}

// outstandingFine sums the fines of the member's Return transactions
func outstandingFine(ctx context.Context, tx repositories.Store, memberID uint) (decimal.Decimal, error) {
	returns, err := tx.Transactions().Find(ctx, repositories.Where(
		repositories.Eq("member_id", memberID),
		repositories.Eq("transaction_type", domain.TxReturn),
	))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range returns {
		total = total.Add(r.FineAmount)
	}
	return total, nil
}

// issueOf resolves a transaction id to the Issue it belongs to
func issueOf(ctx context.Context, tx repositories.Store, transactionID uint) (*models.Transaction, error) {
	t, err := tx.Transactions().GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	switch t.Type {
	case domain.TxIssue:
		return t, nil
	case domain.TxRenewal:
		if t.ParentID == nil {
			return nil, domain.Errorf(domain.KindInvalidState, "renewal %d is not linked to an issue", t.ID)
		}
		return tx.Transactions().GetByID(ctx, *t.ParentID)
	default:
		return nil, domain.Errorf(domain.KindInvalidState, "transaction %d is a %s, not a loan", t.ID, t.Type)
	}
}

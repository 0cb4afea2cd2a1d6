package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TransactionService is the issue, return and renewal engine
type TransactionService struct {
	*core
}

// ============================================================
// Issue
// ============================================================

// Issue lends a copy to a member
func (s *TransactionService) Issue(ctx context.Context, input CirculationInput) (*models.Transaction, error) {
	var issued *models.Transaction
	keys := []string{workKey(input.WorkID), copyKey(input.CopyID), memberKey(input.MemberID)}
	err := s.run(ctx, keys, func(tx *scope) error {
		t, err := s.issueInTx(ctx, tx, input)
		issued = t
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copy issued",
		slog.Uint64("transaction_id", uint64(issued.ID)),
		slog.Uint64("copy_id", uint64(issued.CopyID)),
		slog.Uint64("member_id", uint64(issued.MemberID)))
	return issued, nil
}

// issueInTx performs an issue inside the caller's unit of work. If the member
// has an Active reservation for the work it is fulfilled by this issue.
func (s *TransactionService) issueInTx(ctx context.Context, tx *scope, input CirculationInput) (*models.Transaction, error) {
	work, err := loadWork(ctx, tx, input.WorkID, true)
	if err != nil {
		return nil, err
	}
	cp, err := loadCopyOf(ctx, tx, input.CopyID, work.ID)
	if err != nil {
		return nil, err
	}
	member, err := s.loadMember(ctx, tx, input.MemberID)
	if err != nil {
		return nil, err
	}
	if !domain.IssuableCondition(cp.Condition) {
		return nil, domain.Errorf(domain.KindUnavailable, "copy %d is in %s condition", cp.ID, cp.Condition)
	}

	reservation, err := tx.Reservations().First(ctx, repositories.Where(
		repositories.Eq("member_id", member.ID),
		repositories.Eq("work_id", work.ID),
		repositories.Eq("status", domain.ReservationActive),
	))
	if err != nil {
		return nil, err
	}

	switch cp.Status {
	case domain.CopyAvailable:
		if reservation == nil || reservation.CopyID == nil {
			var except uint
			if reservation != nil {
				except = reservation.ID
			}
			spare, err := s.spareCopies(ctx, tx, work.ID, except)
			if err != nil {
				return nil, err
			}
			if spare < 1 {
				return nil, domain.Errorf(domain.KindUnavailable, "every available copy of work %d is promised to the queue", work.ID)
			}
		}
	case domain.CopyReserved:
		if reservation == nil || reservation.CopyID == nil || *reservation.CopyID != cp.ID {
			return nil, domain.Errorf(domain.KindUnavailable, "copy %d is reserved for another member", cp.ID)
		}
	default:
		return nil, domain.Errorf(domain.KindUnavailable, "copy %d is %s", cp.ID, cp.Status)
	}

	decision, err := s.canBorrow(ctx, tx, member, work.ID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	if err := s.transitionCopy(ctx, tx, cp, domain.CopyIssued); err != nil {
		return nil, err
	}

	now := s.now()
	due := domain.AddDays(now, s.termsFor(member).LoanDays)
	issue := &models.Transaction{
		WorkID:     work.ID,
		CopyID:     cp.ID,
		MemberID:   member.ID,
		Type:       domain.TxIssue,
		Status:     domain.TxIssued,
		Date:       now,
		DueDate:    &due,
		FineAmount: decimal.Zero,
	}
	if err := tx.Transactions().Create(ctx, issue); err != nil {
		return nil, err
	}

	releasedOther := false
	if reservation != nil {
		if reservation.CopyID != nil && *reservation.CopyID != cp.ID {
			if err := s.releaseHeldCopy(ctx, tx, *reservation.CopyID); err != nil {
				return nil, err
			}
			releasedOther = true
		}
		if err := s.fulfilReservation(ctx, tx, reservation, issue.ID); err != nil {
			return nil, err
		}
	}

	s.recomputeRollups(ctx, tx, work.ID)
	if err := s.historyForTransaction(ctx, tx, issue, domain.HistoryIssue, domain.HistoryActive); err != nil {
		return nil, err
	}
	if releasedOther {
		if err := s.advanceQueue(ctx, tx, work.ID); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// ============================================================
// Return
// ============================================================

// ReturnCopy closes the member's open loan of a copy and computes the fine
func (s *TransactionService) ReturnCopy(ctx context.Context, input CirculationInput) (*models.Transaction, error) {
	var returned *models.Transaction
	keys := []string{workKey(input.WorkID), copyKey(input.CopyID), memberKey(input.MemberID)}
	err := s.run(ctx, keys, func(tx *scope) error {
		issue, err := tx.Transactions().First(ctx, repositories.Query{
			Conds: append(openIssuesOf(input.MemberID).Conds,
				repositories.Eq("work_id", input.WorkID),
				repositories.Eq("copy_id", input.CopyID)),
			Order: "id DESC",
		})
		if err != nil {
			return err
		}
		if issue == nil {
			return domain.ErrNothingToReturn
		}

		cp, err := loadCopyOf(ctx, tx, input.CopyID, input.WorkID)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, tx, input.MemberID)
		if err != nil {
			return err
		}

		due, err := effectiveDueDate(ctx, tx, issue)
		if err != nil {
			return err
		}
		now := s.now()
		days, fine := domain.ComputeFine(due, now, s.termsFor(member).LateFeePerDay)

		parentID := issue.ID
		ret := &models.Transaction{
			WorkID:      issue.WorkID,
			CopyID:      issue.CopyID,
			MemberID:    issue.MemberID,
			Type:        domain.TxReturn,
			Status:      domain.TxReturned,
			Date:        now,
			DueDate:     &due,
			ReturnDate:  &now,
			FineAmount:  fine,
			OverdueDays: days,
			ParentID:    &parentID,
		}
		if err := tx.Transactions().Create(ctx, ret); err != nil {
			return err
		}
		resolved, err := tx.Transactions().Resolve(ctx, issue.ID, ret.ID)
		if err != nil {
			return err
		}
		if !resolved {
			return domain.Errorf(domain.KindConflict, "issue %d was already returned", issue.ID)
		}

		if err := s.transitionCopy(ctx, tx, cp, domain.CopyAvailable); err != nil {
			return err
		}

		if err := s.closeLoanHistory(ctx, tx, issue.ID); err != nil {
			return err
		}
		if err := s.historyForTransaction(ctx, tx, ret, domain.HistoryReturn, domain.HistoryCompleted); err != nil {
			return err
		}

		s.recomputeRollups(ctx, tx, issue.WorkID)
		if err := s.advanceQueue(ctx, tx, issue.WorkID); err != nil {
			return err
		}
		returned = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copy returned",
		slog.Uint64("transaction_id", uint64(returned.ID)),
		slog.Int("overdue_days", returned.OverdueDays),
		slog.String("fine", returned.FineAmount.StringFixed(2)))
	return returned, nil
}

// closeLoanHistory completes the ledger rows of an issue and its renewals
func (s *TransactionService) closeLoanHistory(ctx context.Context, tx *scope, issueID uint) error {
	if err := s.transitionTransactionHistory(ctx, tx, issueID, domain.HistoryCompleted); err != nil {
		return err
	}
	renewals, err := tx.Transactions().Find(ctx, renewalsOf(issueID))
	if err != nil {
		return err
	}
	for _, r := range renewals {
		if err := s.transitionTransactionHistory(ctx, tx, r.ID, domain.HistoryCompleted); err != nil {
			return err
		}
	}
	return nil
}

func renewalsOf(issueID uint) repositories.Query {
	return repositories.Where(
		repositories.Eq("parent_id", issueID),
		repositories.Eq("transaction_type", domain.TxRenewal),
	).OrderBy("id ASC")
}

// effectiveDueDate is the due date of the latest renewal, else of the issue
func effectiveDueDate(ctx context.Context, tx repositories.Store, issue *models.Transaction) (time.Time, error) {
	latest, err := tx.Transactions().First(ctx, renewalsOf(issue.ID).OrderBy("id DESC"))
	if err != nil {
		return time.Time{}, err
	}
	if latest != nil && latest.DueDate != nil {
		return *latest.DueDate, nil
	}
	if issue.DueDate == nil {
		return issue.Date, nil
	}
	return *issue.DueDate, nil
}

// ============================================================
// Renewal
// ============================================================

// Renew extends a loan. periodDays overrides the tier renewal period when set.
func (s *TransactionService) Renew(ctx context.Context, transactionID uint, periodDays *int) (*models.Transaction, error) {
	if periodDays != nil && *periodDays <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "renewal period must be greater than zero")
	}
	issue, err := issueOf(ctx, s.store, transactionID)
	if err != nil {
		return nil, err
	}

	var renewal *models.Transaction
	keys := []string{workKey(issue.WorkID), memberKey(issue.MemberID), transactionKey(issue.ID)}
	err = s.run(ctx, keys, func(tx *scope) error {
		issue, err := tx.Transactions().GetByID(ctx, issue.ID)
		if err != nil {
			return err
		}
		if !issue.IsOpenIssue() {
			return domain.Errorf(domain.KindInvalidState, "loan %d has already been returned", issue.ID)
		}
		member, err := s.loadMember(ctx, tx, issue.MemberID)
		if err != nil {
			return err
		}
		decision, err := s.canRenew(ctx, tx, member, issue)
		if err != nil {
			return err
		}
		if err := decision.Err(); err != nil {
			return err
		}

		period := s.termsFor(member).RenewalDays
		if periodDays != nil {
			period = *periodDays
		}
		current, err := effectiveDueDate(ctx, tx, issue)
		if err != nil {
			return err
		}
		due := domain.AddDays(current, period)

		parentID := issue.ID
		renewal = &models.Transaction{
			WorkID:     issue.WorkID,
			CopyID:     issue.CopyID,
			MemberID:   issue.MemberID,
			Type:       domain.TxRenewal,
			Status:     domain.TxIssued,
			Date:       s.now(),
			DueDate:    &due,
			FineAmount: decimal.Zero,
			ParentID:   &parentID,
		}
		if err := tx.Transactions().Create(ctx, renewal); err != nil {
			return err
		}
		return s.historyForTransaction(ctx, tx, renewal, domain.HistoryRenewal, domain.HistoryActive)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("loan renewed",
		slog.Uint64("issue_id", uint64(issue.ID)),
		slog.Time("due_date", *renewal.DueDate))
	return renewal, nil
}

// ============================================================
// Fines
// ============================================================

// CorrectFine overwrites the fine of a Return transaction
func (s *TransactionService) CorrectFine(ctx context.Context, input CorrectFineInput) (*models.Transaction, error) {
	if input.Amount.IsNegative() {
		return nil, domain.Errorf(domain.KindValidation, "fine amount cannot be negative")
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > 255 {
		return nil, domain.Errorf(domain.KindValidation, "fine note is too long")
	}

	var corrected *models.Transaction
	err := s.run(ctx, []string{transactionKey(input.TransactionID)}, func(tx *scope) error {
		t, err := tx.Transactions().GetByID(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		if t.Type != domain.TxReturn {
			return domain.Errorf(domain.KindInvalidState, "only return transactions carry fines")
		}
		if err := tx.Transactions().UpdateFine(ctx, t.ID, input.Amount, note); err != nil {
			return err
		}
		corrected, err = tx.Transactions().GetByID(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("fine corrected",
		slog.Uint64("transaction_id", uint64(corrected.ID)),
		slog.String("amount", corrected.FineAmount.StringFixed(2)))
	return corrected, nil
}

// OutstandingFine is the total of fines on the member's returns
func (s *TransactionService) OutstandingFine(ctx context.Context, memberID uint) (decimal.Decimal, error) {
	if _, err := s.store.Members().GetByID(ctx, memberID); err != nil {
		return decimal.Zero, err
	}
	return outstandingFine(ctx, s.store, memberID)
}

// ============================================================
// Queries
// ============================================================

// GetTransaction returns one transaction
func (s *TransactionService) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.store.Transactions().GetByID(ctx, id)
}

// OpenLoans lists a member's unreturned issues, oldest first
func (s *TransactionService) OpenLoans(ctx context.Context, memberID uint) ([]models.Transaction, error) {
	if _, err := s.store.Members().GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.Transactions().Find(ctx, openIssuesOf(memberID).OrderBy("id ASC"))
}

// CopyHistory lists every transaction of one copy, oldest first
func (s *TransactionService) CopyHistory(ctx context.Context, copyID uint) ([]models.Transaction, error) {
	if _, err := s.store.Copies().GetByID(ctx, copyID); err != nil {
		return nil, err
	}
	return s.store.Transactions().Find(ctx, repositories.Where(
		repositories.Eq("copy_id", copyID),
	).OrderBy("id ASC"))
}

// EffectiveDueDate returns the current due date of a loan
func (s *TransactionService) EffectiveDueDate(ctx context.Context, transactionID uint) (time.Time, error) {
	issue, err := issueOf(ctx, s.store, transactionID)
	if err != nil {
		return time.Time{}, err
	}
	due, err := effectiveDueDate(ctx, s.store, issue)
	if err != nil {
		return time.Time{}, fmt.Errorf("effective due date: %w", err)
	}
	return due, nil
}

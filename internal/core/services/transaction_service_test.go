package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/testsupport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestIssueAndReturnOnTime(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "LOAN", 2)
	member := env.Member(t, "cal", "Student")
	in := services.CirculationInput{WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID}

	issue, err := env.Services.Transactions.Issue(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.TxIssue, issue.Type)
	require.NotNil(t, issue.DueDate)
	assert.True(t, issue.DueDate.Equal(env.Clock.Now().Add(14*day)))
	assert.Equal(t, domain.CopyIssued, env.ReloadCopy(t, copies[0].ID).Status)

	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 1, w.AvailableCopies)
	assert.Equal(t, 1, w.IssuedCopies)

	env.Clock.Advance(3 * day)
	ret, err := env.Services.Transactions.ReturnCopy(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.TxReturn, ret.Type)
	assert.Zero(t, ret.OverdueDays)
	assert.True(t, ret.FineAmount.IsZero())
	require.NotNil(t, ret.ParentID)
	assert.Equal(t, issue.ID, *ret.ParentID)

	stored, err := env.Services.Transactions.GetTransaction(ctx, issue.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOpenIssue())

	w = env.AssertRollups(t, work.ID)
	assert.Equal(t, 2, w.AvailableCopies)

	entries, total, err := env.Services.History.List(ctx, member.ID, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, domain.HistoryIssue, entries[0].EntryType)
	assert.Equal(t, domain.HistoryCompleted, entries[0].Status)
	assert.Equal(t, 2, entries[1].Seq)
	assert.Equal(t, domain.HistoryReturn, entries[1].EntryType)

	_, err = env.Services.Transactions.ReturnCopy(ctx, in)
	assert.ErrorIs(t, err, domain.ErrNothingToReturn)
}

func TestLateReturnChargesFine(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "LATE", 1)
	other, _ := env.Work(t, "NEXT", 1)
	member := env.Member(t, "dee", "Student")
	in := services.CirculationInput{WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID}

	_, err := env.Services.Transactions.Issue(ctx, in)
	require.NoError(t, err)

	env.Clock.Advance(20 * day)
	ret, err := env.Services.Transactions.ReturnCopy(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 6, ret.OverdueDays)
	assert.True(t, ret.FineAmount.Equal(decimal.RequireFromString("3.00")), ret.FineAmount.String())

	owed, err := env.Services.Transactions.OutstandingFine(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, owed.Equal(decimal.RequireFromString("3")))

	decision, err := env.Services.Eligibility.CanBorrow(ctx, member.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "3.00")

	corrected, err := env.Services.Transactions.CorrectFine(ctx, services.CorrectFineInput{
		TransactionID: ret.ID,
		Amount:        decimal.Zero,
		Note:          "waived at desk",
	})
	require.NoError(t, err)
	assert.True(t, corrected.FineAmount.IsZero())
	assert.Equal(t, "waived at desk", corrected.FineNote)

	decision, err = env.Services.Eligibility.CanBorrow(ctx, member.ID, other.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCorrectFineRejections(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "CF", 1)
	member := env.Member(t, "eve", "Student")

	issue, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID,
	})
	require.NoError(t, err)

	_, err = env.Services.Transactions.CorrectFine(ctx, services.CorrectFineInput{
		TransactionID: issue.ID,
		Amount:        decimal.NewFromInt(-1),
	})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = env.Services.Transactions.CorrectFine(ctx, services.CorrectFineInput{
		TransactionID: issue.ID,
		Amount:        decimal.NewFromInt(1),
	})
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	_, err = env.Services.Transactions.CorrectFine(ctx, services.CorrectFineInput{
		TransactionID: 9999,
		Amount:        decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenewalExtendsDueDateUpToLimit(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "REN", 1)
	member := env.Member(t, "fay", "Student")

	issue, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID,
	})
	require.NoError(t, err)
	firstDue := *issue.DueDate

	first, err := env.Services.Transactions.Renew(ctx, issue.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TxRenewal, first.Type)
	assert.True(t, first.DueDate.Equal(firstDue.Add(7*day)))

	// renewing through the renewal id resolves to the same loan
	period := 3
	second, err := env.Services.Transactions.Renew(ctx, first.ID, &period)
	require.NoError(t, err)
	assert.True(t, second.DueDate.Equal(firstDue.Add(10*day)))

	due, err := env.Services.Transactions.EffectiveDueDate(ctx, issue.ID)
	require.NoError(t, err)
	assert.True(t, due.Equal(*second.DueDate))

	decision, err := env.Services.Eligibility.CanRenew(ctx, issue.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	_, err = env.Services.Transactions.Renew(ctx, issue.ID, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	zero := 0
	_, err = env.Services.Transactions.Renew(ctx, issue.ID, &zero)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	// a late return is measured against the renewed due date
	env.Clock.Set(firstDue.Add(12 * day))
	ret, err := env.Services.Transactions.ReturnCopy(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ret.OverdueDays)

	entries, _, err := env.Services.History.List(ctx, member.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, domain.HistoryCompleted, e.Status, "entry %d", e.Seq)
	}
}

func TestRenewReturnedLoanFails(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "RR", 1)
	member := env.Member(t, "gus", "Student")
	in := services.CirculationInput{WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID}

	issue, err := env.Services.Transactions.Issue(ctx, in)
	require.NoError(t, err)
	ret, err := env.Services.Transactions.ReturnCopy(ctx, in)
	require.NoError(t, err)

	_, err = env.Services.Transactions.Renew(ctx, issue.ID, nil)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	_, err = env.Services.Transactions.Renew(ctx, ret.ID, nil)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestIssueDenials(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	member := env.Member(t, "hal", "Student")

	var works []*models.Work
	var firsts []models.Copy
	for _, code := range []string{"D1", "D2", "D3", "D4"} {
		w, copies := env.Work(t, code, 2)
		works = append(works, w)
		firsts = append(firsts, copies[0])
	}

	for i := 0; i < 3; i++ {
		_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[i].ID, CopyID: firsts[i].ID, MemberID: member.ID,
		})
		require.NoError(t, err)
	}

	t.Run("borrowing limit", func(t *testing.T) {
		_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[3].ID, CopyID: firsts[3].ID, MemberID: member.ID,
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
		assert.Equal(t, domain.CopyAvailable, env.ReloadCopy(t, firsts[3].ID).Status)
	})

	t.Run("copy already issued", func(t *testing.T) {
		other := env.Member(t, "ida", "Student")
		_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[0].ID, CopyID: firsts[0].ID, MemberID: other.ID,
		})
		assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	})

	t.Run("copy of another work", func(t *testing.T) {
		other := env.Member(t, "jon", "Student")
		_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[0].ID, CopyID: firsts[3].ID, MemberID: other.ID,
		})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("same work twice", func(t *testing.T) {
		faculty := env.Member(t, "kim", "Faculty")
		copies, err := env.Services.Copies.ListCopies(ctx, works[3].ID)
		require.NoError(t, err)
		_, err = env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[3].ID, CopyID: copies[0].ID, MemberID: faculty.ID,
		})
		require.NoError(t, err)
		_, err = env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[3].ID, CopyID: copies[1].ID, MemberID: faculty.ID,
		})
		assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	})

	t.Run("disabled member", func(t *testing.T) {
		blocked := env.Member(t, "lee", "Student")
		_, err := env.Services.Members.SetDisabled(ctx, blocked.ID, true)
		require.NoError(t, err)
		copies, err := env.Services.Copies.ListCopies(ctx, works[1].ID)
		require.NoError(t, err)
		_, err = env.Services.Transactions.Issue(ctx, services.CirculationInput{
			WorkID: works[1].ID, CopyID: copies[1].ID, MemberID: blocked.ID,
		})
		assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	})

	for _, w := range works {
		env.AssertRollups(t, w.ID)
	}
}

func TestIssueDamagedCopyUnavailable(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "DMG", 1)
	member := env.Member(t, "max", "Student")

	require.NoError(t, env.DB.Model(&models.Copy{}).
		Where("id = ?", copies[0].ID).
		Update("condition", domain.ConditionDamaged).Error)

	_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID,
	})
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestConcurrentIssueOfOneCopy(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "RACE", 1)

	const borrowers = 4
	members := make([]*models.Member, borrowers)
	for i := range members {
		members[i] = env.Member(t, string(rune('a'+i))+"-racer", "Student")
	}

	var wg sync.WaitGroup
	errs := make([]error, borrowers)
	for i := range members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Services.Transactions.Issue(ctx, services.CirculationInput{
				WorkID: work.ID, CopyID: copies[0].ID, MemberID: members[i].ID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)

	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 1, w.IssuedCopies)
}

func TestOpenLoansAndCopyHistory(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "OPEN", 1)
	member := env.Member(t, "ned", "Student")
	in := services.CirculationInput{WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID}

	_, err := env.Services.Transactions.Issue(ctx, in)
	require.NoError(t, err)
	open, err := env.Services.Transactions.OpenLoans(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = env.Services.Transactions.ReturnCopy(ctx, in)
	require.NoError(t, err)
	open, err = env.Services.Transactions.OpenLoans(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	history, err := env.Services.Transactions.CopyHistory(ctx, copies[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TxIssue, history[0].Type)
	assert.Equal(t, domain.TxReturn, history[1].Type)
}

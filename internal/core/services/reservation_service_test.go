package services_test

import (
	"context"
	"testing"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueCopy(t *testing.T, env *testsupport.Env, work *models.Work, cp models.Copy, member *models.Member) *models.Transaction {
	t.Helper()
	tx, err := env.Services.Transactions.Issue(context.Background(), services.CirculationInput{
		WorkID: work.ID, CopyID: cp.ID, MemberID: member.ID,
	})
	require.NoError(t, err)
	return tx
}

func reserve(t *testing.T, env *testsupport.Env, work *models.Work, member *models.Member, copyID *uint) *models.Reservation {
	t.Helper()
	r, err := env.Services.Reservations.Reserve(context.Background(), services.ReserveInput{
		MemberID: member.ID, WorkID: work.ID, CopyID: copyID,
	})
	require.NoError(t, err)
	return r
}

func TestSoleReservationIsFirstInQueue(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "Q1", 1)
	issueCopy(t, env, work, copies[0], env.Member(t, "holder", "Student"))

	r := reserve(t, env, work, env.Member(t, "waiter", "Student"), nil)
	assert.Equal(t, domain.ReservationActive, r.Status)
	assert.False(t, r.NotificationSent)
	assert.True(t, r.ExpiryDate.Equal(env.Clock.Now().Add(7*day)))

	pos, err := env.Services.Reservations.QueuePosition(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Empty(t, env.Notifier.Sent())
}

func TestDuplicateReservationConflicts(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "Q2", 1)
	issueCopy(t, env, work, copies[0], env.Member(t, "holder", "Student"))
	member := env.Member(t, "twice", "Student")

	reserve(t, env, work, member, nil)
	_, err := env.Services.Reservations.Reserve(ctx, services.ReserveInput{MemberID: member.ID, WorkID: work.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	mine, err := env.Services.Reservations.MemberReservations(ctx, member.ID, domain.ReservationActive)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestReserveWhileHoldingLoanDenied(t *testing.T) {
	env := testsupport.NewEnv(t)
	work, copies := env.Work(t, "Q3", 2)
	member := env.Member(t, "greedy", "Student")
	issueCopy(t, env, work, copies[0], member)

	_, err := env.Services.Reservations.Reserve(context.Background(), services.ReserveInput{
		MemberID: member.ID, WorkID: work.ID,
	})
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestTierWithoutReservationsDenied(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	_, created, err := env.Services.Members.SaveTier(ctx, &models.MemberTier{
		Name:              "Visitor",
		PriorityLevel:     1,
		MaxBooksAllowed:   1,
		LoanPeriodDays:    7,
		RenewalPeriodDays: 7,
	})
	require.NoError(t, err)
	require.True(t, created)

	work, _ := env.Work(t, "Q4", 1)
	visitor := env.Member(t, "visitor", "Visitor")

	decision, err := env.Services.Eligibility.CanReserve(ctx, visitor.ID, work.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	_, err = env.Services.Reservations.Reserve(ctx, services.ReserveInput{MemberID: visitor.ID, WorkID: work.ID})
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestHeldCopyIsReservedForItsMember(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "HOLD", 2)
	owner := env.Member(t, "owner", "Student")
	stranger := env.Member(t, "stranger", "Student")

	r := reserve(t, env, work, owner, &copies[0].ID)
	assert.True(t, r.NotificationSent, "a head holding a copy is ready at once")
	assert.Equal(t, domain.CopyReserved, env.ReloadCopy(t, copies[0].ID).Status)
	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 1, w.AvailableCopies)
	assert.Equal(t, 1, w.IssuedCopies)

	_, err := env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: stranger.ID,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	issueCopy(t, env, work, copies[1], stranger)
	issue := issueCopy(t, env, work, copies[0], owner)

	done := env.ReloadReservation(t, r.ID)
	assert.Equal(t, domain.ReservationFulfilled, done.Status)
	require.NotNil(t, done.FulfilledTransactionID)
	assert.Equal(t, issue.ID, *done.FulfilledTransactionID)

	w = env.AssertRollups(t, work.ID)
	assert.Equal(t, 0, w.AvailableCopies)
	assert.Equal(t, 2, w.IssuedCopies)
}

func TestIssuingAnotherCopyReleasesHold(t *testing.T) {
	env := testsupport.NewEnv(t)
	work, copies := env.Work(t, "SWAP", 2)
	member := env.Member(t, "swapper", "Student")

	r := reserve(t, env, work, member, &copies[0].ID)
	issueCopy(t, env, work, copies[1], member)

	assert.Equal(t, domain.ReservationFulfilled, env.ReloadReservation(t, r.ID).Status)
	assert.Equal(t, domain.CopyAvailable, env.ReloadCopy(t, copies[0].ID).Status)
	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 1, w.AvailableCopies)
}

func TestPriorityOrdersQueue(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "PRIO", 1)
	holder := env.Member(t, "holder", "Student")
	issueCopy(t, env, work, copies[0], holder)

	student := reserve(t, env, work, env.Member(t, "student", "Student"), nil)
	env.Clock.Advance(time.Hour)
	facultyMember := env.Member(t, "prof", "Faculty")
	faculty := reserve(t, env, work, facultyMember, nil)
	assert.Equal(t, 3, faculty.PriorityLevel)
	assert.Equal(t, 1, student.PriorityLevel)

	pos, err := env.Services.Reservations.QueuePosition(ctx, faculty.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	pos, err = env.Services.Reservations.QueuePosition(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	queue, err := env.Services.Reservations.Queue(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, faculty.ID, queue[0].Reservation.ID)

	_, err = env.Services.Transactions.ReturnCopy(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: holder.ID,
	})
	require.NoError(t, err)

	sent := env.Notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, facultyMember.Email, sent[0].Recipient)
	assert.Equal(t, faculty.ID, sent[0].ReferenceID)
	assert.False(t, env.ReloadReservation(t, student.ID).NotificationSent)
}

func TestReturnNotifiesAndFulfillIssues(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "FLOW", 1)
	lender := env.Member(t, "lender", "Student")
	waiter := env.Member(t, "waiter", "Student")

	issueCopy(t, env, work, copies[0], lender)
	r := reserve(t, env, work, waiter, nil)
	assert.Empty(t, env.Notifier.Sent())

	_, err := env.Services.Reservations.Fulfill(ctx, r.ID, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	_, err = env.Services.Transactions.ReturnCopy(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: lender.ID,
	})
	require.NoError(t, err)

	sent := env.Notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, waiter.Email, sent[0].Recipient)
	assert.Equal(t, "reservation", sent[0].ReferenceType)
	notified := env.ReloadReservation(t, r.ID)
	assert.True(t, notified.NotificationSent)
	require.NotNil(t, notified.NotifiedDate)

	issue, err := env.Services.Reservations.Fulfill(ctx, r.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, waiter.ID, issue.MemberID)
	assert.Equal(t, copies[0].ID, issue.CopyID)

	done := env.ReloadReservation(t, r.ID)
	assert.Equal(t, domain.ReservationFulfilled, done.Status)

	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 0, w.AvailableCopies)
	assert.Equal(t, 1, w.IssuedCopies)

	_, err = env.Services.Reservations.Fulfill(ctx, r.ID, nil)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	entries, _, err := env.Services.History.List(ctx, waiter.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.HistoryReservation, entries[0].EntryType)
	assert.Equal(t, domain.HistoryFulfilled, entries[0].Status)
	assert.Equal(t, domain.HistoryIssue, entries[1].EntryType)
}

func TestNotifiedHeadKeepsPromisedCopy(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "PROMISE", 1)
	lender := env.Member(t, "lender", "Student")
	issueCopy(t, env, work, copies[0], lender)

	head := reserve(t, env, work, env.Member(t, "head", "Student"), nil)
	env.Clock.Advance(time.Hour)
	later := reserve(t, env, work, env.Member(t, "later", "Student"), nil)
	env.Clock.Advance(time.Hour)
	outsider := env.Member(t, "outsider", "Student")

	_, err := env.Services.Transactions.ReturnCopy(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: lender.ID,
	})
	require.NoError(t, err)
	require.True(t, env.ReloadReservation(t, head.ID).NotificationSent)
	require.False(t, env.ReloadReservation(t, later.ID).NotificationSent)

	_, err = env.Services.Reservations.Fulfill(ctx, later.ID, nil)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	_, err = env.Services.Reservations.Fulfill(ctx, later.ID, &copies[0].ID)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	_, err = env.Services.Reservations.Reserve(ctx, services.ReserveInput{
		MemberID: outsider.ID, WorkID: work.ID, CopyID: &copies[0].ID,
	})
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	_, err = env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: outsider.ID,
	})
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	assert.Equal(t, domain.CopyAvailable, env.ReloadCopy(t, copies[0].ID).Status)

	issue, err := env.Services.Reservations.Fulfill(ctx, head.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, head.MemberID, issue.MemberID)
	assert.Equal(t, domain.ReservationFulfilled, env.ReloadReservation(t, head.ID).Status)
	assert.Equal(t, domain.ReservationActive, env.ReloadReservation(t, later.ID).Status)
	env.AssertRollups(t, work.ID)
}

func TestQueuePositionWithMixedPriorities(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "MIXED", 1)
	issueCopy(t, env, work, copies[0], env.Member(t, "holder", "Student"))

	early := reserve(t, env, work, env.Member(t, "early", "Student"), nil)
	env.Clock.Advance(time.Hour)
	prof := reserve(t, env, work, env.Member(t, "prof", "Faculty"), nil)
	env.Clock.Advance(time.Hour)
	late := reserve(t, env, work, env.Member(t, "late", "Student"), nil)
	env.Clock.Advance(time.Hour)
	vip := reserve(t, env, work, env.Member(t, "vip", "Premium"), nil)

	want := map[uint]int{vip.ID: 1, prof.ID: 2, early.ID: 3, late.ID: 4}
	for id, expected := range want {
		pos, err := env.Services.Reservations.QueuePosition(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, expected, pos, "reservation %d", id)
	}

	_, err := env.Services.Reservations.Cancel(ctx, prof.ID, "changed plans", "prof")
	require.NoError(t, err)
	pos, err := env.Services.Reservations.QueuePosition(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestNotificationsMatchFreeCopies(t *testing.T) {
	env := testsupport.NewEnv(t)
	work, _ := env.Work(t, "GATE", 1)

	first := reserve(t, env, work, env.Member(t, "first", "Student"), nil)
	second := reserve(t, env, work, env.Member(t, "second", "Student"), nil)

	assert.True(t, first.NotificationSent)
	assert.False(t, second.NotificationSent)
	assert.Len(t, env.Notifier.Sent(), 1)

	_, err := env.Services.Copies.CreateCopies(context.Background(), work.ID, 1, "")
	require.NoError(t, err)
	assert.True(t, env.ReloadReservation(t, second.ID).NotificationSent)
	assert.Len(t, env.Notifier.Sent(), 2)
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "EXP", 1)
	member := env.Member(t, "late", "Student")

	r := reserve(t, env, work, member, &copies[0].ID)

	res, err := env.Services.Reservations.SweepExpired(ctx, env.Clock.Now().Add(6*day))
	require.NoError(t, err)
	assert.Zero(t, res.Expired)

	env.Clock.Advance(8 * day)
	res, err = env.Services.Reservations.SweepExpired(ctx, env.Clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Failed)

	assert.Equal(t, domain.ReservationExpired, env.ReloadReservation(t, r.ID).Status)
	assert.Equal(t, domain.CopyAvailable, env.ReloadCopy(t, copies[0].ID).Status)
	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 1, w.AvailableCopies)

	res, err = env.Services.Reservations.SweepExpired(ctx, env.Clock.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
	assert.Zero(t, res.Expired)

	entries, _, err := env.Services.History.List(ctx, member.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.HistoryExpired, entries[0].Status)
}

func TestCancelReleasesHeldCopy(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "CAN", 1)
	member := env.Member(t, "quitter", "Student")
	r := reserve(t, env, work, member, &copies[0].ID)

	cancelled, err := env.Services.Reservations.Cancel(ctx, r.ID, "changed my mind", "quitter")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)
	assert.Equal(t, "quitter", cancelled.CancelledBy)
	assert.Equal(t, domain.CopyAvailable, env.ReloadCopy(t, copies[0].ID).Status)

	_, err = env.Services.Reservations.Cancel(ctx, r.ID, "", "quitter")
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	_, err = env.Services.Reservations.QueuePosition(ctx, r.ID)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestCancelHandsCopyToNextInQueue(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, _ := env.Work(t, "NEXTUP", 1)
	first := reserve(t, env, work, env.Member(t, "first", "Student"), nil)
	second := reserve(t, env, work, env.Member(t, "second", "Student"), nil)
	require.False(t, second.NotificationSent)

	_, err := env.Services.Reservations.Cancel(ctx, first.ID, "", "staff")
	require.NoError(t, err)
	assert.True(t, env.ReloadReservation(t, second.ID).NotificationSent)
}

func TestSweepScheduler(t *testing.T) {
	env := testsupport.NewEnv(t)
	_, err := services.NewSweepScheduler("not a schedule", env.Services.Reservations, env.Clock.Now, env.Log)
	require.Error(t, err)

	sched, err := services.NewSweepScheduler("@every 1h", env.Services.Reservations, env.Clock.Now, env.Log)
	require.NoError(t, err)

	work, copies := env.Work(t, "CRON", 1)
	r := reserve(t, env, work, env.Member(t, "sleepy", "Student"), &copies[0].ID)
	env.Clock.Advance(10 * day)

	sched.RunOnce()
	assert.Equal(t, domain.ReservationExpired, env.ReloadReservation(t, r.ID).Status)
}

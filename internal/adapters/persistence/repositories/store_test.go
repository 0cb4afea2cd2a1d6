package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) repositories.Store {
	t.Helper()
	return repositories.NewStore(testsupport.OpenDB(t))
}

func seedWork(t *testing.T, store repositories.Store, code string) *models.Work {
	t.Helper()
	w := &models.Work{Code: code, Title: code, Status: domain.WorkActive}
	require.NoError(t, store.Works().Create(context.Background(), w))
	return w
}

func seedCopy(t *testing.T, store repositories.Store, workID uint, number int, status domain.CopyStatus) *models.Copy {
	t.Helper()
	cp := &models.Copy{WorkID: workID, CopyNumber: number, Status: status, Condition: domain.ConditionGood}
	require.NoError(t, store.Copies().Create(context.Background(), cp))
	return cp
}

func TestGetByIDNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Works().GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrWorkNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = store.Copies().Delete(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrCopyNotFound)
}

func TestUniqueViolationIsConflict(t *testing.T) {
	store := newStore(t)
	seedWork(t, store, "SAME")

	err := store.Works().Create(context.Background(), &models.Work{Code: "SAME", Title: "x", Status: domain.WorkActive})
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestQueryBuilders(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	w := seedWork(t, store, "QB")
	for i, status := range []domain.CopyStatus{domain.CopyAvailable, domain.CopyIssued, domain.CopyAvailable, domain.CopyMaintenance} {
		seedCopy(t, store, w.ID, i+1, status)
	}

	rows, err := store.Copies().Find(ctx, repositories.Where(
		repositories.Eq("work_id", w.ID),
		repositories.In("status", []domain.CopyStatus{domain.CopyAvailable, domain.CopyMaintenance}),
		repositories.Gt("copy_number", 1),
	).OrderBy("copy_number DESC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].CopyNumber)
	assert.Equal(t, 3, rows[1].CopyNumber)

	first, err := store.Copies().First(ctx, repositories.Where(repositories.Eq("status", domain.CopyLost)))
	require.NoError(t, err)
	assert.Nil(t, first)

	n, err := store.Copies().Count(ctx, repositories.Where(repositories.IsNull("barcode")))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	page, err := store.Copies().Find(ctx, repositories.Query{Order: "copy_number ASC"}.Page(1, 2))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].CopyNumber)

	_, err = store.Copies().Find(ctx, repositories.Where(repositories.Eq("status; DROP TABLE copies", "x")))
	assert.Error(t, err)
	_, err = store.Copies().Find(ctx, repositories.Query{Order: "copy_number; DELETE"})
	assert.Error(t, err)
}

func TestCopyCompareAndSet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	w := seedWork(t, store, "CAS")
	cp := seedCopy(t, store, w.ID, 1, domain.CopyAvailable)

	ok, err := store.Copies().UpdateStatusIf(ctx, cp.ID, domain.CopyAvailable, domain.CopyIssued)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Copies().UpdateStatusIf(ctx, cp.ID, domain.CopyAvailable, domain.CopyReserved)
	require.NoError(t, err)
	assert.False(t, ok)

	counts, err := store.Copies().CountByStatus(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.CopyIssued])

	highest, err := store.Copies().MaxCopyNumber(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, highest)
	highest, err = store.Copies().MaxCopyNumber(ctx, w.ID+100)
	require.NoError(t, err)
	assert.Zero(t, highest)
}

func TestActiveQueueOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	w := seedWork(t, store, "AQ")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mk := func(member uint, priority int, at time.Time, status domain.ReservationStatus) *models.Reservation {
		r := &models.Reservation{
			WorkID: w.ID, MemberID: member, Status: status, PriorityLevel: priority,
			ReservationDate: at, ExpiryDate: at.AddDate(0, 0, 7),
		}
		require.NoError(t, store.Reservations().Create(ctx, r))
		return r
	}
	early := mk(1, 1, base, domain.ReservationActive)
	mk(2, 9, base, domain.ReservationCancelled)
	urgent := mk(3, 5, base.Add(time.Hour), domain.ReservationActive)
	late := mk(4, 1, base.Add(2*time.Hour), domain.ReservationActive)

	queue, err := store.Reservations().ActiveQueue(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []uint{urgent.ID, early.ID, late.ID}, []uint{queue[0].ID, queue[1].ID, queue[2].ID})

	ok, err := store.Reservations().MarkNotified(ctx, early.ID, base)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Reservations().MarkNotified(ctx, early.ID, base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Reservations().TransitionIf(ctx, late.ID, domain.ReservationExpired, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Reservations().TransitionIf(ctx, late.ID, domain.ReservationCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithinTxRollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx repositories.Store) error {
		seedWork(t, tx, "KEPT")
		inner := tx.WithinTx(ctx, func(tx repositories.Store) error {
			seedWork(t, tx, "DROPPED")
			return boom
		})
		assert.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)

	_, err = store.Works().GetByCode(ctx, "KEPT")
	assert.NoError(t, err)
	_, err = store.Works().GetByCode(ctx, "DROPPED")
	assert.ErrorIs(t, err, domain.ErrWorkNotFound)

	err = store.WithinTx(ctx, func(tx repositories.Store) error {
		seedWork(t, tx, "OUTER")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = store.Works().GetByCode(ctx, "OUTER")
	assert.Error(t, err)
}

func TestHistoryLedgerSequence(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ledger, err := store.History().Ledger(ctx, 7)
	require.NoError(t, err)
	again, err := store.History().Ledger(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, ledger.ID, again.ID)

	for want := 1; want <= 3; want++ {
		seq, err := store.History().NextSeq(ctx, ledger.ID)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
		require.NoError(t, store.History().AppendEntry(ctx, &models.HistoryEntry{
			HistoryID: ledger.ID, MemberID: 7, Seq: seq, WorkID: 1,
			EntryType: domain.HistoryIssue, Status: domain.HistoryActive,
			TransactionDate: time.Now().UTC(),
		}))
	}

	err = store.History().AppendEntry(ctx, &models.HistoryEntry{
		HistoryID: ledger.ID, MemberID: 7, Seq: 2, WorkID: 1,
		EntryType: domain.HistoryIssue, Status: domain.HistoryActive,
		TransactionDate: time.Now().UTC(),
	})
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	entries, total, err := store.History().ListEntries(ctx, 7, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, 3, entries[2].Seq)
}

package services_test

import (
	"context"
	"testing"

	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWorkNumbersCopies(t *testing.T) {
	env := testsupport.NewEnv(t)

	work, copies := env.Work(t, "ALG", 3)
	require.Len(t, copies, 3)
	for i, cp := range copies {
		assert.Equal(t, i+1, cp.CopyNumber)
		require.NotNil(t, cp.Barcode)
		assert.Equal(t, services.BarcodeFor("ALG", i+1), *cp.Barcode)
		assert.Equal(t, domain.CopyAvailable, cp.Status)
	}
	assert.Equal(t, "ALG-001", *copies[0].Barcode)
	assert.Equal(t, "ALG-003", *copies[2].Barcode)

	w := env.AssertRollups(t, work.ID)
	assert.Equal(t, 3, w.TotalCopies)
	assert.Equal(t, 3, w.AvailableCopies)
	assert.Equal(t, 0, w.IssuedCopies)
}

func TestCreateWorkRejectsDuplicateCode(t *testing.T) {
	env := testsupport.NewEnv(t)
	env.Work(t, "DUP", 1)

	_, err := env.Services.Catalog.CreateWork(context.Background(), services.CreateWorkInput{
		Code:  "DUP",
		Title: "Another",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestCreateWorkValidation(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input services.CreateWorkInput
	}{
		{"missing title", services.CreateWorkInput{Code: "A1"}},
		{"bad code", services.CreateWorkInput{Code: "has space", Title: "T"}},
		{"negative copies", services.CreateWorkInput{Code: "A2", Title: "T", CopiesToCreate: -1}},
		{"bad isbn10", services.CreateWorkInput{Code: "A3", Title: "T", ISBN10: "12345"}},
		{"bad isbn13", services.CreateWorkInput{Code: "A4", Title: "T", ISBN13: "97801234567X9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Services.Catalog.CreateWork(ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestNormalizeISBN(t *testing.T) {
	isbn, err := services.NormalizeISBN10("0-306-40615-2")
	require.NoError(t, err)
	assert.Equal(t, "0306406152", isbn)

	isbn, err = services.NormalizeISBN10("080442957x")
	require.NoError(t, err)
	assert.Equal(t, "080442957X", isbn)

	_, err = services.NormalizeISBN10("08044X9570")
	assert.Error(t, err)

	isbn, err = services.NormalizeISBN13("978-0-306-40615-7")
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", isbn)

	_, err = services.NormalizeISBN13("978030640615")
	assert.Error(t, err)
}

func TestDeleteWork(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()

	withCopies, _ := env.Work(t, "KEEP", 1)
	err := env.Services.Catalog.DeleteWork(ctx, withCopies.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	empty, _ := env.Work(t, "GONE", 0)
	require.NoError(t, env.Services.Catalog.DeleteWork(ctx, empty.ID))

	_, err = env.Services.Catalog.GetWork(ctx, empty.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInactiveWorkDoesNotCirculate(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	work, copies := env.Work(t, "OFF", 1)
	member := env.Member(t, "ann", "Student")

	w, err := env.Services.Catalog.SetWorkStatus(ctx, work.ID, domain.WorkInactive)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkInactive, w.Status)

	_, err = env.Services.Transactions.Issue(ctx, services.CirculationInput{
		WorkID: work.ID, CopyID: copies[0].ID, MemberID: member.ID,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	_, err = env.Services.Catalog.SetWorkStatus(ctx, work.ID, "Archived")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestListWorksFiltersAndPages(t *testing.T) {
	env := testsupport.NewEnv(t)
	ctx := context.Background()
	for _, code := range []string{"W1", "W2", "W3"} {
		env.Work(t, code, 0)
	}

	works, total, err := env.Services.Catalog.ListWorks(ctx, "General", "", 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, works, 1)
	assert.Equal(t, "W2", works[0].Code)

	works, total, err = env.Services.Catalog.ListWorks(ctx, "Poetry", "", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, works)
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libratrack-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestMarkReturnedGuardsBorrowedStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = 'RETURNED', returned_at = $2, updated_at = $2 WHERE id = $1 AND status = 'BORROWED'")).
		WithArgs("loan-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	returned, err := repo.MarkReturned(context.Background(), "loan-1", now)
	require.NoError(t, err)
	assert.True(t, returned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReturnedAlreadyReturnedAffectsNothing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectExec("UPDATE loans SET status = 'RETURNED'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	returned, err := repo.MarkReturned(context.Background(), "loan-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, returned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendGuardsBorrowedStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET extended_due_at = $2, updated_at = $3 WHERE id = $1 AND status = 'BORROWED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	extended, err := repo.Extend(context.Background(), "loan-1", time.Now().UTC().AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.False(t, extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLoanByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "request_id", "user_id", "book_id", "status", "due_at", "extended_due_at", "returned_at", "created_at", "updated_at"}).
		AddRow("loan-1", "req-1", "u1", "b1", string(models.LoanBorrowed), now, nil, nil, now, now)
	mock.ExpectQuery("SELECT .* FROM loans l WHERE l.id = ").
		WithArgs("loan-1").
		WillReturnRows(rows)

	loan, err := repo.GetByID(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.Equal(t, models.LoanBorrowed, loan.Status)
	assert.Nil(t, loan.ExtendedDueAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "request_id", "user_id", "book_id", "status", "due_at", "extended_due_at", "returned_at", "created_at", "updated_at"}).
		AddRow("loan-1", nil, "u1", "b1", string(models.LoanBorrowed), now.Add(-48*time.Hour), nil, nil, now, now)
	mock.ExpectQuery("SELECT .* FROM loans l WHERE l.status = 'BORROWED' AND COALESCE").
		WillReturnRows(rows)

	loans, err := repo.FindOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].IsOverdue(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package data

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserAssignmentsDerivesRoleFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM iam.user_branches ub`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "branch_id", "branch_name", "role_id", "role_name",
			"hierarchy_level", "approval_limit", "is_primary",
		}).
			AddRow(10, 7, "Downtown", 2, "Branch Manager", 3, 50000.0, true).
			AddRow(10, 8, "Uptown", 4, "Teller", 1, nil, false))

	assignments, err := dao.GetUserAssignments(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	assert.True(t, assignments[0].IsPrimary)
	assert.Equal(t, "Branch Manager", assignments[0].RoleName)
	require.NotNil(t, assignments[0].ApprovalLimit)
	assert.Equal(t, 50000.0, *assignments[0].ApprovalLimit)

	assert.False(t, assignments[1].IsPrimary)
	assert.Nil(t, assignments[1].ApprovalLimit)
}

func TestSetPrimaryBranchSwitchesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectBegin()
	// The user-row lock must come before any assignment work so concurrent
	// promotions of different branches serialize on it.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT branch_id FROM iam.user_branches`)).
		WithArgs(int64(10), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"branch_id"}).AddRow(8))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE iam.user_branches SET is_primary = FALSE`)).
		WithArgs(int64(10), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE iam.user_branches SET is_primary = TRUE`)).
		WithArgs(int64(10), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = dao.SetPrimaryBranch(context.Background(), 10, 8)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPrimaryBranchUnassignedBranch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT branch_id FROM iam.user_branches`)).
		WithArgs(int64(10), int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"branch_id"}))
	mock.ExpectRollback()

	err = dao.SetPrimaryBranch(context.Background(), 10, 99)
	assert.ErrorIs(t, err, ErrBranchNotAssigned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPrimaryBranchUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	err = dao.SetPrimaryBranch(context.Background(), 404, 8)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignBranchFirstAssignmentBecomesPrimary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectBegin()
	// The user-row lock keeps the first-assignment count stable under
	// concurrent assignments.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM iam.user_branches WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO iam.user_branches (user_id, branch_id, role_id, is_primary)`)).
		WithArgs(int64(10), int64(7), int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Promotion runs even though the caller did not ask for primary.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE iam.user_branches SET is_primary = FALSE`)).
		WithArgs(int64(10), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE iam.user_branches SET is_primary = TRUE`)).
		WithArgs(int64(10), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = dao.AssignBranch(context.Background(), 10, 7, 2, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignBranchAdditionalAssignmentStaysSecondary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &BranchDao{DB: db, Logger: testLogger()}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM iam.user_branches WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO iam.user_branches (user_id, branch_id, role_id, is_primary)`)).
		WithArgs(int64(10), int64(8), int64(4)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = dao.AssignBranch(context.Background(), 10, 8, 4, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

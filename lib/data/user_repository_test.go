package data

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &UserDao{DB: db, Logger: testLogger()}

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN iam.roles r ON r.role_id = u.role_id`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "role_id", "role_code", "hierarchy_level", "is_active",
		}).AddRow(10, 2, "branch_manager", 3, true))

	access, err := dao.GetUserAccess(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), access.UserID)
	assert.True(t, access.RoleID.Valid)
	assert.Equal(t, "branch_manager", access.RoleCode)
	assert.True(t, access.RoleActive)
}

func TestGetUserAccessWithoutRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &UserDao{DB: db, Logger: testLogger()}

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN iam.roles r ON r.role_id = u.role_id`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "role_id", "role_code", "hierarchy_level", "is_active",
		}).AddRow(11, nil, "", 0, false))

	access, err := dao.GetUserAccess(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, access.RoleID.Valid)
	assert.False(t, access.RoleActive)
}

func TestGetUserAccessUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &UserDao{DB: db, Logger: testLogger()}

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN iam.roles r ON r.role_id = u.role_id`)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err = dao.GetUserAccess(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUserIDsByRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &UserDao{DB: db, Logger: testLogger()}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM iam.users WHERE role_id = $1`)).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10).AddRow(11))

	userIDs, err := dao.ListUserIDsByRole(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, userIDs)
}

func TestDeleteUserRemovesDependentRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dao := &UserDao{DB: db, Logger: testLogger()}

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM iam.users u`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "username", "email", "full_name", "cognito_id",
			"role_id", "role_name", "status", "created_at", "updated_at",
		}).AddRow(10, "jdoe", "jdoe@example.com", "Jane Doe", "abc-123", 2, "Branch Manager", "active", now, now))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM iam.user_permission_overrides WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM iam.user_branches WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM iam.users WHERE user_id = $1`)).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := dao.DeleteUser(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.Equal(t, "abc-123", user.CognitoID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

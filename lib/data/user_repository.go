package data

import (
	"context"
	"database/sql"
	"fmt"

	"backoffice/lib/models"

	"github.com/sirupsen/logrus"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetUserAccess retrieves the role context the resolver needs for a user
	GetUserAccess(ctx context.Context, userID int64) (*models.UserAccess, error)

	// GetUserByID retrieves a user with role name joined in
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)

	// GetUserByCognitoID retrieves a user by the Cognito sub claim
	GetUserByCognitoID(ctx context.Context, cognitoID string) (*models.User, error)

	// ListUsers retrieves all users
	ListUsers(ctx context.Context) ([]models.User, error)

	// ListUserIDsByRole retrieves the ids of all users holding a role, used
	// to scope cache invalidation after a grant replacement
	ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error)

	// CreateUser inserts a user row inside the caller's transaction
	CreateUser(ctx context.Context, tx *sql.Tx, user *models.User) (*models.User, error)

	// DeleteUser removes a user and its overrides and branch assignments
	DeleteUser(ctx context.Context, userID int64) (*models.User, error)
}

// UserDao implements UserRepository interface using PostgreSQL
type UserDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const userColumns = `u.user_id, u.username, u.email, u.full_name, u.cognito_id, u.role_id, r.role_name, u.status, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...interface{}) error }, u *models.User) error {
	return row.Scan(
		&u.UserID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.CognitoID,
		&u.RoleID,
		&u.RoleName,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

// GetUserAccess retrieves the role context the resolver needs. A user with
// no role comes back with a null RoleID; the caller treats that as deny-all.
func (dao *UserDao) GetUserAccess(ctx context.Context, userID int64) (*models.UserAccess, error) {
	var access models.UserAccess
	query := `
		SELECT u.user_id, u.role_id,
		       COALESCE(r.role_code, ''), COALESCE(r.hierarchy_level, 0),
		       COALESCE(r.is_active, FALSE)
		FROM iam.users u
		LEFT JOIN iam.roles r ON r.role_id = u.role_id
		WHERE u.user_id = $1
	`

	err := dao.DB.QueryRowContext(ctx, query, userID).Scan(
		&access.UserID,
		&access.RoleID,
		&access.RoleCode,
		&access.HierarchyLevel,
		&access.RoleActive,
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("user_id", userID).Warn("User not found for access lookup")
		return nil, ErrUserNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to get user access")
		return nil, fmt.Errorf("failed to get user access: %w", err)
	}

	return &access, nil
}

// GetUserByID retrieves a user with role name joined in
func (dao *UserDao) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	query := `
		SELECT ` + userColumns + `
		FROM iam.users u
		LEFT JOIN iam.roles r ON r.role_id = u.role_id
		WHERE u.user_id = $1
	`

	err := scanUser(dao.DB.QueryRowContext(ctx, query, userID), &user)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("user_id", userID).Warn("User not found")
		return nil, ErrUserNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to get user")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByCognitoID retrieves a user by the Cognito sub claim
func (dao *UserDao) GetUserByCognitoID(ctx context.Context, cognitoID string) (*models.User, error) {
	var user models.User
	query := `
		SELECT ` + userColumns + `
		FROM iam.users u
		LEFT JOIN iam.roles r ON r.role_id = u.role_id
		WHERE u.cognito_id = $1
	`

	err := scanUser(dao.DB.QueryRowContext(ctx, query, cognitoID), &user)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("cognito_id", cognitoID).Warn("User not found by cognito id")
		return nil, ErrUserNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"error":      err.Error(),
		}).Error("Failed to get user by cognito id")
		return nil, fmt.Errorf("failed to get user by cognito id: %w", err)
	}

	return &user, nil
}

// ListUsers retrieves all users
func (dao *UserDao) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM iam.users u
		LEFT JOIN iam.roles r ON r.role_id = u.role_id
		ORDER BY u.username ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query users")
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan user row")
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating user rows")
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	dao.Logger.WithField("count", len(users)).Debug("Successfully retrieved users")

	return users, nil
}

// ListUserIDsByRole retrieves the ids of all users holding a role
func (dao *UserDao) ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT user_id FROM iam.users WHERE role_id = $1
	`, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to query users by role")
		return nil, fmt.Errorf("failed to query users by role: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan user id row")
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating user id rows")
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}

	return userIDs, nil
}

// CreateUser inserts a user row inside the caller's transaction. The caller
// owns the transaction because user provisioning spans Cognito and the
// database and must roll the row back when the Cognito side fails.
func (dao *UserDao) CreateUser(ctx context.Context, tx *sql.Tx, user *models.User) (*models.User, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO iam.users (username, email, full_name, cognito_id, role_id, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING user_id, status, created_at, updated_at
	`, user.Username, user.Email, user.FullName, user.CognitoID, user.RoleID).Scan(
		&user.UserID, &user.Status, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"username": user.Username,
			"error":    err.Error(),
		}).Error("Failed to create user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":  user.UserID,
		"username": user.Username,
	}).Info("Successfully created user")

	return user, nil
}

// DeleteUser removes a user and its overrides and branch assignments, and
// returns the deleted row so the caller can clean up the Cognito side.
func (dao *UserDao) DeleteUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := dao.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for user deletion")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM iam.user_permission_overrides WHERE user_id = $1`,
		`DELETE FROM iam.user_branches WHERE user_id = $1`,
		`DELETE FROM iam.users WHERE user_id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, userID); err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"user_id": userID,
				"error":   err.Error(),
			}).Error("Failed to delete user data")
			return nil, fmt.Errorf("failed to delete user data: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit user deletion transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithField("user_id", userID).Info("Successfully deleted user")

	return user, nil
}

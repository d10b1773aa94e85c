package data

import (
	"context"
	"database/sql"
	"fmt"

	"backoffice/lib/models"

	"github.com/sirupsen/logrus"
)

// OverrideRepository defines the interface for user permission override operations
type OverrideRepository interface {
	// GetUserOverrides retrieves a user's overrides partitioned into granted
	// and revoked permission code sets
	GetUserOverrides(ctx context.Context, userID int64) (*models.UserOverrides, error)

	// GetUserOverrideRows retrieves the raw override rows for a user
	GetUserOverrideRows(ctx context.Context, userID int64) ([]models.PermissionOverride, error)

	// ReplaceUserOverrides replaces the user's entire override set in one
	// transaction and returns the number of overrides written
	ReplaceUserOverrides(ctx context.Context, userID int64, overrides []models.PermissionOverride) (int, error)
}

// OverrideDao implements OverrideRepository interface using PostgreSQL
type OverrideDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// GetUserOverrides retrieves a user's overrides partitioned by direction
func (dao *OverrideDao) GetUserOverrides(ctx context.Context, userID int64) (*models.UserOverrides, error) {
	query := `
		SELECT p.permission_code, upo.is_granted
		FROM iam.user_permission_overrides upo
		JOIN iam.permissions p ON p.permission_id = upo.permission_id
		WHERE upo.user_id = $1
		ORDER BY p.permission_code ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to query user overrides")
		return nil, fmt.Errorf("failed to query user overrides: %w", err)
	}
	defer rows.Close()

	overrides := &models.UserOverrides{}
	for rows.Next() {
		var code string
		var isGranted bool
		if err := rows.Scan(&code, &isGranted); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan override row")
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		if isGranted {
			overrides.Granted = append(overrides.Granted, code)
		} else {
			overrides.Revoked = append(overrides.Revoked, code)
		}
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating override rows")
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}

	return overrides, nil
}

// GetUserOverrideRows retrieves the raw override rows for a user
func (dao *OverrideDao) GetUserOverrideRows(ctx context.Context, userID int64) ([]models.PermissionOverride, error) {
	query := `
		SELECT permission_id, is_granted
		FROM iam.user_permission_overrides
		WHERE user_id = $1
		ORDER BY permission_id ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to query override rows")
		return nil, fmt.Errorf("failed to query override rows: %w", err)
	}
	defer rows.Close()

	var overrides []models.PermissionOverride
	for rows.Next() {
		var override models.PermissionOverride
		if err := rows.Scan(&override.PermissionID, &override.IsGranted); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan override row")
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, override)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating override rows")
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}

	return overrides, nil
}

// ReplaceUserOverrides replaces the user's entire override set. The user row
// is locked for the duration of the transaction so concurrent replacements
// for the same user serialize. An empty input legally clears all overrides,
// restoring the role's raw permission set. Later entries for the same
// permission win over earlier ones, so the one-row-per-pair invariant holds.
func (dao *OverrideDao) ReplaceUserOverrides(ctx context.Context, userID int64, overrides []models.PermissionOverride) (int, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for override replacement")
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Validate the user exists and serialize concurrent replacements.
	var lockedID int64
	err = tx.QueryRowContext(ctx, `
		SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&lockedID)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("user_id", userID).Warn("User not found for override replacement")
		return 0, ErrUserNotFound
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to lock user for override replacement")
		return 0, fmt.Errorf("failed to lock user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM iam.user_permission_overrides WHERE user_id = $1
	`, userID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to remove existing overrides")
		return 0, fmt.Errorf("failed to remove existing overrides: %w", err)
	}

	inserted := 0
	for _, override := range collapseOverrides(overrides) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO iam.user_permission_overrides (user_id, permission_id, is_granted)
			VALUES ($1, $2, $3)
		`, userID, override.PermissionID, override.IsGranted)

		if err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"user_id":       userID,
				"permission_id": override.PermissionID,
				"error":         err.Error(),
			}).Error("Failed to insert override")
			return 0, fmt.Errorf("failed to insert override: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit override replacement transaction")
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":        userID,
		"override_count": inserted,
	}).Info("Successfully replaced user overrides")

	return inserted, nil
}

// collapseOverrides keeps one entry per permission id, last write wins.
func collapseOverrides(overrides []models.PermissionOverride) []models.PermissionOverride {
	index := make(map[int64]int, len(overrides))
	out := make([]models.PermissionOverride, 0, len(overrides))
	for _, override := range overrides {
		if i, ok := index[override.PermissionID]; ok {
			out[i] = override
			continue
		}
		index[override.PermissionID] = len(out)
		out = append(out, override)
	}
	return out
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice/lib/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PermissionRepository defines the interface for permission catalog operations
type PermissionRepository interface {
	// CreatePermission creates a new catalog entry
	CreatePermission(ctx context.Context, permission *models.Permission) (*models.Permission, error)

	// GetPermissions retrieves the catalog, optionally filtered by module
	GetPermissions(ctx context.Context, module string) ([]models.Permission, error)

	// GetPermissionByID retrieves a specific permission by ID
	GetPermissionByID(ctx context.Context, permissionID int64) (*models.Permission, error)

	// UpdatePermission updates the cosmetic fields of an existing permission
	UpdatePermission(ctx context.Context, permissionID int64, update *models.UpdatePermissionRequest) (*models.Permission, error)

	// DeletePermission deletes a permission unless a grant or override references it
	DeletePermission(ctx context.Context, permissionID int64) error
}

// PermissionDao implements PermissionRepository interface using PostgreSQL
type PermissionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const permissionColumns = `permission_id, permission_code, permission_name, module, action, table_ref, description, created_at, updated_at`

func scanPermission(row interface{ Scan(...interface{}) error }, p *models.Permission) error {
	return row.Scan(
		&p.PermissionID,
		&p.PermissionCode,
		&p.PermissionName,
		&p.Module,
		&p.Action,
		&p.TableRef,
		&p.Description,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// CreatePermission creates a new catalog entry
func (dao *PermissionDao) CreatePermission(ctx context.Context, permission *models.Permission) (*models.Permission, error) {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO iam.permissions (permission_code, permission_name, module, action, table_ref, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING permission_id, created_at, updated_at
	`, permission.PermissionCode, permission.PermissionName, permission.Module,
		permission.Action, permission.TableRef, permission.Description).Scan(
		&permission.PermissionID, &permission.CreatedAt, &permission.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			dao.Logger.WithField("permission_code", permission.PermissionCode).
				Warn("Duplicate permission code on create")
			return nil, ErrDuplicateCode
		}
		dao.Logger.WithFields(logrus.Fields{
			"permission_code": permission.PermissionCode,
			"error":           err.Error(),
		}).Error("Failed to create permission")
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"permission_id":   permission.PermissionID,
		"permission_code": permission.PermissionCode,
	}).Info("Successfully created permission")

	return permission, nil
}

// GetPermissions retrieves the catalog, optionally filtered by module
func (dao *PermissionDao) GetPermissions(ctx context.Context, module string) ([]models.Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM iam.permissions
		WHERE ($1 = '' OR module = $1)
		ORDER BY module, permission_name ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, module)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"module": module,
			"error":  err.Error(),
		}).Error("Failed to query permissions")
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var permissions []models.Permission
	for rows.Next() {
		var permission models.Permission
		if err := scanPermission(rows, &permission); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan permission row")
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating permission rows")
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"module": module,
		"count":  len(permissions),
	}).Debug("Successfully retrieved permissions")

	return permissions, nil
}

// GetPermissionByID retrieves a specific permission by ID
func (dao *PermissionDao) GetPermissionByID(ctx context.Context, permissionID int64) (*models.Permission, error) {
	var permission models.Permission
	query := `
		SELECT ` + permissionColumns + `
		FROM iam.permissions
		WHERE permission_id = $1
	`

	err := scanPermission(dao.DB.QueryRowContext(ctx, query, permissionID), &permission)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found")
		return nil, ErrPermissionNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to get permission")
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &permission, nil
}

// UpdatePermission updates the cosmetic fields of an existing permission.
// The code, module and action are immutable once referenced, so they are not
// touched here at all.
func (dao *PermissionDao) UpdatePermission(ctx context.Context, permissionID int64, update *models.UpdatePermissionRequest) (*models.Permission, error) {
	query := `
		UPDATE iam.permissions
		SET permission_name = COALESCE(NULLIF($1, ''), permission_name),
		    description = COALESCE(NULLIF($2, ''), description),
		    updated_at = NOW()
		WHERE permission_id = $3
		RETURNING ` + permissionColumns + `
	`

	var updated models.Permission
	err := scanPermission(dao.DB.QueryRowContext(ctx, query,
		update.PermissionName,
		update.Description,
		permissionID,
	), &updated)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found for update")
		return nil, ErrPermissionNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to update permission")
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"permission_id":   permissionID,
		"permission_code": updated.PermissionCode,
	}).Info("Successfully updated permission")

	return &updated, nil
}

// DeletePermission deletes a permission unless a role grant or a user
// override still references it, in which case the catalog is left unchanged.
func (dao *PermissionDao) DeletePermission(ctx context.Context, permissionID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for permission deletion")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var references int
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM iam.role_permissions WHERE permission_id = $1)
		     + (SELECT COUNT(*) FROM iam.user_permission_overrides WHERE permission_id = $1)
	`, permissionID).Scan(&references)

	if err != nil {
		dao.Logger.WithError(err).Error("Failed to count permission references")
		return fmt.Errorf("failed to count permission references: %w", err)
	}

	if references > 0 {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"references":    references,
		}).Warn("Permission still referenced, refusing deletion")
		return ErrPermissionInUse
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM iam.permissions WHERE permission_id = $1
	`, permissionID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to delete permission")
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found for deletion")
		return ErrPermissionNotFound
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit permission deletion transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithField("permission_id", permissionID).Info("Successfully deleted permission")

	return nil
}

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

// RoleRepository defines the interface for role data operations
type RoleRepository interface {
	// CreateRole creates a new role
	CreateRole(ctx context.Context, role *models.Role) (*models.Role, error)

	// GetRoles retrieves all roles
	GetRoles(ctx context.Context) ([]models.Role, error)

	// GetRoleByID retrieves a specific role by ID
	GetRoleByID(ctx context.Context, roleID int64) (*models.Role, error)

	// UpdateRole updates an existing role
	UpdateRole(ctx context.Context, roleID int64, update *models.UpdateRoleRequest) (*models.Role, error)

	// GetRoleWithPermissions retrieves a role with its granted permissions
	GetRoleWithPermissions(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error)

	// GetRolePermissionCodes retrieves the permission codes granted to a role
	GetRolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)

	// ReplaceRolePermissions replaces the role's entire grant set in one
	// transaction and returns the number of grants written
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (int, error)
}

// RoleDao implements RoleRepository interface using PostgreSQL
type RoleDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const roleColumns = `role_id, role_code, role_name, hierarchy_level, approval_limit, is_active, created_at, updated_at`

func scanRole(row interface{ Scan(...interface{}) error }, r *models.Role) error {
	return row.Scan(
		&r.RoleID,
		&r.RoleCode,
		&r.RoleName,
		&r.HierarchyLevel,
		&r.ApprovalLimit,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
}

// CreateRole creates a new role
func (dao *RoleDao) CreateRole(ctx context.Context, role *models.Role) (*models.Role, error) {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO iam.roles (role_code, role_name, hierarchy_level, approval_limit, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING role_id, is_active, created_at, updated_at
	`, role.RoleCode, role.RoleName, role.HierarchyLevel, role.ApprovalLimit).Scan(
		&role.RoleID, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			dao.Logger.WithField("role_code", role.RoleCode).Warn("Duplicate role code on create")
			return nil, ErrDuplicateCode
		}
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			dao.Logger.WithField("role_code", role.RoleCode).Warn("Check constraint violation on role create")
			return nil, ErrCheckViolation
		}
		dao.Logger.WithFields(logrus.Fields{
			"role_code": role.RoleCode,
			"error":     err.Error(),
		}).Error("Failed to create role")
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":   role.RoleID,
		"role_code": role.RoleCode,
	}).Info("Successfully created role")

	return role, nil
}

// GetRoles retrieves all roles ordered by authority
func (dao *RoleDao) GetRoles(ctx context.Context) ([]models.Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM iam.roles
		ORDER BY hierarchy_level DESC, role_name ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query roles")
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := scanRole(rows, &role); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan role row")
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating role rows")
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	dao.Logger.WithField("count", len(roles)).Debug("Successfully retrieved roles")

	return roles, nil
}

// GetRoleByID retrieves a specific role by ID
func (dao *RoleDao) GetRoleByID(ctx context.Context, roleID int64) (*models.Role, error) {
	var role models.Role
	query := `
		SELECT ` + roleColumns + `
		FROM iam.roles
		WHERE role_id = $1
	`

	err := scanRole(dao.DB.QueryRowContext(ctx, query, roleID), &role)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found")
		return nil, ErrRoleNotFound
	}

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to get role")
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// UpdateRole updates an existing role
func (dao *RoleDao) UpdateRole(ctx context.Context, roleID int64, update *models.UpdateRoleRequest) (*models.Role, error) {
	query := `
		UPDATE iam.roles
		SET role_name = COALESCE(NULLIF($1, ''), role_name),
		    hierarchy_level = COALESCE($2, hierarchy_level),
		    approval_limit = COALESCE($3, approval_limit),
		    is_active = COALESCE($4, is_active),
		    updated_at = NOW()
		WHERE role_id = $5
		RETURNING ` + roleColumns + `
	`

	var updated models.Role
	err := scanRole(dao.DB.QueryRowContext(ctx, query,
		update.RoleName,
		update.HierarchyLevel,
		update.ApprovalLimit,
		update.IsActive,
		roleID,
	), &updated)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found for update")
		return nil, ErrRoleNotFound
	}

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			dao.Logger.WithField("role_id", roleID).Warn("Check constraint violation on role update")
			return nil, ErrCheckViolation
		}
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to update role")
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":   roleID,
		"role_code": updated.RoleCode,
	}).Info("Successfully updated role")

	return &updated, nil
}

// GetRoleWithPermissions retrieves a role with its granted permissions
func (dao *RoleDao) GetRoleWithPermissions(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error) {
	role, err := dao.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.permission_id, p.permission_code, p.permission_name, p.module, p.action,
		       p.table_ref, p.description, p.created_at, p.updated_at
		FROM iam.permissions p
		JOIN iam.role_permissions rp ON p.permission_id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module, p.permission_name ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to query role permissions")
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
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

	return &models.RoleWithPermissions{
		Role:        *role,
		Permissions: permissions,
	}, nil
}

// GetRolePermissionCodes retrieves the permission codes granted to a role
func (dao *RoleDao) GetRolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	query := `
		SELECT p.permission_code
		FROM iam.permissions p
		JOIN iam.role_permissions rp ON p.permission_id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.permission_code ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to query role permission codes")
		return nil, fmt.Errorf("failed to query role permission codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan permission code row")
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating permission code rows")
		return nil, fmt.Errorf("error iterating permission codes: %w", err)
	}

	return codes, nil
}

// ReplaceRolePermissions replaces the role's entire grant set. The role row
// is locked for the duration of the transaction so two concurrent
// replacements for the same role serialize instead of interleaving their
// delete and insert steps. Duplicate ids in the input collapse to one grant.
func (dao *RoleDao) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (int, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for grant replacement")
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Validate the role exists and serialize concurrent replacements.
	var lockedID int64
	err = tx.QueryRowContext(ctx, `
		SELECT role_id FROM iam.roles WHERE role_id = $1 FOR UPDATE
	`, roleID).Scan(&lockedID)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found for grant replacement")
		return 0, ErrRoleNotFound
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to lock role for grant replacement")
		return 0, fmt.Errorf("failed to lock role: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM iam.role_permissions WHERE role_id = $1
	`, roleID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to remove existing role grants")
		return 0, fmt.Errorf("failed to remove existing grants: %w", err)
	}

	inserted := 0
	for _, permissionID := range dedupeIDs(permissionIDs) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO iam.role_permissions (role_id, permission_id)
			VALUES ($1, $2)
		`, roleID, permissionID)

		if err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"role_id":       roleID,
				"permission_id": permissionID,
				"error":         err.Error(),
			}).Error("Failed to insert role grant")
			return 0, fmt.Errorf("failed to insert grant: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit grant replacement transaction")
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":     roleID,
		"grant_count": inserted,
	}).Info("Successfully replaced role permissions")

	return inserted, nil
}

// dedupeIDs collapses duplicate ids while preserving input order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package models

import (
	"database/sql"
	"time"
)

// Role represents a named permission bundle from the iam.roles table.
// HierarchyLevel ranks authority in [1,100]; higher means more authority.
type Role struct {
	RoleID         int64           `json:"role_id"`
	RoleCode       string          `json:"role_code"`
	RoleName       string          `json:"role_name"`
	HierarchyLevel int             `json:"hierarchy_level"`
	ApprovalLimit  sql.NullFloat64 `json:"approval_limit,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Bounds of the hierarchy level band enforced by the iam.roles CHECK
// constraint. Handlers validate against these so out-of-range input is a
// client error rather than a store failure.
const (
	MinHierarchyLevel = 1
	MaxHierarchyLevel = 100
)

// ValidHierarchyLevel reports whether level falls inside [1,100].
func ValidHierarchyLevel(level int) bool {
	return level >= MinHierarchyLevel && level <= MaxHierarchyLevel
}

// CreateRoleRequest represents the request payload for creating a new role
type CreateRoleRequest struct {
	RoleCode       string   `json:"role_code"`
	RoleName       string   `json:"role_name"`
	HierarchyLevel int      `json:"hierarchy_level"`
	ApprovalLimit  *float64 `json:"approval_limit,omitempty"`
}

// UpdateRoleRequest represents the request payload for updating an existing role
type UpdateRoleRequest struct {
	RoleName       string   `json:"role_name,omitempty"`
	HierarchyLevel *int     `json:"hierarchy_level,omitempty"`
	ApprovalLimit  *float64 `json:"approval_limit,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// RoleListResponse represents the response for listing roles
type RoleListResponse struct {
	Roles []Role `json:"roles"`
	Total int    `json:"total"`
}

// RoleWithPermissions represents a role with its granted permissions
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

package models

import (
	"database/sql"
	"time"
)

// Permission represents one grantable capability from the iam.permissions catalog.
// The code follows the <module>.<action> convention and is the stable wire
// identifier consumed by front-end route guards.
type Permission struct {
	PermissionID   int64          `json:"permission_id"`
	PermissionCode string         `json:"permission_code"`
	PermissionName string         `json:"permission_name"`
	Module         string         `json:"module"`
	Action         string         `json:"action"`
	TableRef       sql.NullString `json:"table_ref,omitempty"`
	Description    sql.NullString `json:"description,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CreatePermissionRequest represents the request payload for creating a new permission
type CreatePermissionRequest struct {
	PermissionCode string `json:"permission_code"`
	PermissionName string `json:"permission_name"`
	Module         string `json:"module"`
	Action         string `json:"action"`
	TableRef       string `json:"table_ref,omitempty"`
	Description    string `json:"description,omitempty"`
}

// UpdatePermissionRequest updates cosmetic fields only; the code, module and
// action are immutable once a grant or override references the permission.
type UpdatePermissionRequest struct {
	PermissionName string `json:"permission_name,omitempty"`
	Description    string `json:"description,omitempty"`
}

// PermissionListResponse represents the response for listing permissions
type PermissionListResponse struct {
	Permissions []Permission `json:"permissions"`
	Total       int          `json:"total"`
}

// ReplaceRolePermissionsRequest carries the full replacement grant set for a role.
// An empty list legally clears every grant for the role.
type ReplaceRolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

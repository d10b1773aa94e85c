package models

import (
	"database/sql"
	"time"
)

// User represents a dashboard user from the iam.users table.
// Each user carries exactly one active role reference.
type User struct {
	UserID    int64          `json:"user_id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	CognitoID string         `json:"cognito_id,omitempty"`
	RoleID    sql.NullInt64  `json:"role_id,omitempty"`
	RoleName  sql.NullString `json:"role_name,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UserAccess is the slice of user state the resolver needs: the role
// reference and its authorization attributes, joined from iam.roles.
type UserAccess struct {
	UserID         int64
	RoleID         sql.NullInt64
	RoleCode       string
	HierarchyLevel int
	RoleActive     bool
}

// CreateUserRequest represents the request payload for provisioning a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleID   int64  `json:"role_id"`
}

// UserListResponse represents the response for listing users
type UserListResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// EffectivePermissionsResponse is the resolved permission set for a user.
// For super admins the set is the single wildcard element ["*"].
type EffectivePermissionsResponse struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}

package models

// PermissionOverride is a per-user exception row from
// iam.user_permission_overrides. IsGranted true adds a permission the role
// lacks; false removes one the role grants. At most one row exists per
// (user, permission) pair.
type PermissionOverride struct {
	PermissionID int64 `json:"permission_id"`
	IsGranted    bool  `json:"is_granted"`
}

// OverrideEntry is one override in a bulk-replace request. IsGranted is a
// pointer so a missing field can be rejected instead of defaulting to revoke.
type OverrideEntry struct {
	PermissionID int64 `json:"permission_id"`
	IsGranted    *bool `json:"is_granted"`
}

// ReplaceOverridesRequest carries the full replacement override set for a
// user. An empty list clears all overrides, restoring the raw role set.
type ReplaceOverridesRequest struct {
	Overrides []OverrideEntry `json:"overrides"`
}

// UserOverrides is the partitioned override state for one user.
type UserOverrides struct {
	Granted []string // permission codes explicitly granted
	Revoked []string // permission codes explicitly revoked
}

// PermissionReview is the settings-screen view of one catalog entry for a
// specific user: whether the role grants it and whether an override touches it.
type PermissionReview struct {
	Permission
	HasRolePermission bool   `json:"has_role_permission"`
	OverrideStatus    string `json:"override_status,omitempty"` // "granted", "revoked" or empty
}

// UserPermissionReviewResponse groups the review rows for the settings UI.
type UserPermissionReviewResponse struct {
	UserID      int64              `json:"user_id"`
	Username    string             `json:"username"`
	RoleName    string             `json:"role_name,omitempty"`
	Permissions []PermissionReview `json:"permissions"`
	Modules     []string           `json:"modules"`
}

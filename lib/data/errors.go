package data

import "errors"

// Sentinel errors returned by the repositories. Handlers match these with
// errors.Is and map them to HTTP status codes; anything else is treated as a
// store failure.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrPermissionInUse guards catalog deletion: a permission referenced by
	// any role grant or user override cannot be removed.
	ErrPermissionInUse = errors.New("permission is referenced by grants or overrides")

	// ErrDuplicateCode signals a permission_code or role_code uniqueness violation.
	ErrDuplicateCode = errors.New("code already exists")

	// ErrCheckViolation signals input rejected by a table CHECK constraint,
	// e.g. a hierarchy_level outside [1,100].
	ErrCheckViolation = errors.New("value violates a check constraint")

	// ErrBranchNotAssigned signals a primary-branch promotion for a branch the
	// user has no assignment row for.
	ErrBranchNotAssigned = errors.New("user is not assigned to branch")
)

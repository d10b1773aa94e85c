package models

// BranchAssignment is the derived read model for one (user, branch) row.
// RoleName, HierarchyLevel and ApprovalLimit are joined from iam.roles at
// query time rather than stored on the assignment row.
type BranchAssignment struct {
	UserID         int64    `json:"user_id"`
	BranchID       int64    `json:"branch_id"`
	BranchName     string   `json:"branch_name"`
	RoleID         int64    `json:"role_id"`
	RoleName       string   `json:"role_name"`
	HierarchyLevel int      `json:"hierarchy_level"`
	ApprovalLimit  *float64 `json:"approval_limit,omitempty"`
	IsPrimary      bool     `json:"is_primary"`
}

// BranchAssignmentListResponse represents the response for listing a user's branches
type BranchAssignmentListResponse struct {
	Assignments []BranchAssignment `json:"assignments"`
	Total       int                `json:"total"`
}

// AssignBranchRequest assigns a user to a branch, optionally promoting it to
// primary in the same operation.
type AssignBranchRequest struct {
	BranchID    int64 `json:"branch_id"`
	RoleID      int64 `json:"role_id"`
	MakePrimary bool  `json:"make_primary"`
}

// SetPrimaryBranchRequest promotes an existing assignment to primary.
type SetPrimaryBranchRequest struct {
	BranchID int64 `json:"branch_id"`
}

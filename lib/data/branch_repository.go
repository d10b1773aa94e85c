package data

import (
	"context"
	"database/sql"
	"fmt"

	"backoffice/lib/models"

	"github.com/sirupsen/logrus"
)

// BranchRepository defines the interface for branch assignment operations
type BranchRepository interface {
	// GetUserAssignments retrieves the user's branch assignments as a derived
	// read model with role name, hierarchy level and approval limit joined in
	GetUserAssignments(ctx context.Context, userID int64) ([]models.BranchAssignment, error)

	// SetPrimaryBranch promotes an existing assignment to primary, clearing
	// the previous primary in the same transaction
	SetPrimaryBranch(ctx context.Context, userID, branchID int64) error

	// AssignBranch creates or updates an assignment, optionally promoting it
	// to primary in the same transaction
	AssignBranch(ctx context.Context, userID, branchID, roleID int64, makePrimary bool) error
}

// BranchDao implements BranchRepository interface using PostgreSQL
type BranchDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// GetUserAssignments retrieves the user's branch assignments. Role name,
// hierarchy level and approval limit come from iam.roles at query time; no
// denormalized copies live on the assignment row.
func (dao *BranchDao) GetUserAssignments(ctx context.Context, userID int64) ([]models.BranchAssignment, error) {
	query := `
		SELECT ub.user_id, ub.branch_id, b.branch_name, ub.role_id, r.role_name,
		       r.hierarchy_level, r.approval_limit, ub.is_primary
		FROM iam.user_branches ub
		JOIN iam.branches b ON b.branch_id = ub.branch_id
		JOIN iam.roles r ON r.role_id = ub.role_id
		WHERE ub.user_id = $1
		ORDER BY ub.is_primary DESC, b.branch_name ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to query branch assignments")
		return nil, fmt.Errorf("failed to query branch assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.BranchAssignment
	for rows.Next() {
		var assignment models.BranchAssignment
		var approvalLimit sql.NullFloat64
		err := rows.Scan(
			&assignment.UserID,
			&assignment.BranchID,
			&assignment.BranchName,
			&assignment.RoleID,
			&assignment.RoleName,
			&assignment.HierarchyLevel,
			&approvalLimit,
			&assignment.IsPrimary,
		)
		if err != nil {
			dao.Logger.WithError(err).Error("Failed to scan branch assignment row")
			return nil, fmt.Errorf("failed to scan branch assignment: %w", err)
		}
		if approvalLimit.Valid {
			assignment.ApprovalLimit = &approvalLimit.Float64
		}
		assignments = append(assignments, assignment)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating branch assignment rows")
		return nil, fmt.Errorf("error iterating branch assignments: %w", err)
	}

	return assignments, nil
}

// SetPrimaryBranch promotes an existing assignment to primary. The user row
// is locked first, serializing all primary-flag work for the user; two
// concurrent promotions of different branches would otherwise take disjoint
// assignment-row locks and commit two primaries. Promotion of a branch the
// user is not assigned to fails with ErrBranchNotAssigned instead of
// fabricating an assignment.
func (dao *BranchDao) SetPrimaryBranch(ctx context.Context, userID, branchID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for primary branch switch")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err = dao.lockUserInTx(ctx, tx, userID); err != nil {
		return err
	}

	var assignedBranchID int64
	err = tx.QueryRowContext(ctx, `
		SELECT branch_id FROM iam.user_branches
		WHERE user_id = $1 AND branch_id = $2
	`, userID, branchID).Scan(&assignedBranchID)

	if err == sql.ErrNoRows {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"branch_id": branchID,
		}).Warn("Primary promotion for unassigned branch")
		return ErrBranchNotAssigned
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to check branch assignment")
		return fmt.Errorf("failed to check branch assignment: %w", err)
	}

	if err = dao.promoteInTx(ctx, tx, userID, branchID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit primary branch switch")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"branch_id": branchID,
	}).Info("Successfully switched primary branch")

	return nil
}

// AssignBranch creates or updates the assignment row, then optionally
// promotes it to primary in the same transaction. A user's first assignment
// becomes primary regardless of makePrimary so the exactly-one-primary
// invariant holds from the first row on. The user-row lock keeps the
// first-assignment count stable: two concurrent first assignments would
// otherwise both count zero rows and both promote.
func (dao *BranchDao) AssignBranch(ctx context.Context, userID, branchID, roleID int64, makePrimary bool) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for branch assignment")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err = dao.lockUserInTx(ctx, tx, userID); err != nil {
		return err
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM iam.user_branches WHERE user_id = $1
	`, userID).Scan(&existing)

	if err != nil {
		dao.Logger.WithError(err).Error("Failed to count branch assignments")
		return fmt.Errorf("failed to count branch assignments: %w", err)
	}

	if existing == 0 {
		makePrimary = true
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO iam.user_branches (user_id, branch_id, role_id, is_primary)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (user_id, branch_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`, userID, branchID, roleID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"branch_id": branchID,
			"role_id":   roleID,
			"error":     err.Error(),
		}).Error("Failed to upsert branch assignment")
		return fmt.Errorf("failed to upsert branch assignment: %w", err)
	}

	if makePrimary {
		if err = dao.promoteInTx(ctx, tx, userID, branchID); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit branch assignment")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"branch_id":    branchID,
		"role_id":      roleID,
		"make_primary": makePrimary,
	}).Info("Successfully assigned branch")

	return nil
}

// lockUserInTx validates the user exists and serializes all assignment and
// primary-flag work for that user on the user row.
func (dao *BranchDao) lockUserInTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	var lockedID int64
	err := tx.QueryRowContext(ctx, `
		SELECT user_id FROM iam.users WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&lockedID)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("user_id", userID).Warn("User not found for branch assignment change")
		return ErrUserNotFound
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to lock user for branch assignment change")
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// promoteInTx clears the previous primary flag and sets the new one inside
// the caller's transaction, so no reader sees zero or two primaries.
func (dao *BranchDao) promoteInTx(ctx context.Context, tx *sql.Tx, userID, branchID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE iam.user_branches SET is_primary = FALSE
		WHERE user_id = $1 AND is_primary = TRUE AND branch_id <> $2
	`, userID, branchID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to clear previous primary branch")
		return fmt.Errorf("failed to clear previous primary: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE iam.user_branches SET is_primary = TRUE
		WHERE user_id = $1 AND branch_id = $2
	`, userID, branchID)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"branch_id": branchID,
			"error":     err.Error(),
		}).Error("Failed to set primary branch")
		return fmt.Errorf("failed to set primary branch: %w", err)
	}

	return nil
}

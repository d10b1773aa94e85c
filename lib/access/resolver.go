// Package access implements permission resolution and authorization for the
// back-office dashboard. The resolver computes a user's effective permission
// set from role grants and per-user overrides; the guard consumes that set to
// allow or deny routes and actions.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"backoffice/lib/cache"
	"backoffice/lib/constants"
	"backoffice/lib/data"
	"backoffice/lib/models"

	"github.com/sirupsen/logrus"
)

// UserAccessStore is the slice of the user repository the resolver needs.
type UserAccessStore interface {
	GetUserAccess(ctx context.Context, userID int64) (*models.UserAccess, error)
}

// RoleGrantStore is the slice of the role repository the resolver needs.
type RoleGrantStore interface {
	GetRolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
}

// OverrideStore is the slice of the override repository the resolver needs.
type OverrideStore interface {
	GetUserOverrides(ctx context.Context, userID int64) (*models.UserOverrides, error)
}

// Resolver computes effective permission sets. Cache is optional; when set,
// resolved sets are served from it and written back on miss.
type Resolver struct {
	Users     UserAccessStore
	Roles     RoleGrantStore
	Overrides OverrideStore
	Cache     cache.PermissionCache
	Logger    *logrus.Logger
}

// Resolve computes the effective permission set for a user:
//
//	effective = (role grants minus revoked overrides) plus granted overrides
//
// A member of the reserved super-admin role resolves to the wildcard
// sentinel ["*"] regardless of explicit grants or overrides. An unknown
// user, a user without a role, or an inactive role all resolve to the empty
// set (deny-all) without error; only store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, userID int64) ([]string, error) {
	if r.Cache != nil {
		if codes, ok := r.Cache.Get(ctx, userID); ok {
			r.Logger.WithFields(logrus.Fields{
				"user_id": userID,
				"count":   len(codes),
			}).Debug("Effective permissions served from cache")
			return codes, nil
		}
	}

	access, err := r.Users.GetUserAccess(ctx, userID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			r.Logger.WithField("user_id", userID).Debug("Unknown user resolves to empty set")
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to resolve user access: %w", err)
	}

	codes, err := r.resolveAccess(ctx, access)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		r.Cache.Set(ctx, userID, codes)
	}

	return codes, nil
}

func (r *Resolver) resolveAccess(ctx context.Context, access *models.UserAccess) ([]string, error) {
	// The wildcard is tied to the role code itself, so a stray explicit
	// grant on the super-admin role cannot demote it to a single permission.
	if access.RoleActive && access.RoleCode == constants.SuperAdminRoleCode {
		return []string{constants.WildcardPermission}, nil
	}

	if !access.RoleID.Valid || !access.RoleActive {
		r.Logger.WithFields(logrus.Fields{
			"user_id":  access.UserID,
			"has_role": access.RoleID.Valid,
		}).Debug("User without active role resolves to empty set")
		return []string{}, nil
	}

	rolePermissions, err := r.Roles.GetRolePermissionCodes(ctx, access.RoleID.Int64)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role grants: %w", err)
	}

	overrides, err := r.Overrides.GetUserOverrides(ctx, access.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user overrides: %w", err)
	}

	return mergePermissions(rolePermissions, overrides), nil
}

// mergePermissions applies overrides to the role's grant set. Revokes win
// over grants, so conflicting duplicate override data errs on the side of
// fewer permissions. The result is deduplicated and sorted.
func mergePermissions(rolePermissions []string, overrides *models.UserOverrides) []string {
	revoked := make(map[string]bool, len(overrides.Revoked))
	for _, code := range overrides.Revoked {
		revoked[code] = true
	}

	effective := make(map[string]bool, len(rolePermissions)+len(overrides.Granted))
	for _, code := range rolePermissions {
		if !revoked[code] {
			effective[code] = true
		}
	}
	for _, code := range overrides.Granted {
		if !revoked[code] {
			effective[code] = true
		}
	}

	codes := make([]string, 0, len(effective))
	for code := range effective {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsWildcard reports whether an effective set is the super-admin sentinel.
func IsWildcard(codes []string) bool {
	return len(codes) == 1 && codes[0] == constants.WildcardPermission
}

package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"backoffice/lib/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerGuard(t *testing.T, grants []string) *Guard {
	t.Helper()
	return &Guard{
		Resolver: &Resolver{
			Users: &fakeUserStore{access: map[int64]*models.UserAccess{
				10: managerAccess(10, 2),
			}},
			Roles:     &fakeRoleStore{grants: map[int64][]string{2: grants}},
			Overrides: &fakeOverrideStore{},
			Logger:    testLogger(),
		},
		Routes: DefaultRouteTable(),
		Logger: testLogger(),
	}
}

func TestAuthorizePermissionAllowsGrantedCode(t *testing.T) {
	guard := managerGuard(t, []string{"branches.view"})
	subject := Subject{UserID: 10, RoleCode: "branch_manager", HierarchyLevel: 3}

	assert.NoError(t, guard.AuthorizePermission(context.Background(), subject, "branches.view"))
}

func TestAuthorizePermissionDeniesMissingCode(t *testing.T) {
	guard := managerGuard(t, []string{"branches.view"})
	subject := Subject{UserID: 10, RoleCode: "branch_manager", HierarchyLevel: 3}

	err := guard.AuthorizePermission(context.Background(), subject, "journals.post")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestAuthorizePermissionWildcardSatisfiesEverything(t *testing.T) {
	guard := &Guard{
		Resolver: &Resolver{
			Users: &fakeUserStore{access: map[int64]*models.UserAccess{
				1: {
					UserID:     1,
					RoleID:     sql.NullInt64{Int64: 1, Valid: true},
					RoleCode:   "super_admin",
					RoleActive: true,
				},
			}},
			Roles:     &fakeRoleStore{},
			Overrides: &fakeOverrideStore{},
			Logger:    testLogger(),
		},
		Routes: DefaultRouteTable(),
		Logger: testLogger(),
	}
	subject := Subject{UserID: 1, RoleCode: "super_admin", HierarchyLevel: 10}

	assert.NoError(t, guard.AuthorizePermission(context.Background(), subject, "reconciliation.approve"))
	assert.NoError(t, guard.AuthorizePermission(context.Background(), subject, "anything.at.all"))
}

func TestAuthorizePermissionDeniesOnResolverError(t *testing.T) {
	guard := &Guard{
		Resolver: &Resolver{
			Users:     &fakeUserStore{err: errors.New("connection refused")},
			Roles:     &fakeRoleStore{},
			Overrides: &fakeOverrideStore{},
			Logger:    testLogger(),
		},
		Routes: DefaultRouteTable(),
		Logger: testLogger(),
	}
	subject := Subject{UserID: 10}

	err := guard.AuthorizePermission(context.Background(), subject, "branches.view")
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestAuthorizeLevel(t *testing.T) {
	guard := managerGuard(t, nil)
	subject := Subject{UserID: 10, HierarchyLevel: 3}

	assert.NoError(t, guard.AuthorizeLevel(subject, 3))
	assert.NoError(t, guard.AuthorizeLevel(subject, 1))

	err := guard.AuthorizeLevel(subject, 5)
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestAuthorizeRouteMappedRoute(t *testing.T) {
	guard := managerGuard(t, []string{"branches.view"})
	subject := Subject{UserID: 10, HierarchyLevel: 3}

	assert.NoError(t, guard.AuthorizeRoute(context.Background(), subject, "GET", "/branches"))

	err := guard.AuthorizeRoute(context.Background(), subject, "DELETE", "/branches/{id}")
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestAuthorizeRouteUnmappedRouteIsDenied(t *testing.T) {
	guard := managerGuard(t, []string{"branches.view"})
	subject := Subject{UserID: 10, HierarchyLevel: 3}

	err := guard.AuthorizeRoute(context.Background(), subject, "GET", "/unknown")
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestDefaultRouteTableLookup(t *testing.T) {
	table := DefaultRouteTable()

	code, ok := table.Required("PUT", "/roles/{id}/permissions")
	require.True(t, ok)
	assert.Equal(t, "roles.manage_permissions", code)

	_, ok = table.Required("PATCH", "/roles/{id}")
	assert.False(t, ok)
}

package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"backoffice/lib/data"
	"backoffice/lib/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	access map[int64]*models.UserAccess
	err    error
	calls  int
}

func (f *fakeUserStore) GetUserAccess(ctx context.Context, userID int64) (*models.UserAccess, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	access, ok := f.access[userID]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	return access, nil
}

type fakeRoleStore struct {
	grants map[int64][]string
	err    error
}

func (f *fakeRoleStore) GetRolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.grants[roleID], nil
}

type fakeOverrideStore struct {
	overrides map[int64]*models.UserOverrides
	err       error
}

func (f *fakeOverrideStore) GetUserOverrides(ctx context.Context, userID int64) (*models.UserOverrides, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ov, ok := f.overrides[userID]; ok {
		return ov, nil
	}
	return &models.UserOverrides{Granted: []string{}, Revoked: []string{}}, nil
}

type fakeCache struct {
	entries map[int64][]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[int64][]string)}
}

func (f *fakeCache) Get(ctx context.Context, userID int64) ([]string, bool) {
	codes, ok := f.entries[userID]
	return codes, ok
}

func (f *fakeCache) Set(ctx context.Context, userID int64, codes []string) {
	f.entries[userID] = codes
}

func (f *fakeCache) Invalidate(ctx context.Context, userIDs ...int64) {
	for _, id := range userIDs {
		delete(f.entries, id)
	}
}

func (f *fakeCache) InvalidateAll(ctx context.Context) {
	f.entries = make(map[int64][]string)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func managerAccess(userID, roleID int64) *models.UserAccess {
	return &models.UserAccess{
		UserID:         userID,
		RoleID:         sql.NullInt64{Int64: roleID, Valid: true},
		RoleCode:       "branch_manager",
		HierarchyLevel: 3,
		RoleActive:     true,
	}
}

func TestResolveMergesRoleGrantsAndOverrides(t *testing.T) {
	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{
			10: managerAccess(10, 2),
		}},
		Roles: &fakeRoleStore{grants: map[int64][]string{
			2: {"branches.view", "employees.view", "journals.create"},
		}},
		Overrides: &fakeOverrideStore{overrides: map[int64]*models.UserOverrides{
			10: {
				Granted: []string{"reconciliation.approve"},
				Revoked: []string{"journals.create"},
			},
		}},
		Logger: testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"branches.view", "employees.view", "reconciliation.approve"}, codes)
}

func TestResolveRevokeWinsOverGrant(t *testing.T) {
	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{
			10: managerAccess(10, 2),
		}},
		Roles: &fakeRoleStore{grants: map[int64][]string{
			2: {"branches.view"},
		}},
		Overrides: &fakeOverrideStore{overrides: map[int64]*models.UserOverrides{
			10: {
				Granted: []string{"journals.post"},
				Revoked: []string{"journals.post"},
			},
		}},
		Logger: testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.NotContains(t, codes, "journals.post")
	assert.Equal(t, []string{"branches.view"}, codes)
}

func TestResolveSuperAdminIgnoresOverrides(t *testing.T) {
	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{
			1: {
				UserID:         1,
				RoleID:         sql.NullInt64{Int64: 1, Valid: true},
				RoleCode:       "super_admin",
				HierarchyLevel: 10,
				RoleActive:     true,
			},
		}},
		Roles: &fakeRoleStore{grants: map[int64][]string{
			1: {"branches.view"},
		}},
		Overrides: &fakeOverrideStore{overrides: map[int64]*models.UserOverrides{
			1: {Revoked: []string{"branches.view", "*"}},
		}},
		Logger: testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, codes)
	assert.True(t, IsWildcard(codes))
}

func TestResolveUnknownUserReturnsEmptySet(t *testing.T) {
	resolver := &Resolver{
		Users:     &fakeUserStore{access: map[int64]*models.UserAccess{}},
		Roles:     &fakeRoleStore{},
		Overrides: &fakeOverrideStore{},
		Logger:    testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestResolveUserWithoutRoleReturnsEmptySet(t *testing.T) {
	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{
			10: {UserID: 10},
		}},
		Roles:     &fakeRoleStore{},
		Overrides: &fakeOverrideStore{},
		Logger:    testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestResolveInactiveRoleReturnsEmptySet(t *testing.T) {
	access := managerAccess(10, 2)
	access.RoleActive = false

	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{10: access}},
		Roles: &fakeRoleStore{grants: map[int64][]string{
			2: {"branches.view"},
		}},
		Overrides: &fakeOverrideStore{},
		Logger:    testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestResolveStoreErrorIsReturned(t *testing.T) {
	resolver := &Resolver{
		Users:     &fakeUserStore{err: errors.New("connection refused")},
		Roles:     &fakeRoleStore{},
		Overrides: &fakeOverrideStore{},
		Logger:    testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	assert.Error(t, err)
	assert.Nil(t, codes)
}

func TestResolveCacheHitSkipsStores(t *testing.T) {
	users := &fakeUserStore{access: map[int64]*models.UserAccess{}}
	cached := newFakeCache()
	cached.Set(context.Background(), 10, []string{"branches.view"})

	resolver := &Resolver{
		Users:     users,
		Roles:     &fakeRoleStore{},
		Overrides: &fakeOverrideStore{},
		Cache:     cached,
		Logger:    testLogger(),
	}

	codes, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"branches.view"}, codes)
	assert.Zero(t, users.calls)
}

func TestResolveCacheMissWritesBack(t *testing.T) {
	cached := newFakeCache()
	resolver := &Resolver{
		Users: &fakeUserStore{access: map[int64]*models.UserAccess{
			10: managerAccess(10, 2),
		}},
		Roles: &fakeRoleStore{grants: map[int64][]string{
			2: {"branches.view"},
		}},
		Overrides: &fakeOverrideStore{},
		Cache:     cached,
		Logger:    testLogger(),
	}

	_, err := resolver.Resolve(context.Background(), 10)
	require.NoError(t, err)

	codes, ok := cached.Get(context.Background(), 10)
	assert.True(t, ok)
	assert.Equal(t, []string{"branches.view"}, codes)
}

package farmusers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
)

type memoryStore struct {
	nextID      int64
	assignments []Assignment
	roles       map[string]int64
	users       map[int64]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles: map[string]int64{
			authz.RoleSysAdmin:    1,
			authz.RoleFarmAdmin:   2,
			authz.RoleFarmer:      3,
			authz.RoleResearcher:  4,
			authz.RoleGenericUser: 5,
		},
		users: map[int64]string{
			10: "amira@farm.example",
			11: "bram@farm.example",
		},
	}
}

func (m *memoryStore) roleName(roleID int64) string {
	for name, id := range m.roles {
		if id == roleID {
			return name
		}
	}
	return ""
}

func (m *memoryStore) Find(ctx context.Context, scope authz.Scope, userID, roleID int64) (Assignment, error) {
	for _, a := range m.assignments {
		if a.Scope == scope && a.UserID == userID && a.RoleID == roleID {
			return a, nil
		}
	}
	return Assignment{}, shared.ErrNotFound
}

func (m *memoryStore) Insert(ctx context.Context, scope authz.Scope, userID, roleID int64) (int64, error) {
	m.nextID++
	m.assignments = append(m.assignments, Assignment{
		ID: m.nextID, Scope: scope, UserID: userID, RoleID: roleID, RoleName: m.roleName(roleID),
	})
	return m.nextID, nil
}

func (m *memoryStore) DeleteByScopeUser(ctx context.Context, scope authz.Scope, userID int64) (int64, error) {
	var kept []Assignment
	var removed int64
	for _, a := range m.assignments {
		if a.Scope == scope && a.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.assignments = kept
	return removed, nil
}

func (m *memoryStore) DeleteByScope(ctx context.Context, scope authz.Scope) (int64, error) {
	var kept []Assignment
	var removed int64
	for _, a := range m.assignments {
		if a.Scope == scope {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.assignments = kept
	return removed, nil
}

func (m *memoryStore) UpdateRole(ctx context.Context, scope authz.Scope, userID, roleID int64) error {
	for i, a := range m.assignments {
		if a.Scope == scope && a.UserID == userID {
			m.assignments[i].RoleID = roleID
			m.assignments[i].RoleName = m.roleName(roleID)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryStore) ListMembers(ctx context.Context, scope authz.Scope) ([]Member, error) {
	var out []Member
	for _, a := range m.assignments {
		if a.Scope == scope {
			out = append(out, Member{UserID: a.UserID, Email: m.users[a.UserID], RoleID: a.RoleID, RoleName: a.RoleName})
		}
	}
	return out, nil
}

func (m *memoryStore) RoleByName(ctx context.Context, name string) (int64, error) {
	id, ok := m.roles[name]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (m *memoryStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memoryStore) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	for id, mail := range m.users {
		if mail == email {
			return id, nil
		}
	}
	return 0, shared.ErrNotFound
}

func (m *memoryStore) RolesForUser(ctx context.Context, userID int64) ([]authz.FarmRole, error) {
	var out []authz.FarmRole
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, authz.FarmRole{Scope: a.Scope, RoleID: a.RoleID, RoleName: a.RoleName})
		}
	}
	return out, nil
}

func (m *memoryStore) RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error) {
	for _, a := range m.assignments {
		if a.Scope == scope && a.UserID == userID {
			return authz.FarmRole{Scope: scope, RoleID: a.RoleID, RoleName: a.RoleName}, true, nil
		}
	}
	return authz.FarmRole{}, false, nil
}

func (m *memoryStore) AnyAssignment(ctx context.Context, scope authz.Scope) (bool, error) {
	for _, a := range m.assignments {
		if a.Scope == scope {
			return true, nil
		}
	}
	return false, nil
}

var actor = authz.Identity{UserID: 10}

func TestAssignBootstrapRequiresFarmAdmin(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	// An unclaimed farm only accepts the farm-admin role first.
	_, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmer)
	require.ErrorIs(t, err, shared.ErrBootstrapViolation)

	id, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)
	require.NotZero(t, id)

	// Once claimed, other roles may follow.
	_, err = svc.Assign(ctx, actor, farm, 11, authz.RoleFarmer)
	require.NoError(t, err)
}

func TestAssignGlobalScopeSkipsBootstrapRule(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)

	_, err := svc.Assign(context.Background(), actor, authz.Global(), 10, authz.RoleResearcher)
	require.NoError(t, err)
}

func TestAssignIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	first, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)

	again, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.Len(t, store.assignments, 1)
}

func TestAssignUnknownUserAndRole(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Assign(ctx, actor, authz.InFarm(7), 404, authz.RoleFarmAdmin)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Assign(ctx, actor, authz.InFarm(7), 10, "landlord")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignByEmail(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	id, err := svc.AssignByEmail(ctx, actor, authz.InFarm(7), "amira@farm.example", authz.RoleFarmAdmin)
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = svc.AssignByEmail(ctx, actor, authz.InFarm(7), "nobody@farm.example", authz.RoleFarmer)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemove(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	_, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, actor, farm, 10))
	require.ErrorIs(t, svc.Remove(ctx, actor, farm, 10), shared.ErrNotFound)

	// The farm is unclaimed again, so bootstrap applies anew.
	_, err = svc.Assign(ctx, actor, farm, 11, authz.RoleFarmer)
	require.ErrorIs(t, err, shared.ErrBootstrapViolation)
}

func TestChangeRole(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	_, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, actor, farm, 11, authz.RoleFarmer)
	require.NoError(t, err)

	require.NoError(t, svc.ChangeRole(ctx, actor, farm, 11, authz.RoleResearcher))
	role, held, err := svc.RoleInFarm(ctx, farm, 11)
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, authz.RoleResearcher, role.RoleName)

	require.ErrorIs(t, svc.ChangeRole(ctx, actor, farm, 99, authz.RoleFarmer), shared.ErrNotFound)
}

func TestRoleInFarmPrefersOldestAssignment(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	// The triple-unique constraint permits two roles for one user in one
	// farm; the oldest assignment must win deterministically.
	_, err := store.Insert(ctx, farm, 10, store.roles[authz.RoleFarmAdmin])
	require.NoError(t, err)
	_, err = store.Insert(ctx, farm, 10, store.roles[authz.RoleFarmer])
	require.NoError(t, err)

	role, held, err := svc.RoleInFarm(ctx, farm, 10)
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, authz.RoleFarmAdmin, role.RoleName)
}

func TestRemoveAllAndMembers(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	farm := authz.InFarm(7)

	_, err := svc.Assign(ctx, actor, farm, 10, authz.RoleFarmAdmin)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, actor, farm, 11, authz.RoleFarmer)
	require.NoError(t, err)

	members, err := svc.Members(ctx, farm)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "amira@farm.example", members[0].Email)

	require.NoError(t, svc.RemoveAll(ctx, actor, farm))
	members, err = svc.Members(ctx, farm)
	require.NoError(t, err)
	require.Empty(t, members)
}

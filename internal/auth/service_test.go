package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
	"github.com/proeftuin/agrigate/internal/users"
)

type fakeUsers struct {
	byEmail map[string]users.User
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (users.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

type fakeAssignments struct {
	globalRole map[int64]string
}

func (f *fakeAssignments) RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error) {
	if !scope.IsGlobal() {
		return authz.FarmRole{}, false, nil
	}
	name, ok := f.globalRole[userID]
	if !ok {
		return authz.FarmRole{}, false, nil
	}
	return authz.FarmRole{Scope: scope, RoleName: name}, true, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthenticate(t *testing.T) {
	store := &fakeUsers{byEmail: map[string]users.User{
		"amira@farm.example": {ID: 10, Email: "amira@farm.example", PasswordHash: hash(t, "hunter22")},
	}}
	svc := NewService(store, &fakeAssignments{globalRole: map[int64]string{}})

	identity, err := svc.Authenticate(context.Background(), "amira@farm.example", "hunter22")
	require.NoError(t, err)
	require.Equal(t, int64(10), identity.UserID)
	require.False(t, identity.IsAdmin)
}

func TestAuthenticateDerivesAdminFromGlobalAssignment(t *testing.T) {
	store := &fakeUsers{byEmail: map[string]users.User{
		"root@farm.example": {ID: 1, Email: "root@farm.example", PasswordHash: hash(t, "s3cret!!")},
	}}
	svc := NewService(store, &fakeAssignments{globalRole: map[int64]string{1: authz.RoleSysAdmin}})

	identity, err := svc.Authenticate(context.Background(), "root@farm.example", "s3cret!!")
	require.NoError(t, err)
	require.True(t, identity.IsAdmin)
}

func TestAuthenticateGlobalNonAdminRoleIsNotAdmin(t *testing.T) {
	store := &fakeUsers{byEmail: map[string]users.User{
		"vera@farm.example": {ID: 2, Email: "vera@farm.example", PasswordHash: hash(t, "s3cret!!")},
	}}
	svc := NewService(store, &fakeAssignments{globalRole: map[int64]string{2: authz.RoleResearcher}})

	identity, err := svc.Authenticate(context.Background(), "vera@farm.example", "s3cret!!")
	require.NoError(t, err)
	require.False(t, identity.IsAdmin)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	store := &fakeUsers{byEmail: map[string]users.User{
		"amira@farm.example": {ID: 10, Email: "amira@farm.example", PasswordHash: hash(t, "hunter22")},
	}}
	svc := NewService(store, &fakeAssignments{})

	_, err := svc.Authenticate(context.Background(), "amira@farm.example", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "ghost@farm.example", "hunter22")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
	"github.com/proeftuin/agrigate/internal/users"
)

// UserSource resolves accounts for credential checks.
type UserSource interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
}

// AssignmentSource checks for the global-scope administrator assignment.
type AssignmentSource interface {
	RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error)
}

// Service wraps authentication business rules.
type Service struct {
	users       UserSource
	assignments AssignmentSource
}

// NewService constructs a new Service.
func NewService(users UserSource, assignments AssignmentSource) *Service {
	return &Service{users: users, assignments: assignments}
}

// Authenticate validates email/password credentials and derives the
// identity the engine will trust: is_admin is true exactly when the user
// holds the admin role in the global scope.
func (s *Service) Authenticate(ctx context.Context, email, password string) (authz.Identity, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return authz.Identity{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return authz.Identity{}, shared.ErrInvalidCredentials
	}

	identity := authz.Identity{UserID: user.ID}
	role, held, err := s.assignments.RoleInFarm(ctx, authz.Global(), user.ID)
	if err != nil {
		return authz.Identity{}, err
	}
	if held && role.RoleName == authz.RoleSysAdmin {
		identity.IsAdmin = true
	}
	return identity, nil
}

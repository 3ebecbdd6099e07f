package farmusers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
)

// RepositoryPort defines data access methods for farm role assignments.
type RepositoryPort interface {
	Find(ctx context.Context, scope authz.Scope, userID, roleID int64) (Assignment, error)
	Insert(ctx context.Context, scope authz.Scope, userID, roleID int64) (int64, error)
	DeleteByScopeUser(ctx context.Context, scope authz.Scope, userID int64) (int64, error)
	DeleteByScope(ctx context.Context, scope authz.Scope) (int64, error)
	UpdateRole(ctx context.Context, scope authz.Scope, userID, roleID int64) error
	ListMembers(ctx context.Context, scope authz.Scope) ([]Member, error)
	RoleByName(ctx context.Context, name string) (int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	UserIDByEmail(ctx context.Context, email string) (int64, error)
	RolesForUser(ctx context.Context, userID int64) ([]authz.FarmRole, error)
	RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error)
	AnyAssignment(ctx context.Context, scope authz.Scope) (bool, error)
}

// Service orchestrates farm role assignment operations.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Assign grants roleName to userID within the scope. The very first
// assignment of an unclaimed farm must carry the farm-admin role; assigning
// the identical triple again returns the existing assignment.
func (s *Service) Assign(ctx context.Context, actor authz.Identity, scope authz.Scope, userID int64, roleName string) (int64, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("farmusers: user %d: %w", userID, shared.ErrNotFound)
	}

	roleID, err := s.repo.RoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, fmt.Errorf("farmusers: role %q: %w", roleName, shared.ErrNotFound)
		}
		return 0, err
	}

	if _, concrete := scope.FarmID(); concrete {
		claimed, err := s.repo.AnyAssignment(ctx, scope)
		if err != nil {
			return 0, err
		}
		if !claimed && roleName != authz.RoleFarmAdmin {
			return 0, shared.ErrBootstrapViolation
		}
	}

	if existing, err := s.repo.Find(ctx, scope, userID, roleID); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}

	id, err := s.repo.Insert(ctx, scope, userID, roleID)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actor, "ASSIGN", scope, userID, map[string]any{"role": roleName})
	return id, nil
}

// AssignByEmail resolves the user by email before assigning.
func (s *Service) AssignByEmail(ctx context.Context, actor authz.Identity, scope authz.Scope, email, roleName string) (int64, error) {
	userID, err := s.repo.UserIDByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return s.Assign(ctx, actor, scope, userID, roleName)
}

// Remove strips the user of every role within the scope. Removing the last
// assignment leaves the farm claim-free but otherwise intact.
func (s *Service) Remove(ctx context.Context, actor authz.Identity, scope authz.Scope, userID int64) error {
	removed, err := s.repo.DeleteByScopeUser(ctx, scope, userID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return shared.ErrNotFound
	}
	s.recordAudit(ctx, actor, "REMOVE", scope, userID, map[string]any{"assignments": removed})
	return nil
}

// RemoveAll drops every assignment in the scope.
func (s *Service) RemoveAll(ctx context.Context, actor authz.Identity, scope authz.Scope) error {
	removed, err := s.repo.DeleteByScope(ctx, scope)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "REMOVE_ALL", scope, 0, map[string]any{"assignments": removed})
	return nil
}

// ChangeRole swaps the user's role within the scope.
func (s *Service) ChangeRole(ctx context.Context, actor authz.Identity, scope authz.Scope, userID int64, roleName string) error {
	roleID, err := s.repo.RoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("farmusers: role %q: %w", roleName, shared.ErrNotFound)
		}
		return err
	}
	if err := s.repo.UpdateRole(ctx, scope, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "CHANGE_ROLE", scope, userID, map[string]any{"role": roleName})
	return nil
}

// Members lists the scope's membership.
func (s *Service) Members(ctx context.Context, scope authz.Scope) ([]Member, error) {
	return s.repo.ListMembers(ctx, scope)
}

// RolesForUser returns every (scope, role) pair the user holds.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]authz.FarmRole, error) {
	return s.repo.RolesForUser(ctx, userID)
}

// RoleInFarm returns the user's role within the scope, if any.
func (s *Service) RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error) {
	return s.repo.RoleInFarm(ctx, scope, userID)
}

// AnyAssignment reports whether the scope has at least one assignment.
func (s *Service) AnyAssignment(ctx context.Context, scope authz.Scope) (bool, error) {
	return s.repo.AnyAssignment(ctx, scope)
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Identity, action string, scope authz.Scope, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["scope"] = scope.String()
	if userID != 0 {
		meta["user_id"] = userID
	}
	entry := shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "farm_user",
		EntityID: scope.String() + "/" + strconv.FormatInt(userID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit assignment mutation", slog.Any("error", err))
	}
}

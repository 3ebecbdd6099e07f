package roles

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
)

// RepositoryPort defines data access methods for the permission catalog.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListGrants(ctx context.Context, roleID int64) ([]Grant, error)
	CreateRoleWithGrants(ctx context.Context, name string, grants []Grant) (Role, error)
	ReplaceGrants(ctx context.Context, roleID int64, grants []Grant) (int, error)
	DeleteRole(ctx context.Context, roleID int64) error
}

// Service orchestrates permission catalog operations.
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

// CreateRole creates a role carrying the given grant set. When the name is
// taken the call fails with ErrConflict, unless the existing grant set
// already equals the requested one, in which case the existing role is
// returned unchanged.
func (s *Service) CreateRole(ctx context.Context, actor authz.Identity, name string, grants []Grant) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	if err := validateGrants(grants); err != nil {
		return Role{}, err
	}

	if existing, err := s.repo.GetRoleByName(ctx, name); err == nil {
		current, err := s.repo.ListGrants(ctx, existing.ID)
		if err != nil {
			return Role{}, err
		}
		if SameGrants(current, grants) {
			return existing, nil
		}
		return Role{}, shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Role{}, err
	}

	role, err := s.repo.CreateRoleWithGrants(ctx, name, grants)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actor, "CREATE", role.ID, map[string]any{"role": role.Name, "grants": len(grants)})
	return role, nil
}

// ReplaceGrants atomically swaps the role's grant set and returns the number
// of grants created.
func (s *Service) ReplaceGrants(ctx context.Context, actor authz.Identity, roleID int64, grants []Grant) (int, error) {
	if err := validateGrants(grants); err != nil {
		return 0, err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	created, err := s.repo.ReplaceGrants(ctx, roleID, grants)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actor, "REPLACE", roleID, map[string]any{"role": role.Name, "grants": created})
	return created, nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetRoleByName fetches a role by name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, name)
}

// Grants returns the grant set of a role.
func (s *Service) Grants(ctx context.Context, roleID int64) ([]Grant, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, roleID)
}

// DeleteRole removes the role, its grants and every farm assignment that
// references it.
func (s *Service) DeleteRole(ctx context.Context, actor authz.Identity, roleID int64) error {
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "DELETE", roleID, nil)
	return nil
}

// ClearGrants removes every grant from the role without touching the role
// itself.
func (s *Service) ClearGrants(ctx context.Context, actor authz.Identity, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.repo.ReplaceGrants(ctx, roleID, nil); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "CLEAR", roleID, nil)
	return nil
}

// validateGrants checks every grant against the closed vocabularies before
// anything touches the store.
func validateGrants(grants []Grant) error {
	for _, g := range grants {
		if _, err := authz.ParseResourceType(string(g.Resource)); err != nil {
			return err
		}
		if _, err := authz.ParsePermissionType(string(g.Permission)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Identity, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit role mutation", slog.Any("error", err))
	}
}

package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/platform/db"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the permission
// catalog. It also serves the engine's grant lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered by id.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// ListGrants returns the grants carried by a role, ordered by resource.
func (r *Repository) ListGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.permission_type, rs.name
		FROM role_permissions rp
		JOIN resources rs ON rs.id = rp.resource_id
		WHERE rp.role_id = $1
		ORDER BY rs.id, rp.permission_type`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var perm, resource string
		if err := rows.Scan(&perm, &resource); err != nil {
			return nil, err
		}
		grants = append(grants, Grant{
			Permission: authz.PermissionType(perm),
			Resource:   authz.ResourceType(resource),
		})
	}
	return grants, rows.Err()
}

// CreateRoleWithGrants inserts the role and its grant set in one transaction.
func (r *Repository) CreateRoleWithGrants(ctx context.Context, name string, grants []Grant) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1) RETURNING id, name`, name).Scan(&role.ID, &role.Name)
		if isUniqueViolation(err) {
			return shared.ErrConflict
		}
		if err != nil {
			return err
		}
		_, err = insertGrants(ctx, tx, role.ID, grants)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ReplaceGrants discards every grant of the role and inserts the new set,
// all inside one transaction so no empty-grant window is observable.
// Returns the number of grants created.
func (r *Repository) ReplaceGrants(ctx context.Context, roleID int64, grants []Grant) (int, error) {
	var created int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		n, err := insertGrants(ctx, tx, roleID, grants)
		created = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// DeleteRole removes a role. Grants and farm assignments referencing the
// role go with it through ON DELETE CASCADE.
func (r *Repository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasGrant reports whether the role carries (permission, resource). Used by
// the decision engine.
func (r *Repository) HasGrant(ctx context.Context, roleID int64, permission authz.PermissionType, resource authz.ResourceType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_permissions rp
			JOIN resources rs ON rs.id = rp.resource_id
			WHERE rp.role_id = $1 AND rp.permission_type = $2 AND rs.name = $3
		)`, roleID, string(permission), string(resource)).Scan(&exists)
	return exists, err
}

// insertGrants resolves resource ids and inserts the grant rows. The
// resources table is the closed vocabulary; a missing name is rejected, not
// created.
func insertGrants(ctx context.Context, tx pgx.Tx, roleID int64, grants []Grant) (int, error) {
	created := 0
	for _, g := range grants {
		var resourceID int64
		err := tx.QueryRow(ctx, `SELECT id FROM resources WHERE name = $1`, string(g.Resource)).Scan(&resourceID)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &authz.UnknownResourceTypeError{Name: string(g.Resource), Valid: authz.ResourceTypes()}
		}
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_type, resource_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (role_id, permission_type, resource_id) DO NOTHING`,
			roleID, string(g.Permission), resourceID)
		if err != nil {
			return 0, err
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

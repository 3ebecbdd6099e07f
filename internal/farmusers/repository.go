package farmusers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Repository provides PostgreSQL backed persistence for farm role
// assignments. It also implements authz.AssignmentSource for the engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// scopeArg converts a scope into the nullable farm_id column value.
func scopeArg(scope authz.Scope) any {
	if id, ok := scope.FarmID(); ok {
		return id
	}
	return nil
}

func scopeOf(farmID *int64) authz.Scope {
	if farmID == nil {
		return authz.Global()
	}
	return authz.InFarm(*farmID)
}

// Find returns the assignment for the exact (scope, user, role) triple.
func (r *Repository) Find(ctx context.Context, scope authz.Scope, userID, roleID int64) (Assignment, error) {
	var (
		a      Assignment
		farmID *int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT fu.id, fu.farm_id, fu.user_id, fu.role_id, rl.name
		FROM farm_users fu
		JOIN roles rl ON rl.id = fu.role_id
		WHERE fu.farm_id IS NOT DISTINCT FROM $1 AND fu.user_id = $2 AND fu.role_id = $3`,
		scopeArg(scope), userID, roleID).Scan(&a.ID, &farmID, &a.UserID, &a.RoleID, &a.RoleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, shared.ErrNotFound
	}
	if err != nil {
		return Assignment{}, err
	}
	a.Scope = scopeOf(farmID)
	return a, nil
}

// Insert stores a new assignment. The unique constraint on the triple makes
// concurrent identical inserts collapse onto one row.
func (r *Repository) Insert(ctx context.Context, scope authz.Scope, userID, roleID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO farm_users (farm_id, user_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (farm_id, user_id, role_id) DO UPDATE SET role_id = EXCLUDED.role_id
		RETURNING id`,
		scopeArg(scope), userID, roleID).Scan(&id)
	return id, err
}

// DeleteByScopeUser removes all of the user's assignments within the scope.
func (r *Repository) DeleteByScopeUser(ctx context.Context, scope authz.Scope, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM farm_users WHERE farm_id IS NOT DISTINCT FROM $1 AND user_id = $2`,
		scopeArg(scope), userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByScope removes every assignment in the scope.
func (r *Repository) DeleteByScope(ctx context.Context, scope authz.Scope) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM farm_users WHERE farm_id IS NOT DISTINCT FROM $1`, scopeArg(scope))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateRole changes the role of the user's single assignment in the scope.
func (r *Repository) UpdateRole(ctx context.Context, scope authz.Scope, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE farm_users SET role_id = $3
		WHERE farm_id IS NOT DISTINCT FROM $1 AND user_id = $2`,
		scopeArg(scope), userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListMembers returns the farm's membership joined with user emails.
func (r *Repository) ListMembers(ctx context.Context, scope authz.Scope) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT fu.user_id, us.email, rl.id, rl.name
		FROM farm_users fu
		JOIN users us ON us.id = fu.user_id
		JOIN roles rl ON rl.id = fu.role_id
		WHERE fu.farm_id IS NOT DISTINCT FROM $1
		ORDER BY fu.id`, scopeArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.RoleID, &m.RoleName); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RoleByName resolves a role id from the catalog.
func (r *Repository) RoleByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

// UserExists reports whether the user account exists.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// UserIDByEmail resolves a user id from an email address.
func (r *Repository) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

// RolesForUser returns every (scope, role) pair the user holds, across all
// farms and the global scope.
func (r *Repository) RolesForUser(ctx context.Context, userID int64) ([]authz.FarmRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT fu.farm_id, rl.id, rl.name
		FROM farm_users fu
		JOIN roles rl ON rl.id = fu.role_id
		WHERE fu.user_id = $1
		ORDER BY fu.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var held []authz.FarmRole
	for rows.Next() {
		var (
			farmID *int64
			fr     authz.FarmRole
		)
		if err := rows.Scan(&farmID, &fr.RoleID, &fr.RoleName); err != nil {
			return nil, err
		}
		fr.Scope = scopeOf(farmID)
		held = append(held, fr)
	}
	return held, rows.Err()
}

// RoleInFarm returns the user's role within the scope, if any. When the
// user somehow holds several roles there, the oldest assignment wins.
func (r *Repository) RoleInFarm(ctx context.Context, scope authz.Scope, userID int64) (authz.FarmRole, bool, error) {
	var fr authz.FarmRole
	err := r.pool.QueryRow(ctx, `
		SELECT rl.id, rl.name
		FROM farm_users fu
		JOIN roles rl ON rl.id = fu.role_id
		WHERE fu.farm_id IS NOT DISTINCT FROM $1 AND fu.user_id = $2
		ORDER BY fu.id
		LIMIT 1`, scopeArg(scope), userID).Scan(&fr.RoleID, &fr.RoleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return authz.FarmRole{}, false, nil
	}
	if err != nil {
		return authz.FarmRole{}, false, err
	}
	fr.Scope = scope
	return fr, true, nil
}

// AnyAssignment reports whether the scope has at least one assignment. A
// farm with zero assignments is unclaimed: only the bootstrap path may
// create in it.
func (r *Repository) AnyAssignment(ctx context.Context, scope authz.Scope) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM farm_users WHERE farm_id IS NOT DISTINCT FROM $1)`,
		scopeArg(scope)).Scan(&exists)
	return exists, err
}

var _ authz.AssignmentSource = (*Repository)(nil)

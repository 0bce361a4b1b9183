package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/andobill/pkg/storage/postgres"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadPrincipal loads a user with its roles and direct permissions
func (s *Store) LoadPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	p := &Principal{
		Roles:             make(map[string]struct{}),
		DirectPermissions: make(map[string]struct{}),
	}
	var companyID sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, company_id, status FROM users WHERE id = $1", userID,
	).Scan(&p.ID, &p.Name, &p.Email, &companyID, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if companyID.Valid {
		id := companyID.Int64
		p.CompanyID = &id
	}

	roles, err := s.names(ctx, s.db, `
		SELECT r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	for _, r := range roles {
		p.Roles[r] = struct{}{}
	}

	perms, err := s.names(ctx, s.db, `
		SELECT p.name FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	for _, name := range perms {
		p.DirectPermissions[name] = struct{}{}
	}

	return p, nil
}

// LoadCatalog loads the role to permission mapping
func (s *Store) LoadCatalog(ctx context.Context) (Catalog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name, p.name
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	catalog := make(Catalog)
	for rows.Next() {
		var role string
		var perm sql.NullString
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		if perm.Valid {
			catalog.Grant(role, perm.String)
		} else {
			catalog.Grant(role)
		}
	}
	return catalog, rows.Err()
}

// ListRoles returns all roles with their permissions, sorted by name
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, description, is_reserved, created_at, updated_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsReserved, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	catalog, err := s.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = sortedKeys(catalog[roles[i].Name])
	}
	return roles, nil
}

// GetRole retrieves a role by name
func (s *Store) GetRole(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, description, is_reserved, created_at, updated_at
		FROM roles WHERE name = $1`, name,
	).Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsReserved, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := s.names(ctx, s.db, `
		SELECT p.name FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	sort.Strings(perms)
	r.Permissions = perms
	return &r, nil
}

// CreateRole creates a role with the given permissions
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Name == RoleSuperAdmin {
		return ErrReservedRole
	}
	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles WHERE name = $1", role.Name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check role: %w", err)
		}
		if exists > 0 {
			return ErrRoleExists
		}

		ids, err := permissionIDs(ctx, tx, role.Permissions)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		err = tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, display_name, description, is_reserved, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			role.Name, role.DisplayName, role.Description, role.IsReserved, now, now,
		).Scan(&role.ID)
		if err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		role.CreatedAt, role.UpdatedAt = now, now

		return replaceRolePermissions(ctx, tx, role.ID, ids)
	})
}

// DeleteRole removes a role and its assignments. Reserved roles are refused.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	if name == RoleSuperAdmin {
		return ErrReservedRole
	}
	role, err := s.GetRole(ctx, name)
	if err != nil {
		return err
	}
	if role.IsReserved {
		return ErrReservedRole
	}

	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM user_roles WHERE role_id = $1",
			"DELETE FROM role_permissions WHERE role_id = $1",
			"DELETE FROM roles WHERE id = $1",
		} {
			if _, err := tx.ExecContext(ctx, q, role.ID); err != nil {
				return fmt.Errorf("failed to delete role: %w", err)
			}
		}
		return nil
	})
}

// AssignRole grants a role to a user; assigning an already held role is a no-op
func (s *Store) AssignRole(ctx context.Context, userID int64, roleName string) error {
	roleID, err := s.roleID(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, granted_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user
func (s *Store) RevokeRole(ctx context.Context, userID int64, roleName string) error {
	roleID, err := s.roleID(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2", userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// SyncPermissions replaces a user's direct permission grants
func (s *Store) SyncPermissions(ctx context.Context, userID int64, permissions []string) error {
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		ids, err := permissionIDs(ctx, tx, permissions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_permissions WHERE user_id = $1", userID); err != nil {
			return fmt.Errorf("failed to clear user permissions: %w", err)
		}
		now := time.Now().UTC()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO user_permissions (user_id, permission_id, granted_at) VALUES ($1, $2, $3)",
				userID, id, now,
			); err != nil {
				return fmt.Errorf("failed to grant permission: %w", err)
			}
		}
		return nil
	})
}

// SyncRolePermissions replaces a role's permission set
func (s *Store) SyncRolePermissions(ctx context.Context, roleName string, permissions []string) error {
	roleID, err := s.roleID(ctx, roleName)
	if err != nil {
		return err
	}
	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		ids, err := permissionIDs(ctx, tx, permissions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE roles SET updated_at = $1 WHERE id = $2", time.Now().UTC(), roleID); err != nil {
			return fmt.Errorf("failed to touch role: %w", err)
		}
		return replaceRolePermissions(ctx, tx, roleID, ids)
	})
}

// Seed registers all permissions and the built-in roles. It is idempotent and
// resets built-in roles to their default permission sets.
func (s *Store) Seed(ctx context.Context) error {
	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		for _, name := range AllPermissions() {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO permissions (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name,
			); err != nil {
				return fmt.Errorf("failed to register permission %s: %w", name, err)
			}
		}

		now := time.Now().UTC()
		for _, role := range DefaultRoles() {
			var roleID int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO roles (name, display_name, description, is_reserved, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (name) DO UPDATE SET
					display_name = excluded.display_name,
					description = excluded.description,
					is_reserved = excluded.is_reserved,
					updated_at = excluded.updated_at
				RETURNING id`,
				role.Name, role.DisplayName, role.Description, role.IsReserved, now, now,
			).Scan(&roleID)
			if err != nil {
				return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
			}

			ids, err := permissionIDs(ctx, tx, role.Permissions)
			if err != nil {
				return err
			}
			if err := replaceRolePermissions(ctx, tx, roleID, ids); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) roleID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = $1", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRoleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get role: %w", err)
	}
	return id, nil
}

func (s *Store) requireUser(ctx context.Context, userID int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = $1", userID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) names(ctx context.Context, q querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// permissionIDs resolves names to ids, failing on any unregistered name
func permissionIDs(ctx context.Context, q querier, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var id int64
		err := q.QueryRowContext(ctx, "SELECT id FROM permissions WHERE name = $1", name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get permission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func replaceRolePermissions(ctx context.Context, q querier, roleID int64, ids []int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, id := range ids {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)", roleID, id,
		); err != nil {
			return fmt.Errorf("failed to grant role permission: %w", err)
		}
	}
	return nil
}

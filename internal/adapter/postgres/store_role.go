package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CareForge/internal/domain/role"
)

const roleColumns = `id, name, description, system, created_at, updated_at`

func scanRole(row scannable) (role.Role, error) {
	var r role.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.System, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, system) VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		r.ID, r.Name, r.Description, r.System,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return writeErr(err, "create role %s", r.Name)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*role.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get role %s", id)
	}
	return &r, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*role.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE lower(name) = lower($1)`, name))
	if err != nil {
		return nil, notFoundWrap(err, "get role by name %s", name)
	}
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]role.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []role.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now() WHERE id = $1
		RETURNING system, created_at, updated_at`,
		r.ID, r.Name, r.Description,
	).Scan(&r.System, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return notFoundWrap(err, "update role %s", r.ID)
		}
		return writeErr(err, "update role %s", r.ID)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete role %s", id)
}

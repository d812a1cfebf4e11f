package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CareForge/internal/domain/member"
)

const memberColumns = `id, first_name, last_name, date_of_birth, coalesce(email, ''), coalesce(phone, ''), plan_id, version, created_at, updated_at`

func scanMember(row scannable) (member.Member, error) {
	var m member.Member
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.DateOfBirth, &m.Email, &m.Phone, &m.PlanID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO members (id, first_name, last_name, date_of_birth, email, phone, plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING version, created_at, updated_at`,
		m.ID, m.FirstName, m.LastName, m.DateOfBirth, nullIfEmpty(m.Email), nullIfEmpty(m.Phone), m.PlanID,
	).Scan(&m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return writeErr(err, "create member")
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*member.Member, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get member %s", id)
	}
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, limit, offset int) ([]member.Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return orEmpty(members), rows.Err()
}

func (s *Store) UpdateMember(ctx context.Context, m *member.Member) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE members SET first_name = $2, last_name = $3, date_of_birth = $4, email = $5, phone = $6, plan_id = $7,
		       version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $8
		RETURNING version, updated_at`,
		m.ID, m.FirstName, m.LastName, m.DateOfBirth, nullIfEmpty(m.Email), nullIfEmpty(m.Phone), m.PlanID, m.Version,
	).Scan(&m.Version, &m.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("update member %s: %w", m.ID, s.versionConflict(ctx, "members", m.ID))
		}
		return writeErr(err, "update member %s", m.ID)
	}
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return deleteErr(err, "delete member %s", id)
	}
	return execExpectOne(tag, nil, "delete member %s", id)
}

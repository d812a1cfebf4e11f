package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
)

const pharmacyColumns = `id, name, npi, coalesce(phone, ''), coalesce(address, ''), version, created_at, updated_at`

func scanPharmacy(row scannable) (pharmacy.Pharmacy, error) {
	var p pharmacy.Pharmacy
	err := row.Scan(&p.ID, &p.Name, &p.NPI, &p.Phone, &p.Address, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pharmacies (id, name, npi, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at`,
		p.ID, p.Name, p.NPI, nullIfEmpty(p.Phone), nullIfEmpty(p.Address),
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return writeErr(err, "create pharmacy")
	}
	return nil
}

func (s *Store) GetPharmacy(ctx context.Context, id string) (*pharmacy.Pharmacy, error) {
	p, err := scanPharmacy(s.pool.QueryRow(ctx, `SELECT `+pharmacyColumns+` FROM pharmacies WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get pharmacy %s", id)
	}
	return &p, nil
}

func (s *Store) ListPharmacies(ctx context.Context, limit, offset int) ([]pharmacy.Pharmacy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	defer rows.Close()

	var out []pharmacy.Pharmacy
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		out = append(out, p)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) UpdatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE pharmacies SET name = $2, npi = $3, phone = $4, address = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING version, updated_at`,
		p.ID, p.Name, p.NPI, nullIfEmpty(p.Phone), nullIfEmpty(p.Address), p.Version,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("update pharmacy %s: %w", p.ID, s.versionConflict(ctx, "pharmacies", p.ID))
		}
		return writeErr(err, "update pharmacy %s", p.ID)
	}
	return nil
}

func (s *Store) DeletePharmacy(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pharmacies WHERE id = $1`, id)
	if err != nil {
		return deleteErr(err, "delete pharmacy %s", id)
	}
	return execExpectOne(tag, nil, "delete pharmacy %s", id)
}

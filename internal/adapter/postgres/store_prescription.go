package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CareForge/internal/domain/prescription"
)

const prescriptionColumns = `id, member_id, pharmacy_id, drug_code, drug_name, quantity, refills, refills_remaining,
	coalesce(prescriber_npi, ''), status, version, filled_at, created_at, updated_at`

func scanPrescription(row scannable) (prescription.Prescription, error) {
	var p prescription.Prescription
	var status string
	err := row.Scan(&p.ID, &p.MemberID, &p.PharmacyID, &p.DrugCode, &p.DrugName, &p.Quantity, &p.Refills,
		&p.RefillsRemaining, &p.PrescriberNPI, &status, &p.Version, &p.FilledAt, &p.CreatedAt, &p.UpdatedAt)
	p.Status = prescription.Status(status)
	return p, err
}

func (s *Store) CreatePrescription(ctx context.Context, p *prescription.Prescription) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO prescriptions (id, member_id, pharmacy_id, drug_code, drug_name, quantity, refills, refills_remaining, prescriber_npi, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING version, created_at, updated_at`,
		p.ID, p.MemberID, p.PharmacyID, p.DrugCode, p.DrugName, p.Quantity, p.Refills, p.RefillsRemaining,
		nullIfEmpty(p.PrescriberNPI), string(p.Status),
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return writeErr(err, "create prescription")
	}
	return nil
}

func (s *Store) GetPrescription(ctx context.Context, id string) (*prescription.Prescription, error) {
	p, err := scanPrescription(s.pool.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get prescription %s", id)
	}
	return &p, nil
}

func (s *Store) ListPrescriptionsByMember(ctx context.Context, memberID string) ([]prescription.Prescription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE member_id = $1 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions for member %s: %w", memberID, err)
	}
	defer rows.Close()

	var out []prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return orEmpty(out), rows.Err()
}

// UpdatePrescriptionStatus persists the workflow fields of p, guarded by
// its version.
func (s *Store) UpdatePrescriptionStatus(ctx context.Context, p *prescription.Prescription) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE prescriptions SET status = $2, refills_remaining = $3, filled_at = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING version, updated_at`,
		p.ID, string(p.Status), p.RefillsRemaining, p.FilledAt, p.Version,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("update prescription %s: %w", p.ID, s.versionConflict(ctx, "prescriptions", p.ID))
		}
		return writeErr(err, "update prescription %s", p.ID)
	}
	return nil
}

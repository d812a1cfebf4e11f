// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
)

// Store is the port interface for database operations.
//
// Lookups of missing rows return an error wrapping domain.ErrNotFound.
// Unique violations and stale versions on update return an error wrapping
// domain.ErrConflict. Create and Update fill in server-assigned fields
// (timestamps, version) on the passed entity.
type Store interface {
	// Members
	CreateMember(ctx context.Context, m *member.Member) error
	GetMember(ctx context.Context, id string) (*member.Member, error)
	ListMembers(ctx context.Context, limit, offset int) ([]member.Member, error)
	UpdateMember(ctx context.Context, m *member.Member) error
	DeleteMember(ctx context.Context, id string) error

	// Pharmacies
	CreatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error
	GetPharmacy(ctx context.Context, id string) (*pharmacy.Pharmacy, error)
	ListPharmacies(ctx context.Context, limit, offset int) ([]pharmacy.Pharmacy, error)
	UpdatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error
	DeletePharmacy(ctx context.Context, id string) error

	// Prescriptions
	CreatePrescription(ctx context.Context, p *prescription.Prescription) error
	GetPrescription(ctx context.Context, id string) (*prescription.Prescription, error)
	ListPrescriptionsByMember(ctx context.Context, memberID string) ([]prescription.Prescription, error)
	UpdatePrescriptionStatus(ctx context.Context, p *prescription.Prescription) error

	// Roles
	CreateRole(ctx context.Context, r *role.Role) error
	GetRole(ctx context.Context, id string) (*role.Role, error)
	GetRoleByName(ctx context.Context, name string) (*role.Role, error)
	ListRoles(ctx context.Context) ([]role.Role, error)
	UpdateRole(ctx context.Context, r *role.Role) error
	DeleteRole(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUserRole(ctx context.Context, userID, roleName string) error

	// API keys
	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*user.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
}

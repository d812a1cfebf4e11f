package service

import (
	"context"
	"strings"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/port/identity"
)

// Roles allowed to perform each class of operation.
var (
	adminOnly = []string{role.Admin}
	staff     = []string{role.Admin, role.Pharmacist}
)

// CreateRole creates a role. Success carries true.
type CreateRole struct {
	dispatch.Returns[bool]
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (CreateRole) RequiredRoles() []string { return adminOnly }

// UpdateRole renames or re-describes a role.
type UpdateRole struct {
	dispatch.Returns[role.Role]
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (UpdateRole) RequiredRoles() []string { return adminOnly }

// DeleteRole deletes a non-system role.
type DeleteRole struct {
	dispatch.Returns[bool]
	ID string
}

func (DeleteRole) RequiredRoles() []string { return adminOnly }

// GetRole looks up a role by ID.
type GetRole struct {
	dispatch.Returns[role.Role]
	ID string
}

// ListRoles lists all roles ordered by name.
type ListRoles struct {
	dispatch.Returns[[]role.Role]
}

// AssignRole sets the role of a user.
type AssignRole struct {
	dispatch.Returns[bool]
	UserID   string `json:"-"`
	RoleName string `json:"role"`
}

func (AssignRole) RequiredRoles() []string { return adminOnly }

// Role validation codes.
const (
	CodeRoleNameRequired = "ROLE_NAME_REQUIRED"
	CodeRoleNameInvalid  = "ROLE_NAME_INVALID"
	CodeRoleIDRequired   = "ROLE_ID_REQUIRED"
	CodeUserIDRequired   = "USER_ID_REQUIRED"
)

// RoleService exposes role administration through the dispatcher. The
// identity collaborator owns storage and the protection rules.
type RoleService struct {
	identity identity.Service
}

// NewRoleService creates a RoleService.
func NewRoleService(id identity.Service) *RoleService {
	return &RoleService{identity: id}
}

// Register binds the role handlers and validators.
func (s *RoleService) Register(b *dispatch.Builder) {
	dispatch.Validate(b, roleNameRequired(func(r CreateRole) string { return r.Name }),
		roleNameValid(func(r CreateRole) string { return r.Name }))
	dispatch.Validate(b, idRequired(CodeRoleIDRequired, "role id", func(r UpdateRole) string { return r.ID }),
		roleNameRequired(func(r UpdateRole) string { return r.Name }),
		roleNameValid(func(r UpdateRole) string { return r.Name }))
	dispatch.Validate(b, idRequired(CodeRoleIDRequired, "role id", func(r DeleteRole) string { return r.ID }))
	dispatch.Validate(b, idRequired(CodeRoleIDRequired, "role id", func(r GetRole) string { return r.ID }))
	dispatch.Validate(b, idRequired(CodeUserIDRequired, "user id", func(r AssignRole) string { return r.UserID }),
		roleNameRequired(func(r AssignRole) string { return r.RoleName }))

	dispatch.Register(b, s.createRole)
	dispatch.Register(b, s.updateRole)
	dispatch.Register(b, s.deleteRole)
	dispatch.Register(b, s.getRole)
	dispatch.Register(b, s.listRoles)
	dispatch.Register(b, s.assignRole)
}

func (s *RoleService) createRole(ctx context.Context, req CreateRole) result.Result[bool] {
	created := s.identity.CreateRole(ctx, strings.TrimSpace(req.Name), req.Description)
	return result.Map(created, func(role.Role) bool { return true })
}

func (s *RoleService) updateRole(ctx context.Context, req UpdateRole) result.Result[role.Role] {
	return s.identity.UpdateRole(ctx, role.Role{
		ID:          req.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	})
}

func (s *RoleService) deleteRole(ctx context.Context, req DeleteRole) result.Result[bool] {
	return s.identity.DeleteRole(ctx, req.ID)
}

func (s *RoleService) getRole(ctx context.Context, req GetRole) result.Result[role.Role] {
	return s.identity.GetRole(ctx, req.ID)
}

func (s *RoleService) listRoles(ctx context.Context, _ ListRoles) result.Result[[]role.Role] {
	return s.identity.ListRoles(ctx)
}

func (s *RoleService) assignRole(ctx context.Context, req AssignRole) result.Result[bool] {
	return s.identity.AssignRole(ctx, req.UserID, strings.TrimSpace(req.RoleName))
}

func roleNameRequired[Req any](name func(Req) string) dispatch.ValidatorFunc[Req] {
	return dispatch.Check(CodeRoleNameRequired, "role name is required", func(r Req) bool {
		return strings.TrimSpace(name(r)) != ""
	})
}

// roleNameValid leaves empty names to roleNameRequired.
func roleNameValid[Req any](name func(Req) string) dispatch.ValidatorFunc[Req] {
	return dispatch.Check(CodeRoleNameInvalid,
		"role name must be at most 64 letters, digits, spaces, hyphens or underscores",
		func(r Req) bool {
			n := strings.TrimSpace(name(r))
			return n == "" || role.ValidName(n)
		})
}

func idRequired[Req any](code, what string, id func(Req) string) dispatch.ValidatorFunc[Req] {
	return dispatch.Check(code, what+" is required", func(r Req) bool {
		return strings.TrimSpace(id(r)) != ""
	})
}

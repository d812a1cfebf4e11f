// Package identity defines the identity and role management port. Unlike the
// other ports it reports outcomes as result.Result, since its failures
// (duplicate role, protected role, bad credentials) are expected.
package identity

import (
	"context"

	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
)

// Failure codes reported by identity implementations.
const (
	CodeRoleExists         = "ROLE_EXISTS"
	CodeRoleNotFound       = "ROLE_NOT_FOUND"
	CodeRoleProtected      = "ROLE_PROTECTED"
	CodeRoleInUse          = "ROLE_IN_USE"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUserExists         = "USER_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserInvalid        = "USER_INVALID"
)

// Service manages roles, users and credentials.
type Service interface {
	CreateRole(ctx context.Context, name, description string) result.Result[role.Role]
	GetRole(ctx context.Context, id string) result.Result[role.Role]
	ListRoles(ctx context.Context) result.Result[[]role.Role]
	UpdateRole(ctx context.Context, r role.Role) result.Result[role.Role]
	DeleteRole(ctx context.Context, id string) result.Result[bool]
	AssignRole(ctx context.Context, userID, roleName string) result.Result[bool]

	CreateUser(ctx context.Context, req user.CreateRequest) result.Result[user.User]
	Authenticate(ctx context.Context, email, password string) result.Result[user.Principal]
	AuthenticateAPIKey(ctx context.Context, plainKey string) result.Result[user.Principal]
	CreateAPIKey(ctx context.Context, userID string, req user.CreateAPIKeyRequest) result.Result[user.CreateAPIKeyResponse]
}

package service

import (
	"context"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/port/identity"
)

// CreateUser registers an API operator with a role.
type CreateUser struct {
	dispatch.Returns[user.User]
	user.CreateRequest
}

func (CreateUser) RequiredRoles() []string { return adminOnly }

// CreateAPIKey issues an API key for UserID, normally the caller.
type CreateAPIKey struct {
	dispatch.Returns[user.CreateAPIKeyResponse]
	UserID string `json:"-"`
	user.CreateAPIKeyRequest
}

// CodeAPIKeyNameRequired rejects unnamed API keys.
const CodeAPIKeyNameRequired = "API_KEY_NAME_REQUIRED"

// UserService exposes user administration through the dispatcher.
type UserService struct {
	identity identity.Service
}

// NewUserService creates a UserService.
func NewUserService(id identity.Service) *UserService {
	return &UserService{identity: id}
}

// Register binds the user handlers and validators.
func (s *UserService) Register(b *dispatch.Builder) {
	dispatch.Validate(b,
		idRequired(CodeUserIDRequired, "user id", func(r CreateAPIKey) string { return r.UserID }),
		idRequired(CodeAPIKeyNameRequired, "key name", func(r CreateAPIKey) string { return r.Name }),
	)
	dispatch.Register(b, s.createUser)
	dispatch.Register(b, s.createAPIKey)
}

func (s *UserService) createUser(ctx context.Context, req CreateUser) result.Result[user.User] {
	return s.identity.CreateUser(ctx, req.CreateRequest)
}

func (s *UserService) createAPIKey(ctx context.Context, req CreateAPIKey) result.Result[user.CreateAPIKeyResponse] {
	return s.identity.CreateAPIKey(ctx, req.UserID, req.CreateAPIKeyRequest)
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/CareForge/internal/domain"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/port/database"
	"github.com/Strob0t/CareForge/internal/port/identity"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

var _ identity.Service = (*IdentityService)(nil)

// IdentityService manages roles, users and credentials on top of the store.
// Passwords are bcrypt hashed; API keys are stored as SHA-256 digests.
type IdentityService struct {
	store      database.Store
	bcryptCost int
	events     *Events
	now        func() time.Time
	// dummyHash is compared against when the user does not exist so that
	// unknown emails take as long as wrong passwords.
	dummyHash []byte
}

// NewIdentityService creates an IdentityService. It fails when bcryptCost
// is outside the range bcrypt accepts.
func NewIdentityService(store database.Store, bcryptCost int, ev *Events) (*IdentityService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("careforge-timing-guard"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: timing guard hash: %w", err)
	}
	return &IdentityService{
		store:      store,
		bcryptCost: bcryptCost,
		events:     ev,
		now:        time.Now,
		dummyHash:  dummy,
	}, nil
}

func (s *IdentityService) CreateRole(ctx context.Context, name, description string) result.Result[role.Role] {
	if _, err := s.store.GetRoleByName(ctx, name); err == nil {
		return result.Failure[role.Role](result.Conflict(identity.CodeRoleExists,
			fmt.Sprintf("role %q already exists", name)))
	} else if !errors.Is(err, domain.ErrNotFound) {
		return result.FailureFrom[role.Role](err)
	}

	r := role.Role{ID: uuid.NewString(), Name: name, Description: description}
	if err := s.store.CreateRole(ctx, &r); err != nil {
		return result.Failure[role.Role](failAs(err, "", identity.CodeRoleExists))
	}
	s.events.publish(ctx, messagequeue.SubjectRoleCreated, messagequeue.RoleEventPayload{RoleID: r.ID, RoleName: r.Name})
	return result.Success(r)
}

func (s *IdentityService) GetRole(ctx context.Context, id string) result.Result[role.Role] {
	r, err := s.store.GetRole(ctx, id)
	if err != nil {
		return result.Failure[role.Role](failAs(err, identity.CodeRoleNotFound, ""))
	}
	return result.Success(*r)
}

func (s *IdentityService) ListRoles(ctx context.Context) result.Result[[]role.Role] {
	return result.From(s.store.ListRoles(ctx))
}

// UpdateRole changes a role's name and description. System roles keep
// their name.
func (s *IdentityService) UpdateRole(ctx context.Context, r role.Role) result.Result[role.Role] {
	current, err := s.store.GetRole(ctx, r.ID)
	if err != nil {
		return result.Failure[role.Role](failAs(err, identity.CodeRoleNotFound, ""))
	}
	if current.System && !strings.EqualFold(current.Name, r.Name) {
		return result.Failure[role.Role](result.Unauthorized(identity.CodeRoleProtected,
			fmt.Sprintf("system role %q cannot be renamed", current.Name)))
	}

	if err := s.store.UpdateRole(ctx, &r); err != nil {
		return result.Failure[role.Role](failAs(err, identity.CodeRoleNotFound, identity.CodeRoleExists))
	}
	s.events.publish(ctx, messagequeue.SubjectRoleUpdated, messagequeue.RoleEventPayload{RoleID: r.ID, RoleName: r.Name})
	return result.Success(r)
}

// DeleteRole removes a role that is neither a system role nor assigned to
// any user.
func (s *IdentityService) DeleteRole(ctx context.Context, id string) result.Result[bool] {
	r, err := s.store.GetRole(ctx, id)
	if err != nil {
		return result.Failure[bool](failAs(err, identity.CodeRoleNotFound, ""))
	}
	if r.System {
		return result.Failure[bool](result.Unauthorized(identity.CodeRoleProtected,
			fmt.Sprintf("system role %q cannot be deleted", r.Name)))
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return result.FailureFrom[bool](err)
	}
	for i := range users {
		if strings.EqualFold(users[i].Role, r.Name) {
			return result.Failure[bool](result.Conflict(identity.CodeRoleInUse,
				fmt.Sprintf("role %q is assigned to %s", r.Name, users[i].Email)))
		}
	}

	if err := s.store.DeleteRole(ctx, id); err != nil {
		return result.Failure[bool](failAs(err, identity.CodeRoleNotFound, ""))
	}
	s.events.publish(ctx, messagequeue.SubjectRoleDeleted, messagequeue.RoleEventPayload{RoleID: r.ID, RoleName: r.Name})
	return result.Success(true)
}

// AssignRole sets the role of a user. The stored name is the role's
// canonical spelling.
func (s *IdentityService) AssignRole(ctx context.Context, userID, roleName string) result.Result[bool] {
	r, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return result.Failure[bool](failAs(err, identity.CodeRoleNotFound, ""))
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return result.Failure[bool](failAs(err, identity.CodeUserNotFound, ""))
	}
	if err := s.store.UpdateUserRole(ctx, userID, r.Name); err != nil {
		return result.Failure[bool](failAs(err, identity.CodeUserNotFound, ""))
	}
	s.events.publish(ctx, messagequeue.SubjectRoleAssigned, messagequeue.RoleEventPayload{RoleID: r.ID, RoleName: r.Name, UserID: userID})
	return result.Success(true)
}

func (s *IdentityService) CreateUser(ctx context.Context, req user.CreateRequest) result.Result[user.User] {
	if err := req.Validate(); err != nil {
		return result.Failure[user.User](result.Validation(identity.CodeUserInvalid, err.Error()))
	}
	r, err := s.store.GetRoleByName(ctx, req.Role)
	if err != nil {
		return result.Failure[user.User](failAs(err, identity.CodeRoleNotFound, ""))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return result.FailureFrom[user.User](fmt.Errorf("hash password: %w", err))
	}

	u := user.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         r.Name,
		Enabled:      true,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return result.Failure[user.User](failAs(err, "", identity.CodeUserExists))
	}
	return result.Success(u)
}

func (s *IdentityService) Authenticate(ctx context.Context, email, password string) result.Result[user.Principal] {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return result.FailureFrom[user.Principal](err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return invalidCredentials()
	}
	if !u.Enabled {
		return invalidCredentials()
	}
	return result.Success(user.Principal{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (s *IdentityService) AuthenticateAPIKey(ctx context.Context, plainKey string) result.Result[user.Principal] {
	if !strings.HasPrefix(plainKey, user.APIKeyPrefix) {
		return invalidCredentials()
	}
	key, err := s.store.GetAPIKeyByHash(ctx, hashSHA256(plainKey))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return invalidCredentials()
		}
		return result.FailureFrom[user.Principal](err)
	}
	if key.Expired(s.now()) {
		return invalidCredentials()
	}
	u, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		return result.Failure[user.Principal](failAs(err, identity.CodeInvalidCredentials, ""))
	}
	if !u.Enabled {
		return invalidCredentials()
	}
	return result.Success(user.Principal{UserID: u.ID, Email: u.Email, Role: u.Role})
}

// CreateAPIKey generates a key for a user. The plain key is only returned
// here; the store keeps its digest.
func (s *IdentityService) CreateAPIKey(ctx context.Context, userID string, req user.CreateAPIKeyRequest) result.Result[user.CreateAPIKeyResponse] {
	if err := req.Validate(); err != nil {
		return result.Failure[user.CreateAPIKeyResponse](result.Validation("API_KEY_INVALID", err.Error()))
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return result.Failure[user.CreateAPIKeyResponse](failAs(err, identity.CodeUserNotFound, ""))
	}

	raw, err := generateRandomToken(32)
	if err != nil {
		return result.FailureFrom[user.CreateAPIKeyResponse](fmt.Errorf("generate key: %w", err))
	}
	plainKey := user.APIKeyPrefix + raw

	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = s.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	key := user.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		Prefix:    plainKey[:len(user.APIKeyPrefix)+8],
		KeyHash:   hashSHA256(plainKey),
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, &key); err != nil {
		return result.FailureFrom[user.CreateAPIKeyResponse](fmt.Errorf("create api key: %w", err))
	}
	return result.Success(user.CreateAPIKeyResponse{APIKey: key, PlainKey: plainKey})
}

// SeedAdmin creates the initial admin user when no users exist yet.
func (s *IdentityService) SeedAdmin(ctx context.Context, email, password string, log *slog.Logger) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) > 0 {
		return nil
	}
	if password == "" {
		log.Warn("no users exist and auth.admin_password is unset; skipping admin seed")
		return nil
	}

	res := s.CreateUser(ctx, user.CreateRequest{Email: email, Name: "Admin", Password: password, Role: role.Admin})
	if res.IsFailure() {
		return fmt.Errorf("seed admin: %w", res.Err())
	}
	log.Info("seeded default admin user", "email", email)
	return nil
}

func invalidCredentials() result.Result[user.Principal] {
	return result.Failure[user.Principal](result.Unauthorized(identity.CodeInvalidCredentials, "invalid credentials"))
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

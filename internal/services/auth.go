package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/accountd-io/authserver/internal/auth"
	"github.com/accountd-io/authserver/internal/store"
	"github.com/accountd-io/authserver/types"
)

const maxUsernameLength = 100

// AccountRepository defines persistence operations for accounts. Email
// and username uniqueness is enforced by the store; Create surfaces a
// violation as store.ErrDuplicate.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	SetRefreshToken(ctx context.Context, id, token string, lastLogin time.Time) (types.Account, error)
	ClearRefreshToken(ctx context.Context, id string) (types.Account, error)
	SetPasswordHash(ctx context.Context, id, hash string) (types.Account, error)
	Delete(ctx context.Context, id string) error
}

// Notifier publishes account lifecycle events to an external system.
type Notifier interface {
	AccountCreated(ctx context.Context, account types.Account) error
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// LoginInput is the payload for authenticating an account.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordInput is the payload for rotating a password.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// LoginResult carries the sanitized account and the freshly issued
// token pair.
type LoginResult struct {
	Account      types.SanitizedAccount `json:"user"`
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
}

// AuthOptions holds the product decisions left open by earlier
// iterations of this service.
type AuthOptions struct {
	// RevokeOnPasswordChange clears the stored refresh token when the
	// password changes, forcing re-login elsewhere.
	RevokeOnPasswordChange bool

	// TransactionalSignup rolls back the account row when the creation
	// event cannot be published. Off by default; the event is
	// best-effort.
	TransactionalSignup bool
}

// AuthService is the session lifecycle engine. It orchestrates
// registration, login, refresh, logout, and password change over the
// account store, the password hasher, and the token codec. All
// collaborators are constructor-supplied.
type AuthService struct {
	repo     AccountRepository
	hasher   *auth.PasswordHasher
	codec    *auth.TokenCodec
	notifier Notifier
	opts     AuthOptions
}

// NewAuthService constructs the engine. notifier may be nil when no
// event backend is configured.
func NewAuthService(repo AccountRepository, hasher *auth.PasswordHasher, codec *auth.TokenCodec, notifier Notifier, opts AuthOptions) *AuthService {
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		codec:    codec,
		notifier: notifier,
		opts:     opts,
	}
}

// Register creates a new account. The username is normalized to
// lowercase before the uniqueness checks and the write, so case
// variants collide. The pre-insert lookups give friendly errors; the
// store's unique constraints are what actually win the race between
// concurrent registrations.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (types.SanitizedAccount, error) {
	email := strings.TrimSpace(input.Email)
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if email == "" || username == "" || input.Password == "" {
		return types.SanitizedAccount{}, validationError("email, username, and password are required")
	}
	if len(username) > maxUsernameLength {
		return types.SanitizedAccount{}, validationError("username must be at most 100 characters")
	}

	role := types.RoleUser
	if input.Role != "" {
		role = types.Role(input.Role)
		if !types.ValidRole(role) {
			return types.SanitizedAccount{}, validationError("unknown role")
		}
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.SanitizedAccount{}, conflictError(CodeAlreadyExists, "email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.SanitizedAccount{}, internalError(CodeInternal, "failed to check email", err)
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return types.SanitizedAccount{}, conflictError(CodeAlreadyExists, "username already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.SanitizedAccount{}, internalError(CodeInternal, "failed to check username", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return types.SanitizedAccount{}, internalError(CodePasswordHashFailed, "failed to hash password", err)
	}

	account, err := s.repo.Create(ctx, types.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         role,
		Status:       types.StatusActive,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.SanitizedAccount{}, conflictError(CodeAlreadyExists, "account already exists")
		}
		return types.SanitizedAccount{}, internalError(CodeRegistrationFailed, "account registration failed", err)
	}

	if s.notifier != nil {
		if err := s.notifier.AccountCreated(ctx, account); err != nil && s.opts.TransactionalSignup {
			_ = s.repo.Delete(ctx, account.ID)
			return types.SanitizedAccount{}, internalError(CodeRegistrationFailed, "account creation event failed", err)
		}
	}

	return types.Sanitize(account), nil
}

// Login authenticates credentials and issues a fresh token pair. The
// new refresh token overwrites any prior one, so at most one refresh
// token is live per account.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || strings.TrimSpace(input.Password) == "" {
		return LoginResult{}, validationError("email and password are required")
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, notFoundError(CodeUserNotFound, "user not found")
		}
		return LoginResult{}, internalError(CodeInternal, "failed to load account", err)
	}

	if account.PasswordHash == "" {
		return LoginResult{}, internalError(CodeInternal, "account password hash missing", nil)
	}

	if !s.hasher.Verify(input.Password, account.PasswordHash) {
		return LoginResult{}, authError(CodeInvalidCredentials, "invalid credentials")
	}

	if account.Status != types.StatusActive {
		return LoginResult{}, authError(CodeUserInactive, "account is not active")
	}

	accessToken, err := s.codec.IssueAccess(account)
	if err != nil {
		return LoginResult{}, internalError(CodeInternal, "failed to issue access token", err)
	}
	refreshToken, err := s.codec.IssueRefresh(account.ID)
	if err != nil {
		return LoginResult{}, internalError(CodeInternal, "failed to issue refresh token", err)
	}

	updated, err := s.repo.SetRefreshToken(ctx, account.ID, refreshToken, time.Now())
	if err != nil {
		return LoginResult{}, internalError(CodeInternal, "failed to persist refresh token", err)
	}

	return LoginResult{
		Account:      types.Sanitize(updated),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh mints a new access token for a valid refresh token. The token
// must verify cryptographically and equal the value currently stored on
// the account; a stale or post-logout token is rejected. The refresh
// token itself is not rotated here — only login rotates it.
func (s *AuthService) Refresh(ctx context.Context, incomingRefreshToken string) (string, error) {
	if strings.TrimSpace(incomingRefreshToken) == "" {
		return "", authError(CodeRefreshTokenMissing, "refresh token missing")
	}

	accountID, err := s.codec.VerifyRefresh(incomingRefreshToken)
	if err != nil {
		return "", authError(CodeTokenInvalid, "invalid refresh token")
	}

	// A missing account is reported the same as a bad token so callers
	// cannot probe which account ids exist.
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", authError(CodeTokenInvalid, "invalid refresh token")
		}
		return "", internalError(CodeInternal, "failed to load account", err)
	}

	if account.RefreshToken == "" || account.RefreshToken != incomingRefreshToken {
		return "", authError(CodeRefreshTokenMismatch, "refresh token does not match stored token")
	}

	accessToken, err := s.codec.IssueAccess(account)
	if err != nil {
		return "", internalError(CodeInternal, "failed to issue access token", err)
	}
	return accessToken, nil
}

// Logout clears the stored refresh token. Logging out an account with
// no live session is not an error.
func (s *AuthService) Logout(ctx context.Context, accountID string) (types.SanitizedAccount, error) {
	if strings.TrimSpace(accountID) == "" {
		return types.SanitizedAccount{}, validationError("account id is required")
	}

	account, err := s.repo.ClearRefreshToken(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SanitizedAccount{}, notFoundError(CodeUserNotFound, "user not found")
		}
		return types.SanitizedAccount{}, internalError(CodeInternal, "failed to clear refresh token", err)
	}
	return types.Sanitize(account), nil
}

// ChangePassword verifies the old password and stores a hash of the new
// one. Whether the live refresh token survives is governed by
// AuthOptions.RevokeOnPasswordChange.
func (s *AuthService) ChangePassword(ctx context.Context, accountID string, input ChangePasswordInput) error {
	if strings.TrimSpace(accountID) == "" {
		return validationError("account id is required")
	}
	if input.OldPassword == "" || input.NewPassword == "" {
		return validationError("old and new passwords are required")
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeUserNotFound, "user not found")
		}
		return internalError(CodeInternal, "failed to load account", err)
	}
	if account.PasswordHash == "" {
		return notFoundError(CodeUserNotFound, "user not found")
	}

	if !s.hasher.Verify(input.OldPassword, account.PasswordHash) {
		return authError(CodeInvalidCredentials, "invalid credentials")
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return internalError(CodePasswordHashFailed, "failed to hash new password", err)
	}

	if _, err := s.repo.SetPasswordHash(ctx, accountID, hash); err != nil {
		return internalError(CodeInternal, "failed to persist new password", err)
	}

	if s.opts.RevokeOnPasswordChange {
		if _, err := s.repo.ClearRefreshToken(ctx, accountID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return internalError(CodeInternal, "failed to revoke refresh token", err)
		}
	}
	return nil
}

// Account returns the sanitized view of an account by id.
func (s *AuthService) Account(ctx context.Context, accountID string) (types.SanitizedAccount, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SanitizedAccount{}, notFoundError(CodeUserNotFound, "user not found")
		}
		return types.SanitizedAccount{}, internalError(CodeInternal, "failed to load account", err)
	}
	return types.Sanitize(account), nil
}

package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd-io/authserver/internal/auth"
	"github.com/accountd-io/authserver/internal/services"
	"github.com/accountd-io/authserver/internal/store"
	"github.com/accountd-io/authserver/internal/store/storefake"
	"github.com/accountd-io/authserver/types"
)

type fixture struct {
	repo     *storefake.FakeAccountRepo
	codec    *auth.TokenCodec
	notifier *stubNotifier
	service  *services.AuthService
}

type stubNotifier struct {
	mu     sync.Mutex
	events []types.Account
	fail   error
}

func (n *stubNotifier) AccountCreated(ctx context.Context, account types.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.events = append(n.events, account)
	return nil
}

func newFixture(t *testing.T, opts services.AuthOptions) *fixture {
	t.Helper()
	repo := storefake.New()
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	codec := auth.NewTokenCodec("access-secret", "refresh-secret", time.Minute, time.Hour)
	notifier := &stubNotifier{}
	return &fixture{
		repo:     repo,
		codec:    codec,
		notifier: notifier,
		service:  services.NewAuthService(repo, hasher, codec, notifier, opts),
	}
}

func register(t *testing.T, f *fixture, email, username, password string) types.SanitizedAccount {
	t.Helper()
	account, err := f.service.Register(context.Background(), services.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
	return account
}

func requireServiceError(t *testing.T, err error, kind services.Kind, code services.Code) {
	t.Helper()
	svcErr := services.AsError(err)
	require.NotNil(t, svcErr, "expected a service error, got %v", err)
	require.Equal(t, kind, svcErr.Kind)
	require.Equal(t, code, svcErr.Code)
}

func TestRegisterReturnsSanitizedAccount(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	account := register(t, f, "a@x.com", "Alice", "p1")

	require.NotEmpty(t, account.ID)
	require.Equal(t, "alice", account.Username)
	require.Equal(t, "a@x.com", account.Email)
	require.Equal(t, types.RoleUser, account.Role)
	require.Equal(t, types.StatusActive, account.Status)
	require.False(t, account.CreatedAt.IsZero())
	require.Nil(t, account.LastLogin)

	stored, err := f.repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.PasswordHash)
	require.NotEqual(t, "p1", stored.PasswordHash)
	require.Empty(t, stored.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	cases := []services.RegisterInput{
		{Email: "", Username: "alice", Password: "p1"},
		{Email: "a@x.com", Username: "  ", Password: "p1"},
		{Email: "a@x.com", Username: "alice", Password: ""},
		{Email: "a@x.com", Username: "alice", Password: "p1", Role: "superuser"},
	}
	for _, input := range cases {
		_, err := f.service.Register(context.Background(), input)
		requireServiceError(t, err, services.KindValidation, services.CodeValidation)
	}
}

func TestRegisterWithExplicitRole(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	account, err := f.service.Register(context.Background(), services.RegisterInput{
		Email:    "e@x.com",
		Username: "ed",
		Password: "p1",
		Role:     "editor",
	})
	require.NoError(t, err)
	require.Equal(t, types.RoleEditor, account.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "a@x.com", "alice", "p1")

	_, err := f.service.Register(context.Background(), services.RegisterInput{
		Email:    "a@x.com",
		Username: "other",
		Password: "p2",
	})
	requireServiceError(t, err, services.KindConflict, services.CodeAlreadyExists)
}

func TestRegisterUsernameCaseVariantsCollide(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "b1@x.com", "Bob", "p1")

	_, err := f.service.Register(context.Background(), services.RegisterInput{
		Email:    "b2@x.com",
		Username: "BOB",
		Password: "p2",
	})
	requireServiceError(t, err, services.KindConflict, services.CodeAlreadyExists)
}

// raceRepo hides existing rows from the pre-insert lookups so the unique
// constraint is the only thing standing between two racing registrations.
type raceRepo struct {
	*storefake.FakeAccountRepo
}

func (r *raceRepo) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	return types.Account{}, store.ErrNotFound
}

func (r *raceRepo) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	return types.Account{}, store.ErrNotFound
}

func TestRegisterRaceLosesAsConflict(t *testing.T) {
	repo := &raceRepo{storefake.New()}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	codec := auth.NewTokenCodec("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := services.NewAuthService(repo, hasher, codec, nil, services.AuthOptions{})

	input := services.RegisterInput{Email: "race@x.com", Username: "racer", Password: "p1"}

	_, err := service.Register(context.Background(), input)
	require.NoError(t, err)

	// Second insert passes the (blinded) existence checks and must be
	// mapped from the store's unique violation, not an internal error.
	_, err = service.Register(context.Background(), input)
	requireServiceError(t, err, services.KindConflict, services.CodeAlreadyExists)
}

func TestConcurrentRegisterSameIdentity(t *testing.T) {
	repo := &raceRepo{storefake.New()}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	codec := auth.NewTokenCodec("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := services.NewAuthService(repo, hasher, codec, nil, services.AuthOptions{})

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.Register(context.Background(), services.RegisterInput{
				Email:    "c@x.com",
				Username: "carol",
				Password: "p1",
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		requireServiceError(t, err, services.KindConflict, services.CodeAlreadyExists)
	}
	require.Equal(t, 1, successes)
}

func TestRegisterPublishesAccountCreated(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	account := register(t, f, "a@x.com", "alice", "p1")

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, account.ID, f.notifier.events[0].ID)
}

func TestRegisterNotifierFailureIsBestEffortByDefault(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	f.notifier.fail = errors.New("broker down")

	account := register(t, f, "a@x.com", "alice", "p1")

	_, err := f.repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
}

func TestRegisterTransactionalSignupRollsBack(t *testing.T) {
	f := newFixture(t, services.AuthOptions{TransactionalSignup: true})
	f.notifier.fail = errors.New("broker down")

	_, err := f.service.Register(context.Background(), services.RegisterInput{
		Email:    "a@x.com",
		Username: "alice",
		Password: "p1",
	})
	requireServiceError(t, err, services.KindInternal, services.CodeRegistrationFailed)

	_, err = f.repo.GetByEmail(context.Background(), "a@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginIssuesWorkingTokenPair(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "a@x.com", "Alice", "p1")

	result, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.NotNil(t, result.Account.LastLogin)

	claims, err := f.codec.VerifyAccess(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, result.Account.ID, claims.Subject)
	require.Equal(t, "a@x.com", claims.Email)

	accessToken, err := f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "a@x.com", "alice", "p1")

	_, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "wrong"})
	requireServiceError(t, err, services.KindAuth, services.CodeInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	_, err := f.service.Login(context.Background(), services.LoginInput{Email: "nobody@x.com", Password: "p1"})
	requireServiceError(t, err, services.KindNotFound, services.CodeUserNotFound)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	_, err := f.service.Login(context.Background(), services.LoginInput{Email: " ", Password: "p1"})
	requireServiceError(t, err, services.KindValidation, services.CodeValidation)

	_, err = f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "  "})
	requireServiceError(t, err, services.KindValidation, services.CodeValidation)
}

func TestLoginDeniedForNonActiveStatus(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("p1")
	require.NoError(t, err)

	statuses := []types.Status{
		types.StatusInactive,
		types.StatusPending,
		types.StatusSuspended,
		types.StatusDeleted,
		types.StatusBanned,
	}
	for i, status := range statuses {
		_, err := f.repo.Create(context.Background(), types.Account{
			ID:           string(rune('a'+i)) + "-id",
			Username:     "user" + string(rune('a'+i)),
			Email:        string(rune('a'+i)) + "@x.com",
			Role:         types.RoleUser,
			Status:       status,
			PasswordHash: hash,
		})
		require.NoError(t, err)

		_, err = f.service.Login(context.Background(), services.LoginInput{
			Email:    string(rune('a'+i)) + "@x.com",
			Password: "p1",
		})
		requireServiceError(t, err, services.KindAuth, services.CodeUserInactive)
	}
}

func TestSecondLoginSupersedesFirstRefreshToken(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "a@x.com", "alice", "p1")

	first, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), first.RefreshToken)
	requireServiceError(t, err, services.KindAuth, services.CodeRefreshTokenMismatch)

	_, err = f.service.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsMissingAndGarbageTokens(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	_, err := f.service.Refresh(context.Background(), "  ")
	requireServiceError(t, err, services.KindAuth, services.CodeRefreshTokenMissing)

	_, err = f.service.Refresh(context.Background(), "garbage")
	requireServiceError(t, err, services.KindAuth, services.CodeTokenInvalid)
}

func TestRefreshForUnknownAccountLooksLikeInvalidToken(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	// Cryptographically valid token for an account that does not exist.
	token, err := f.codec.IssueRefresh("no-such-account")
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), token)
	requireServiceError(t, err, services.KindAuth, services.CodeTokenInvalid)
}

func TestRefreshDoesNotRotateRefreshToken(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	register(t, f, "a@x.com", "alice", "p1")

	result, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)

	// The same refresh token keeps working; only login rotates it.
	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	result, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)

	account, err := f.service.Logout(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, registered.ID, account.ID)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	requireServiceError(t, err, services.KindAuth, services.CodeRefreshTokenMismatch)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	_, err := f.service.Logout(context.Background(), registered.ID)
	require.NoError(t, err)
	_, err = f.service.Logout(context.Background(), registered.ID)
	require.NoError(t, err)
}

func TestLogoutValidation(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	_, err := f.service.Logout(context.Background(), "  ")
	requireServiceError(t, err, services.KindValidation, services.CodeValidation)

	_, err = f.service.Logout(context.Background(), "no-such-account")
	requireServiceError(t, err, services.KindNotFound, services.CodeUserNotFound)
}

func TestChangePasswordWrongOldLeavesHashUnchanged(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	err := f.service.ChangePassword(context.Background(), registered.ID, services.ChangePasswordInput{
		OldPassword: "wrong",
		NewPassword: "p2",
	})
	requireServiceError(t, err, services.KindAuth, services.CodeInvalidCredentials)

	_, err = f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)
}

func TestChangePasswordRotatesCredential(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	err := f.service.ChangePassword(context.Background(), registered.ID, services.ChangePasswordInput{
		OldPassword: "p1",
		NewPassword: "p2",
	})
	require.NoError(t, err)

	_, err = f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p2"})
	require.NoError(t, err)

	_, err = f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	requireServiceError(t, err, services.KindAuth, services.CodeInvalidCredentials)
}

func TestChangePasswordKeepsSessionByDefault(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	result, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)

	err = f.service.ChangePassword(context.Background(), registered.ID, services.ChangePasswordInput{
		OldPassword: "p1",
		NewPassword: "p2",
	})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
}

func TestChangePasswordRevokesSessionWhenConfigured(t *testing.T) {
	f := newFixture(t, services.AuthOptions{RevokeOnPasswordChange: true})
	registered := register(t, f, "a@x.com", "alice", "p1")

	result, err := f.service.Login(context.Background(), services.LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)

	err = f.service.ChangePassword(context.Background(), registered.ID, services.ChangePasswordInput{
		OldPassword: "p1",
		NewPassword: "p2",
	})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	requireServiceError(t, err, services.KindAuth, services.CodeRefreshTokenMismatch)
}

func TestChangePasswordUnknownAccount(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})

	err := f.service.ChangePassword(context.Background(), "no-such-account", services.ChangePasswordInput{
		OldPassword: "p1",
		NewPassword: "p2",
	})
	requireServiceError(t, err, services.KindNotFound, services.CodeUserNotFound)
}

func TestAccountLookup(t *testing.T) {
	f := newFixture(t, services.AuthOptions{})
	registered := register(t, f, "a@x.com", "alice", "p1")

	account, err := f.service.Account(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Equal(t, registered.ID, account.ID)

	_, err = f.service.Account(context.Background(), "missing")
	requireServiceError(t, err, services.KindNotFound, services.CodeUserNotFound)
}

package storefake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/accountd-io/authserver/internal/services"
	"github.com/accountd-io/authserver/internal/store"
	"github.com/accountd-io/authserver/types"
)

var _ services.AccountRepository = (*FakeAccountRepo)(nil)

// FakeAccountRepo is an in-memory account repository for tests. It
// enforces the same uniqueness guarantees as the Postgres store: insert
// of a duplicate email or username (case-insensitive) fails with
// store.ErrDuplicate.
type FakeAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]types.Account
}

func New() *FakeAccountRepo {
	return &FakeAccountRepo{accounts: make(map[string]types.Account)}
}

func (f *FakeAccountRepo) GetByID(ctx context.Context, id string) (types.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *FakeAccountRepo) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *FakeAccountRepo) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, account := range f.accounts {
		if strings.EqualFold(account.Username, username) {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *FakeAccountRepo) Create(ctx context.Context, account types.Account) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.accounts {
		if existing.Email == account.Email || strings.EqualFold(existing.Username, account.Username) {
			return types.Account{}, store.ErrDuplicate
		}
	}

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	f.accounts[account.ID] = account
	return account, nil
}

func (f *FakeAccountRepo) SetRefreshToken(ctx context.Context, id, token string, lastLogin time.Time) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.RefreshToken = token
	account.LastLogin = &lastLogin
	account.UpdatedAt = time.Now()
	f.accounts[id] = account
	return account, nil
}

func (f *FakeAccountRepo) ClearRefreshToken(ctx context.Context, id string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.RefreshToken = ""
	account.UpdatedAt = time.Now()
	f.accounts[id] = account
	return account, nil
}

func (f *FakeAccountRepo) SetPasswordHash(ctx context.Context, id, hash string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.PasswordHash = hash
	account.UpdatedAt = time.Now()
	f.accounts[id] = account
	return account, nil
}

func (f *FakeAccountRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

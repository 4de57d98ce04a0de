package authentication

import (
	"context"
	"sync"
	"time"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
)

// accountStore is an in-memory AccountRepository. lastLoginErr makes UpdateLastLogin fail.
type accountStore struct {
	mu           sync.Mutex
	nextID       uint
	accounts     map[uint]*account.Account
	lastLoginErr error
}

func newAccountStore() *accountStore {
	return &accountStore{accounts: map[uint]*account.Account{}}
}

func (s *accountStore) Create(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return account.ErrUsernameAlreadyExists
		}
	}
	s.nextID++
	a.ID = s.nextID
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *accountStore) ReadByID(_ context.Context, id uint) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *accountStore) ReadByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (s *accountStore) Update(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return account.ErrAccountNotFound
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *accountStore) UpdateLastLogin(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLoginErr != nil {
		return s.lastLoginErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.LastLogin = &at
	return nil
}

func (s *accountStore) UpdatePasswordHash(_ context.Context, id uint, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.PasswordHash = digest
	return nil
}

func (s *accountStore) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

// tokenStore is an in-memory RefreshTokenRepository. conflicts makes the next n Record calls
// fail with ErrConflict; failWith makes every call fail.
type tokenStore struct {
	mu        sync.Mutex
	nextID    uint
	records   map[string]*RefreshToken
	conflicts int
	failWith  error
}

func newTokenStore() *tokenStore {
	return &tokenStore{records: map[string]*RefreshToken{}}
}

func (s *tokenStore) Record(_ context.Context, accountID uint, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if s.conflicts > 0 {
		s.conflicts--
		return ErrConflict
	}
	if _, ok := s.records[tokenHash]; ok {
		return ErrConflict
	}
	s.nextID++
	s.records[tokenHash] = &RefreshToken{ID: s.nextID, AccountID: accountID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (s *tokenStore) Find(_ context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	r, ok := s.records[tokenHash]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *tokenStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if r, ok := s.records[tokenHash]; ok {
		r.Revoked = true
	}
	return nil
}

func (s *tokenStore) Consume(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	r, ok := s.records[tokenHash]
	if !ok || r.Revoked || !now.Before(r.ExpiresAt) {
		return false, nil
	}
	r.Revoked = true
	return true, nil
}

func (s *tokenStore) RevokeAllForAccount(_ context.Context, accountID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	var n int64
	for _, r := range s.records {
		if r.AccountID == accountID && !r.Revoked {
			r.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *tokenStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	var n int64
	for hash, r := range s.records {
		if !r.ExpiresAt.After(before) {
			delete(s.records, hash)
			n++
		}
	}
	return n, nil
}

func (s *tokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *tokenStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

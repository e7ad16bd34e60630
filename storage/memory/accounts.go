package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/internal/limiters"
)

// AccountStore is a siteauth.AccountStore guarded by one mutex. Every
// method runs its read-modify-write under the lock, so RecordLoginFailure is
// atomic per account.
type AccountStore struct {
	mu      sync.Mutex
	rows    map[string]siteauth.Account
	emailIx map[string]string
}

var _ siteauth.AccountStore = (*AccountStore)(nil)

func NewAccountStore() *AccountStore {
	return &AccountStore{
		rows:    make(map[string]siteauth.Account),
		emailIx: make(map[string]string),
	}
}

// Len reports the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (siteauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emailIx[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return siteauth.Account{}, siteauth.ErrAccountNotFound
	}
	return s.load(id)
}

func (s *AccountStore) GetByID(_ context.Context, id string) (siteauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *AccountStore) Create(_ context.Context, a siteauth.Account) (siteauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, taken := s.emailIx[key]; taken {
		return siteauth.Account{}, siteauth.ErrEmailTaken
	}
	if _, taken := s.rows[a.ID]; taken {
		return siteauth.Account{}, siteauth.ErrEmailTaken
	}
	s.emailIx[key] = a.ID
	return s.store(a), nil
}

func (s *AccountStore) ReplaceUnverified(_ context.Context, id string, u siteauth.ProfileUpdate) (siteauth.Account, error) {
	return s.update(id, func(a *siteauth.Account) error {
		if a.EmailVerified {
			return siteauth.ErrEmailTaken
		}
		a.FirstName = u.FirstName
		a.LastName = u.LastName
		a.Role = u.Role
		a.CompanyID = u.CompanyID
		a.SupervisorManagerID = u.SupervisorManagerID
		a.PasswordHash = u.PasswordHash
		a.Flow = siteauth.FlowUnverified
		a.UpdatedAt = u.UpdatedAt
		return nil
	})
}

func (s *AccountStore) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (siteauth.LockoutState, error) {
	var state siteauth.LockoutState
	_, err := s.update(id, func(a *siteauth.Account) error {
		policy := limiters.LockoutPolicy{MaxAttempts: maxAttempts, LockDuration: lockFor}
		d := policy.Decide(a.FailedLoginAttempts, a.LockUntil, now)
		if d.Verdict == limiters.Locked {
			state = siteauth.LockoutState{FailedAttempts: a.FailedLoginAttempts, LockUntil: cloneTime(a.LockUntil), AlreadyLocked: true}
			return nil
		}
		if d.Verdict == limiters.ShouldLock {
			a.LockUntil = cloneTime(&d.LockUntil)
		}
		a.FailedLoginAttempts++
		state = siteauth.LockoutState{FailedAttempts: a.FailedLoginAttempts, LockUntil: cloneTime(a.LockUntil)}
		return nil
	})
	return state, err
}

func (s *AccountStore) ResetLoginFailures(_ context.Context, id string) error {
	_, err := s.update(id, func(a *siteauth.Account) error {
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
		return nil
	})
	return err
}

func (s *AccountStore) MarkEmailVerified(_ context.Context, id string, now time.Time) (siteauth.Account, error) {
	return s.update(id, func(a *siteauth.Account) error {
		a.EmailVerified = true
		if a.Flow == siteauth.FlowUnverified {
			a.Flow = siteauth.FlowActive
		}
		a.UpdatedAt = now
		return nil
	})
}

func (s *AccountStore) SetFlow(_ context.Context, id string, flow siteauth.FlowState, now time.Time) error {
	_, err := s.update(id, func(a *siteauth.Account) error {
		a.Flow = flow
		a.UpdatedAt = now
		return nil
	})
	return err
}

func (s *AccountStore) UpdatePassword(_ context.Context, u siteauth.PasswordUpdate) (siteauth.Account, error) {
	return s.update(u.AccountID, func(a *siteauth.Account) error {
		a.PasswordHash = u.Hash
		a.Flow = u.Flow
		a.PasswordTemporary = u.Temporary
		a.LastPasswordChange = u.ChangedAt
		a.UpdatedAt = u.ChangedAt
		return nil
	})
}

func (s *AccountStore) UpdateFCMToken(_ context.Context, id, token string) error {
	_, err := s.update(id, func(a *siteauth.Account) error {
		a.FCMToken = token
		return nil
	})
	return err
}

func (s *AccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return siteauth.ErrAccountNotFound
	}
	delete(s.emailIx, strings.ToLower(a.Email))
	delete(s.rows, id)
	return nil
}

// update applies fn to a copy of the row and stores it when fn succeeds.
func (s *AccountStore) update(id string, fn func(*siteauth.Account) error) (siteauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.load(id)
	if err != nil {
		return siteauth.Account{}, err
	}
	if err := fn(&a); err != nil {
		return siteauth.Account{}, err
	}
	return s.store(a), nil
}

func (s *AccountStore) load(id string) (siteauth.Account, error) {
	a, ok := s.rows[id]
	if !ok {
		return siteauth.Account{}, siteauth.ErrAccountNotFound
	}
	a.LockUntil = cloneTime(a.LockUntil)
	return a, nil
}

func (s *AccountStore) store(a siteauth.Account) siteauth.Account {
	a.LockUntil = cloneTime(a.LockUntil)
	s.rows[a.ID] = a
	a.LockUntil = cloneTime(a.LockUntil)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

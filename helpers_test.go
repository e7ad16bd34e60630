package siteauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// memStore is an AccountStore applying the lockout rule under one mutex,
// which gives the same atomicity as the conditional UPDATE in Postgres.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	byEmail  map[string]string
	failWith error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]Account{}, byEmail: map[string]string{}}
}

func (s *memStore) get(id string) (Account, error) {
	if s.failWith != nil {
		return Account{}, s.failWith
	}
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memStore) put(a Account) Account {
	s.accounts[a.ID] = a
	s.byEmail[a.Email] = a.ID
	return a
}

func (s *memStore) GetByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Account{}, s.failWith
	}
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.get(id)
}

func (s *memStore) GetByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memStore) Create(_ context.Context, a Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Account{}, s.failWith
	}
	if _, ok := s.byEmail[a.Email]; ok {
		return Account{}, ErrEmailTaken
	}
	return s.put(a), nil
}

func (s *memStore) ReplaceUnverified(_ context.Context, id string, u ProfileUpdate) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return Account{}, err
	}
	if a.EmailVerified {
		return Account{}, ErrEmailTaken
	}
	a.FirstName, a.LastName, a.Role = u.FirstName, u.LastName, u.Role
	a.CompanyID, a.SupervisorManagerID = u.CompanyID, u.SupervisorManagerID
	a.PasswordHash = u.PasswordHash
	a.Flow = FlowUnverified
	a.UpdatedAt = u.UpdatedAt
	return s.put(a), nil
}

func (s *memStore) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return LockoutState{}, err
	}
	d := limiters.LockoutPolicy{MaxAttempts: maxAttempts, LockDuration: lockFor}.Decide(a.FailedLoginAttempts, a.LockUntil, now)
	switch d.Verdict {
	case limiters.Locked:
		return LockoutState{FailedAttempts: a.FailedLoginAttempts, LockUntil: a.LockUntil, AlreadyLocked: true}, nil
	case limiters.ShouldLock:
		until := d.LockUntil
		a.LockUntil = &until
	}
	a.FailedLoginAttempts++
	s.put(a)
	return LockoutState{FailedAttempts: a.FailedLoginAttempts, LockUntil: a.LockUntil}, nil
}

func (s *memStore) ResetLoginFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return err
	}
	a.FailedLoginAttempts = 0
	a.LockUntil = nil
	s.put(a)
	return nil
}

func (s *memStore) MarkEmailVerified(_ context.Context, id string, now time.Time) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return Account{}, err
	}
	a.EmailVerified = true
	if a.Flow == FlowUnverified {
		a.Flow = FlowActive
	}
	a.UpdatedAt = now
	return s.put(a), nil
}

func (s *memStore) SetFlow(_ context.Context, id string, flow FlowState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return err
	}
	a.Flow = flow
	a.UpdatedAt = now
	s.put(a)
	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, u PasswordUpdate) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(u.AccountID)
	if err != nil {
		return Account{}, err
	}
	a.PasswordHash = u.Hash
	a.Flow = u.Flow
	a.PasswordTemporary = u.Temporary
	a.LastPasswordChange = u.ChangedAt
	a.UpdatedAt = u.ChangedAt
	return s.put(a), nil
}

func (s *memStore) UpdateFCMToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return err
	}
	a.FCMToken = token
	s.put(a)
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(id)
	if err != nil {
		return err
	}
	delete(s.byEmail, a.Email)
	delete(s.accounts, id)
	return nil
}

func (s *memStore) mutate(t *testing.T, id string, fn func(*Account)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	fn(&a)
	s.put(a)
}

func (s *memStore) snapshot(t *testing.T, id string) Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	return a
}

type memDirectory struct {
	mu        sync.Mutex
	companies map[string]bool
	links     map[string]TenancyLink
	// linkErr, when set, fails every LinkAccount call.
	linkErr error
}

func newMemDirectory(companies ...string) *memDirectory {
	d := &memDirectory{companies: map[string]bool{}, links: map[string]TenancyLink{}}
	for _, c := range companies {
		d.companies[c] = true
	}
	return d
}

func (d *memDirectory) CompanyExists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.companies[id], nil
}

func (d *memDirectory) LinkAccount(_ context.Context, link TenancyLink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.linkErr != nil {
		return d.linkErr
	}
	d.links[link.AccountID] = link
	return nil
}

func (d *memDirectory) UnlinkAccount(_ context.Context, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.links, accountID)
	return nil
}

func (d *memDirectory) CompanyForAccount(_ context.Context, accountID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	link, ok := d.links[accountID]
	return link.CompanyID, ok, nil
}

type sentMail struct {
	Kind string
	To   string
	// Secret is the OTP or temporary password carried by the mail.
	Secret string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) record(kind, to, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{Kind: kind, To: to, Secret: secret})
	return nil
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, otp string) error {
	return n.record("verification", to, otp)
}

func (n *recordingNotifier) SendResetPasswordEmail(_ context.Context, to, otp string) error {
	return n.record("reset", to, otp)
}

func (n *recordingNotifier) SendSupervisorInviteEmail(_ context.Context, to, _, tempPassword string) error {
	return n.record("invite", to, tempPassword)
}

func (n *recordingNotifier) SendWelcomeEmail(_ context.Context, to, _ string) error {
	return n.record("welcome", to, "")
}

func (n *recordingNotifier) SendAdminCreationEmail(_ context.Context, to string, _ Role, tempPassword, _ string) error {
	return n.record("staff", to, tempPassword)
}

func (n *recordingNotifier) last(t *testing.T, kind, to string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind && n.sent[i].To == to {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return sentMail{}
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.Access.PrivateKey = []byte("access-secret-0123456789abcdef")
	cfg.Tokens.Refresh.PrivateKey = []byte("refresh-secret-0123456789abcdef")
	cfg.Tokens.VerifyEmail.PrivateKey = []byte("verify-secret-0123456789abcdef")
	cfg.Tokens.ResetPassword.PrivateKey = []byte("reset-secret-0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Security.ProductionMode = false
	cfg.RateLimit.LoginPerIP = 0
	cfg.OTP.RequestLimit = 0
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *memStore
	dir      *memDirectory
	notifier *recordingNotifier
	clock    *testClock
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	mr, rdb := newTestRedis(t)
	env := &testEnv{
		store:    newMemStore(),
		dir:      newMemDirectory("company-1"),
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
		redis:    mr,
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.store).
		WithCompanyDirectory(env.dir).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// registerVerified registers email and completes verification.
func (env *testEnv) registerVerified(t *testing.T, email, pw string, role Role) Account {
	t.Helper()
	ctx := context.Background()
	in := RegisterInput{Email: email, Password: pw, FirstName: "Ada", LastName: "Lovelace", Role: role}
	if role == RoleProjectSupervisor {
		in.SupervisorManagerID = "manager-1"
	}
	res, err := env.engine.Register(ctx, in)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	if _, err := env.engine.VerifyEmail(ctx, email, res.VerificationToken, res.OTP); err != nil {
		t.Fatalf("VerifyEmail(%s): %v", email, err)
	}
	return env.store.snapshot(t, res.Account.ID)
}

func mustErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimbuild/siteauth"
)

func seed(t *testing.T, s *AccountStore, a siteauth.Account) siteauth.Account {
	t.Helper()
	out, err := s.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return out
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	s := NewAccountStore()
	seed(t, s, siteauth.Account{ID: "a1", Email: "pm@site.co"})

	_, err := s.Create(context.Background(), siteauth.Account{ID: "a2", Email: "pm@site.co"})
	if !errors.Is(err, siteauth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := s.GetByEmail(context.Background(), " PM@site.co ")
	if err != nil || got.ID != "a1" {
		t.Fatalf("GetByEmail = %+v, %v", got, err)
	}
	if _, err := s.GetByID(context.Background(), "missing"); !errors.Is(err, siteauth.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestReplaceUnverified(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "a@site.co", FirstName: "Old"})

	got, err := s.ReplaceUnverified(ctx, "a1", siteauth.ProfileUpdate{FirstName: "New", PasswordHash: "h2"})
	if err != nil {
		t.Fatalf("ReplaceUnverified: %v", err)
	}
	if got.FirstName != "New" || got.PasswordHash != "h2" {
		t.Fatalf("unexpected row %+v", got)
	}

	if err := s.SetFlow(ctx, "a1", siteauth.FlowPendingReset, time.Now()); err != nil {
		t.Fatalf("SetFlow: %v", err)
	}
	got, err = s.ReplaceUnverified(ctx, "a1", siteauth.ProfileUpdate{FirstName: "Again"})
	if err != nil {
		t.Fatalf("ReplaceUnverified after reset: %v", err)
	}
	if got.Flow != siteauth.FlowUnverified {
		t.Fatalf("flow after re-registration = %v, want unverified", got.Flow)
	}

	if _, err := s.MarkEmailVerified(ctx, "a1", time.Now()); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	if _, err := s.ReplaceUnverified(ctx, "a1", siteauth.ProfileUpdate{FirstName: "Late"}); !errors.Is(err, siteauth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for verified row, got %v", err)
	}
}

func TestMarkEmailVerifiedKeepsPendingReset(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "a@site.co", Flow: siteauth.FlowUnverified})

	got, _ := s.MarkEmailVerified(ctx, "a1", time.Now())
	if got.Flow != siteauth.FlowActive || !got.EmailVerified {
		t.Fatalf("unexpected row %+v", got)
	}

	if err := s.SetFlow(ctx, "a1", siteauth.FlowPendingReset, time.Now()); err != nil {
		t.Fatalf("SetFlow: %v", err)
	}
	got, _ = s.MarkEmailVerified(ctx, "a1", time.Now())
	if got.Flow != siteauth.FlowPendingReset {
		t.Fatalf("flow = %v, want pending reset", got.Flow)
	}
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "a@site.co"})
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 1; i <= 2; i++ {
		st, err := s.RecordLoginFailure(ctx, "a1", 3, time.Minute, now)
		if err != nil || st.FailedAttempts != i || st.LockUntil != nil {
			t.Fatalf("attempt %d: %+v, %v", i, st, err)
		}
	}
	st, _ := s.RecordLoginFailure(ctx, "a1", 3, time.Minute, now)
	if st.LockUntil == nil || !st.LockUntil.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected lock, got %+v", st)
	}

	st, _ = s.RecordLoginFailure(ctx, "a1", 3, time.Minute, now.Add(time.Second))
	if !st.AlreadyLocked || st.FailedAttempts != 3 {
		t.Fatalf("expected untouched locked row, got %+v", st)
	}

	if err := s.ResetLoginFailures(ctx, "a1"); err != nil {
		t.Fatalf("ResetLoginFailures: %v", err)
	}
	got, _ := s.GetByID(ctx, "a1")
	if got.FailedLoginAttempts != 0 || got.LockUntil != nil {
		t.Fatalf("counter not reset: %+v", got)
	}
}

func TestRecordLoginFailureConcurrent(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "a@site.co"})
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordLoginFailure(ctx, "a1", 5, time.Hour, now)
		}()
	}
	wg.Wait()

	got, _ := s.GetByID(ctx, "a1")
	if got.FailedLoginAttempts != 5 {
		t.Fatalf("attempts = %d, want 5", got.FailedLoginAttempts)
	}
}

func TestReturnedRowsDoNotAlias(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "a@site.co"})
	now := time.Now()
	st, _ := s.RecordLoginFailure(ctx, "a1", 1, time.Hour, now)

	*st.LockUntil = now.Add(-time.Hour)
	got, _ := s.GetByID(ctx, "a1")
	if !got.LockUntil.After(now) {
		t.Fatalf("stored lock changed through returned pointer")
	}
}

func TestCompanyDirectory(t *testing.T) {
	d := NewCompanyDirectory()
	ctx := context.Background()
	_ = d.CreateCompany(ctx, "c1", "Acme Build")

	if ok, _ := d.CompanyExists(ctx, "c1"); !ok {
		t.Fatalf("c1 should exist")
	}
	if ok, _ := d.CompanyExists(ctx, "c2"); ok {
		t.Fatalf("c2 should not exist")
	}
	if _, linked, _ := d.CompanyForAccount(ctx, "a1"); linked {
		t.Fatalf("a1 should not be linked")
	}
	_ = d.LinkAccount(ctx, siteauth.TenancyLink{AccountID: "a1", CompanyID: "c1", Role: siteauth.RoleProjectManager})
	if id, linked, _ := d.CompanyForAccount(ctx, "a1"); !linked || id != "c1" {
		t.Fatalf("CompanyForAccount = %q, %v", id, linked)
	}
	if err := d.UnlinkAccount(ctx, "a1"); err != nil {
		t.Fatalf("UnlinkAccount: %v", err)
	}
	if _, linked, _ := d.CompanyForAccount(ctx, "a1"); linked {
		t.Fatalf("a1 should be unlinked")
	}
	if err := d.UnlinkAccount(ctx, "a1"); err != nil {
		t.Fatalf("UnlinkAccount without a link: %v", err)
	}
}

func TestDeleteFreesEmail(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	seed(t, s, siteauth.Account{ID: "a1", Email: "sup@site.co"})

	if err := s.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByEmail(ctx, "sup@site.co"); !errors.Is(err, siteauth.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "a1"); !errors.Is(err, siteauth.ErrAccountNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	seed(t, s, siteauth.Account{ID: "a2", Email: "sup@site.co"})
}

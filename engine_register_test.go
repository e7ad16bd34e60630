package siteauth

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.engine.Register(context.Background(), RegisterInput{
		Email: "Ada@Example.com", Password: goodPassword, FirstName: "Ada", Role: RoleProjectManager, CompanyID: "company-1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Account.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", res.Account.Email)
	}
	if res.Account.EmailVerified || res.Account.Flow != FlowUnverified {
		t.Fatalf("expected unverified account, got %+v", res.Account)
	}
	if res.Account.PasswordHash != "" {
		t.Fatal("hash leaked")
	}
	if res.VerificationToken == "" || len(res.OTP) != 6 {
		t.Fatalf("expected token and otp, got %q / %q", res.VerificationToken, res.OTP)
	}
	if mail := env.notifier.last(t, "verification", "ada@example.com"); mail.Secret != res.OTP {
		t.Fatal("mailed otp differs from returned otp")
	}
	if _, linked, _ := env.dir.CompanyForAccount(context.Background(), res.Account.ID); !linked {
		t.Fatal("expected tenancy link")
	}
}

func TestRegisterTwiceUnverifiedReplacesProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.engine.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "first-password", FirstName: "Ada", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := env.engine.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "second-password", FirstName: "Augusta", Role: RoleProjectManager})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}

	if !second.Reissued {
		t.Fatal("expected Reissued")
	}
	if first.Account.ID != second.Account.ID {
		t.Fatal("re-registration created a second account")
	}
	if len(env.store.accounts) != 1 {
		t.Fatalf("expected one stored account, got %d", len(env.store.accounts))
	}
	stored := env.store.snapshot(t, first.Account.ID)
	if stored.FirstName != "Augusta" || stored.Role != RoleProjectManager {
		t.Fatalf("profile not replaced: %+v", stored)
	}

	// The first code was replaced by the second.
	if first.OTP != second.OTP {
		_, err = env.engine.VerifyEmail(ctx, "ada@example.com", second.VerificationToken, first.OTP)
		mustErrIs(t, err, ErrOTPNotFound)
	}
	if _, err := env.engine.VerifyEmail(ctx, "ada@example.com", second.VerificationToken, second.OTP); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if _, err := env.engine.Login(ctx, LoginInput{Email: "ada@example.com", Password: "first-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := env.engine.Login(ctx, LoginInput{Email: "ada@example.com", Password: "second-password"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestRegisterAgainMovesCompanyLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.companies["company-2"] = true
	ctx := context.Background()

	first, err := env.engine.Register(ctx, RegisterInput{
		Email: "ada@example.com", Password: goodPassword, FirstName: "Ada", Role: RoleProjectManager, CompanyID: "company-1",
	})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := env.engine.Register(ctx, RegisterInput{
		Email: "ada@example.com", Password: goodPassword, FirstName: "Ada", Role: RoleProjectManager, CompanyID: "company-2",
	}); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if id, linked, _ := env.dir.CompanyForAccount(ctx, first.Account.ID); !linked || id != "company-2" {
		t.Fatalf("link = %q, %v; want company-2", id, linked)
	}
	if stored := env.store.snapshot(t, first.Account.ID); stored.CompanyID != "company-2" {
		t.Fatalf("stored company = %q", stored.CompanyID)
	}

	if _, err := env.engine.Register(ctx, RegisterInput{
		Email: "ada@example.com", Password: goodPassword, FirstName: "Ada", Role: RoleAdmin,
	}); err != nil {
		t.Fatalf("third Register: %v", err)
	}
	if id, linked, _ := env.dir.CompanyForAccount(ctx, first.Account.ID); linked {
		t.Fatalf("stale link to %q kept after registering without a company", id)
	}
}

func TestRegisterAgainDuringResetRestartsVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Email: "ada@example.com", Password: goodPassword, FirstName: "Ada", Role: RoleAdmin}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := env.engine.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	second, err := env.engine.Register(ctx, RegisterInput{Email: "ada@example.com", Password: goodPassword, FirstName: "Ada", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if second.Account.Flow != FlowUnverified {
		t.Fatalf("flow after re-registration = %v", second.Account.Flow)
	}
	res, err := env.engine.VerifyEmail(ctx, "ada@example.com", second.VerificationToken, second.OTP)
	if err != nil {
		t.Fatalf("VerifyEmail with the new challenge: %v", err)
	}
	if !res.Account.EmailVerified || res.Account.Flow != FlowActive {
		t.Fatalf("unexpected account after verify %+v", res.Account)
	}
}

func TestRegisterVerifiedEmailConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerVerified(t, "ada@example.com", goodPassword, RoleAdmin)

	_, err := env.engine.Register(context.Background(), RegisterInput{Email: "ADA@example.com", Password: goodPassword, Role: RoleAdmin})
	mustErrIs(t, err, ErrEmailTaken)
	mustErrIs(t, err, ErrConflict)
	if HTTPStatus(err) != 409 {
		t.Fatalf("expected 409, got %d", HTTPStatus(err))
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"invalid email", RegisterInput{Email: "not-an-email", Password: goodPassword, Role: RoleAdmin}, ErrInvalidEmail},
		{"invalid role", RegisterInput{Email: "a@example.com", Password: goodPassword, Role: "owner"}, ErrInvalidRole},
		{"short password", RegisterInput{Email: "a@example.com", Password: "short", Role: RoleAdmin}, ErrPasswordPolicy},
		{"unknown company", RegisterInput{Email: "a@example.com", Password: goodPassword, Role: RoleAdmin, CompanyID: "nope"}, ErrCompanyNotFound},
		{"supervisor without manager", RegisterInput{Email: "a@example.com", Password: goodPassword, Role: RoleProjectSupervisor}, ErrManagerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			_, err := env.engine.Register(context.Background(), tt.in)
			mustErrIs(t, err, tt.want)
			mustErrIs(t, err, ErrBadRequest)
			if len(env.store.accounts) != 0 {
				t.Fatal("invalid registration stored an account")
			}
		})
	}
}

func TestRegisterDropsManagerForNonSupervisor(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.engine.Register(context.Background(), RegisterInput{
		Email: "a@example.com", Password: goodPassword, Role: RoleProjectManager, SupervisorManagerID: "someone",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Account.SupervisorManagerID != "" {
		t.Fatalf("expected manager id cleared, got %q", res.Account.SupervisorManagerID)
	}
}

func TestRegisterProductionModeHidesOTP(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Security.ProductionMode = true })
	res, err := env.engine.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: goodPassword, Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.OTP != "" {
		t.Fatal("otp returned in production mode")
	}
	if env.notifier.last(t, "verification", "a@example.com").Secret == "" {
		t.Fatal("otp must still be mailed")
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Notify.FailOnError = true })
	env.notifier.err = errors.New("smtp down")

	if _, err := env.engine.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: goodPassword, Role: RoleAdmin}); err != nil {
		t.Fatalf("registration failed on mail error: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricNotificationFailure]; got != 1 {
		t.Fatalf("expected notification failure counted, got %d", got)
	}
}

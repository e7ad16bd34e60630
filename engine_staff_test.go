package siteauth

import (
	"context"
	"errors"
	"testing"
)

func registerLinkedManager(t *testing.T, env *testEnv, email string) Account {
	t.Helper()
	ctx := context.Background()
	res, err := env.engine.Register(ctx, RegisterInput{
		Email: email, Password: goodPassword, FirstName: "Grace", Role: RoleProjectManager, CompanyID: "company-1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := env.engine.VerifyEmail(ctx, email, res.VerificationToken, res.OTP); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return env.store.snapshot(t, res.Account.ID)
}

func TestInviteSupervisors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	manager := registerLinkedManager(t, env, "pm@example.com")
	env.registerVerified(t, "taken@example.com", goodPassword, RoleAdmin)

	report, err := env.engine.InviteSupervisors(ctx, manager.ID, []string{
		"sup@example.com", "not-an-email", "SUP@example.com", "taken@example.com",
	})
	if err != nil {
		t.Fatalf("InviteSupervisors: %v", err)
	}
	if len(report.Successful) != 1 || report.Successful[0] != "sup@example.com" {
		t.Fatalf("unexpected successes %v", report.Successful)
	}
	want := map[string]string{
		"not-an-email":      inviteReasonInvalidEmail,
		"taken@example.com": inviteReasonExists,
	}
	if len(report.Failed) != len(want) {
		t.Fatalf("unexpected failures %v", report.Failed)
	}
	for _, f := range report.Failed {
		if want[f.Email] != f.Reason {
			t.Fatalf("failure for %s: got %q, want %q", f.Email, f.Reason, want[f.Email])
		}
	}

	invited, err := env.store.GetByEmail(ctx, "sup@example.com")
	if err != nil {
		t.Fatalf("invited account missing: %v", err)
	}
	if !invited.EmailVerified || !invited.PasswordTemporary || invited.Role != RoleProjectSupervisor {
		t.Fatalf("unexpected invited account %+v", invited)
	}
	if invited.SupervisorManagerID != manager.ID || invited.CompanyID != "company-1" {
		t.Fatalf("invited account not attached to the manager: %+v", invited)
	}
	if company, ok, _ := env.dir.CompanyForAccount(ctx, invited.ID); !ok || company != "company-1" {
		t.Fatal("invited account not linked to the company")
	}

	temp := env.notifier.last(t, "invite", "sup@example.com").Secret
	res, err := env.engine.Login(ctx, LoginInput{Email: "sup@example.com", Password: temp})
	if err != nil {
		t.Fatalf("login with invite password: %v", err)
	}
	if !res.SetupComplete {
		t.Fatal("invited supervisor should have setup complete")
	}
}

func TestInviteSupervisorsDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	manager := registerLinkedManager(t, env, "pm@example.com")
	env.notifier.err = errors.New("smtp down")

	report, err := env.engine.InviteSupervisors(context.Background(), manager.ID, []string{"sup@example.com"})
	if err != nil {
		t.Fatalf("InviteSupervisors: %v", err)
	}
	if len(report.Successful) != 0 || len(report.Failed) != 1 || report.Failed[0].Reason != inviteReasonDelivery {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSupervisorInviteFailed]; got != 1 {
		t.Fatalf("expected one failed invite, got %d", got)
	}
}

func TestInviteSupervisorsLinkFailureLeavesNoAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	manager := registerLinkedManager(t, env, "pm@example.com")
	env.dir.linkErr = errors.New("directory unavailable")

	report, err := env.engine.InviteSupervisors(ctx, manager.ID, []string{"sup@example.com"})
	if err != nil {
		t.Fatalf("InviteSupervisors: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Reason != inviteReasonInternal {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := env.store.GetByEmail(ctx, "sup@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("half-provisioned account kept: %v", err)
	}
	if len(env.notifier.sent) != 1 {
		t.Fatalf("invite mail sent despite failure: %+v", env.notifier.sent)
	}

	env.dir.linkErr = nil
	report, err = env.engine.InviteSupervisors(ctx, manager.ID, []string{"sup@example.com"})
	if err != nil {
		t.Fatalf("retry InviteSupervisors: %v", err)
	}
	if len(report.Successful) != 1 {
		t.Fatalf("retry should succeed, got %+v", report)
	}
}

func TestInviteSupervisorsRequiresCompanyLink(t *testing.T) {
	env := newTestEnv(t, nil)
	manager := env.registerVerified(t, "pm@example.com", goodPassword, RoleProjectManager)

	_, err := env.engine.InviteSupervisors(context.Background(), manager.ID, []string{"sup@example.com"})
	mustErrIs(t, err, ErrNoCompanyLink)

	_, err = env.engine.InviteSupervisors(context.Background(), "missing", []string{"sup@example.com"})
	mustErrIs(t, err, ErrAccountNotFound)
}

func TestCreateStaffAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	acc, err := env.engine.CreateStaffAccount(ctx, StaffInput{Email: "ops@example.com", Password: "chosen-secret", Role: RoleAdmin, Message: "welcome aboard"})
	if err != nil {
		t.Fatalf("CreateStaffAccount: %v", err)
	}
	if acc.PasswordHash != "" || !acc.PasswordTemporary || !acc.EmailVerified || acc.LastName != "Admin" {
		t.Fatalf("unexpected staff account %+v", acc)
	}
	if env.notifier.last(t, "staff", "ops@example.com").Secret != "chosen-secret" {
		t.Fatal("creation mail does not carry the password")
	}
	if _, err := env.engine.Login(ctx, LoginInput{Email: "ops@example.com", Password: "chosen-secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = env.engine.CreateStaffAccount(ctx, StaffInput{Email: "ops@example.com", Role: RoleAdmin})
	mustErrIs(t, err, ErrEmailTaken)
}

func TestCreateStaffAccountValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.CreateStaffAccount(ctx, StaffInput{Email: "ops@example.com", Role: RoleProjectManager})
	mustErrIs(t, err, ErrInvalidRole)

	_, err = env.engine.CreateStaffAccount(ctx, StaffInput{Email: "nope", Role: RoleAdmin})
	mustErrIs(t, err, ErrInvalidEmail)

	_, err = env.engine.CreateStaffAccount(ctx, StaffInput{Email: "ops@example.com", Password: "short", Role: RoleAdmin})
	mustErrIs(t, err, ErrPasswordPolicy)
}

func TestCreateStaffAccountSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.notifier.err = errors.New("smtp down")

	acc, err := env.engine.CreateStaffAccount(context.Background(), StaffInput{Email: "root@example.com", Role: RoleSuperAdmin})
	if err != nil {
		t.Fatalf("CreateStaffAccount: %v", err)
	}
	if acc.LastName != "Super Admin" {
		t.Fatalf("unexpected last name %q", acc.LastName)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricNotificationFailure]; got != 1 {
		t.Fatalf("expected a notification failure counted, got %d", got)
	}
}

package siteauth

import (
	"context"
	"errors"

	"github.com/aimbuild/siteauth/internal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	inviteReasonInvalidEmail = "email is not valid"
	inviteReasonExists       = "email already registered"
	inviteReasonDelivery     = "invitation email could not be sent"
	inviteReasonInternal     = "an internal error occurred"
)

// InviteSupervisors provisions a supervisor account for every email under
// the inviting manager's company and mails each one a temporary password.
// Per-email failures are reported, not returned.
func (e *Engine) InviteSupervisors(ctx context.Context, managerID string, emails []string) (InviteReport, error) {
	manager, err := e.accounts.GetByID(ctx, managerID)
	if err != nil {
		return InviteReport{}, storeErr(err)
	}
	companyID, linked, err := e.companies.CompanyForAccount(ctx, manager.ID)
	if err != nil {
		return InviteReport{}, storeErr(err)
	}
	if !linked {
		return InviteReport{}, ErrNoCompanyLink
	}

	report := InviteReport{Successful: []string{}, Failed: []InviteFailure{}}
	seen := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		email, err := validateEmail(raw)
		if err != nil {
			report.Failed = append(report.Failed, InviteFailure{Email: raw, Reason: inviteReasonInvalidEmail})
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		if reason := e.inviteOne(ctx, manager, companyID, email); reason != "" {
			e.metricInc(MetricSupervisorInviteFailed)
			report.Failed = append(report.Failed, InviteFailure{Email: email, Reason: reason})
			continue
		}
		e.metricInc(MetricSupervisorInvited)
		report.Successful = append(report.Successful, email)
	}
	return report, nil
}

// inviteOne returns a failure reason, or "" on success.
func (e *Engine) inviteOne(ctx context.Context, manager Account, companyID, email string) string {
	_, err := e.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return inviteReasonExists
	case !errors.Is(err, ErrAccountNotFound):
		e.logger.Error("invite lookup failed", zap.String("email", email), zap.Error(err))
		return inviteReasonInternal
	}

	temp, err := internal.NewTemporaryPassword(e.config.Password.TemporaryLength)
	if err != nil {
		return inviteReasonInternal
	}
	account, err := e.createProvisioned(ctx, Account{
		Email:               email,
		FirstName:           "New",
		LastName:            "Supervisor",
		Role:                RoleProjectSupervisor,
		CompanyID:           companyID,
		SupervisorManagerID: manager.ID,
	}, temp)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return inviteReasonExists
		}
		e.logger.Error("invite create failed", zap.String("email", email), zap.Error(err))
		return inviteReasonInternal
	}
	if err := e.companies.LinkAccount(ctx, TenancyLink{AccountID: account.ID, CompanyID: companyID, Role: RoleProjectSupervisor}); err != nil {
		e.logger.Error("invite link failed", zap.String("email", email), zap.Error(err))
		// The temporary password was never sent, so nobody can use the row.
		// Dropping it lets the manager retry the same email.
		if delErr := e.accounts.Delete(ctx, account.ID); delErr != nil {
			e.logger.Error("invite rollback failed", zap.String("account_id", account.ID), zap.Error(delErr))
		}
		return inviteReasonInternal
	}

	if err := e.notifier.SendSupervisorInviteEmail(ctx, email, manager.FirstName, temp); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Warn("email delivery failed", zap.String("kind", "supervisor_invite"), zap.String("to", email), zap.Error(err))
		e.emitAudit(ctx, auditEventSupervisorInvite, false, &account, ErrNotificationFailed, nil)
		return inviteReasonDelivery
	}

	e.emitAudit(ctx, auditEventSupervisorInvite, true, &account, nil, func() map[string]string {
		return map[string]string{"manager_id": manager.ID, "company_id": companyID}
	})
	return ""
}

// CreateStaffAccount provisions an admin or super admin. When in.Password is
// empty a temporary password is generated. The account must set its own
// password before the temporary flag clears.
func (e *Engine) CreateStaffAccount(ctx context.Context, in StaffInput) (Account, error) {
	if in.Role != RoleAdmin && in.Role != RoleSuperAdmin {
		return Account{}, ErrInvalidRole
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return Account{}, err
	}
	pw := in.Password
	if pw == "" {
		if pw, err = internal.NewTemporaryPassword(e.config.Password.TemporaryLength); err != nil {
			return Account{}, err
		}
	} else if err := e.checkPasswordPolicy(pw); err != nil {
		return Account{}, err
	}

	_, err = e.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return Account{}, ErrEmailTaken
	case !errors.Is(err, ErrAccountNotFound):
		return Account{}, storeErr(err)
	}

	last := "Admin"
	if in.Role == RoleSuperAdmin {
		last = "Super Admin"
	}
	account, err := e.createProvisioned(ctx, Account{Email: email, FirstName: "New", LastName: last, Role: in.Role}, pw)
	if err != nil {
		return Account{}, storeErr(err)
	}

	_ = e.notify("staff_creation", email, func() error {
		return e.notifier.SendAdminCreationEmail(ctx, email, in.Role, pw, in.Message)
	})

	e.metricInc(MetricStaffCreated)
	e.emitAudit(ctx, auditEventStaffCreate, true, &account, nil, nil)
	return account.Sanitized(), nil
}

// createProvisioned stores a verified account holding a temporary password.
func (e *Engine) createProvisioned(ctx context.Context, a Account, plain string) (Account, error) {
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return Account{}, err
	}
	now := e.now()
	a.ID = uuid.NewString()
	a.PasswordHash = hash
	a.Flow = FlowActive
	a.EmailVerified = true
	a.PasswordTemporary = true
	a.LastPasswordChange = now
	a.CreatedAt = now
	a.UpdatedAt = now
	return e.accounts.Create(ctx, a)
}

// Account returns the sanitized account with id.
func (e *Engine) Account(ctx context.Context, id string) (Account, error) {
	account, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return Account{}, storeErr(err)
	}
	return account.Sanitized(), nil
}

package siteauth

import (
	"context"
	"errors"
	"net/mail"

	"github.com/aimbuild/siteauth/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates an unverified account, or overwrites an unverified one
// with the same email, and issues a verification OTP and token. A verified
// email fails with ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if !in.Role.Valid() {
		return RegisterResult{}, ErrInvalidRole
	}
	if err := e.checkPasswordPolicy(in.Password); err != nil {
		return RegisterResult{}, err
	}
	if in.Role == RoleProjectSupervisor {
		if in.SupervisorManagerID == "" {
			return RegisterResult{}, ErrManagerRequired
		}
	} else {
		in.SupervisorManagerID = ""
	}

	existing, err := e.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.EmailVerified:
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegister, false, &existing, ErrEmailTaken, nil)
		return RegisterResult{}, ErrEmailTaken
	case err != nil && !errors.Is(err, ErrAccountNotFound):
		return RegisterResult{}, storeErr(err)
	}
	reissued := err == nil

	if in.CompanyID != "" {
		ok, err := e.companies.CompanyExists(ctx, in.CompanyID)
		if err != nil {
			return RegisterResult{}, storeErr(err)
		}
		if !ok {
			return RegisterResult{}, ErrCompanyNotFound
		}
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	now := e.now()
	var account Account
	if reissued {
		account, err = e.accounts.ReplaceUnverified(ctx, existing.ID, ProfileUpdate{
			FirstName:           in.FirstName,
			LastName:            in.LastName,
			Role:                in.Role,
			CompanyID:           in.CompanyID,
			SupervisorManagerID: in.SupervisorManagerID,
			PasswordHash:        hash,
			UpdatedAt:           now,
		})
	} else {
		account, err = e.accounts.Create(ctx, Account{
			ID:                  uuid.NewString(),
			Email:               email,
			FirstName:           in.FirstName,
			LastName:            in.LastName,
			PasswordHash:        hash,
			Role:                in.Role,
			CompanyID:           in.CompanyID,
			SupervisorManagerID: in.SupervisorManagerID,
			Flow:                FlowUnverified,
			LastPasswordChange:  now,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterConflict)
		}
		return RegisterResult{}, storeErr(err)
	}

	// A re-registration may change or drop the company, so the link always
	// follows the latest submission.
	switch {
	case in.CompanyID != "":
		err = e.companies.LinkAccount(ctx, TenancyLink{AccountID: account.ID, CompanyID: in.CompanyID, Role: in.Role})
	case reissued:
		err = e.companies.UnlinkAccount(ctx, account.ID)
	}
	if err != nil {
		return RegisterResult{}, storeErr(err)
	}

	challenge, err := e.issueChallenge(ctx, account, FlowUnverified, true)
	if err != nil {
		return RegisterResult{}, err
	}

	if reissued {
		e.metricInc(MetricRegisterReissued)
	} else {
		e.metricInc(MetricRegisterSuccess)
	}
	e.emitAudit(ctx, auditEventRegister, true, &account, nil, func() map[string]string {
		if reissued {
			return map[string]string{"reissued": "true"}
		}
		return nil
	})

	return RegisterResult{
		Account:           account.Sanitized(),
		VerificationToken: challenge.Token,
		OTP:               challenge.OTP,
		Reissued:          reissued,
	}, nil
}

// issueChallenge mints the OTP and single-use token of the flow and mails
// the code. With bestEffort a failed send is only logged; otherwise
// Notify.FailOnError decides.
func (e *Engine) issueChallenge(ctx context.Context, account Account, flow FlowState, bestEffort bool) (ChallengeResult, error) {
	purpose, tokenPurpose := otpVerifyEmail, jwt.PurposeVerifyEmail
	if flow == FlowPendingReset {
		purpose, tokenPurpose = otpResetPassword, jwt.PurposeResetPassword
	}

	code, err := e.otp.issue(ctx, purpose, account.Email)
	if err != nil {
		if errors.Is(err, ErrOTPRateLimited) {
			e.metricInc(MetricOTPRateLimited)
		}
		return ChallengeResult{}, err
	}
	token, err := e.tokens.Issue(jwt.Subject{UID: account.ID, Email: account.Email, Role: string(account.Role)}, tokenPurpose)
	if err != nil {
		return ChallengeResult{}, err
	}
	e.metricInc(MetricOTPIssued)

	if !e.config.Security.ProductionMode {
		e.logger.Debug("otp issued", zap.String("email", account.Email), zap.String("purpose", string(purpose)), zap.String("otp", code.Code))
	}

	var sendErr error
	if flow == FlowPendingReset {
		sendErr = e.notify("reset_password", account.Email, func() error {
			return e.notifier.SendResetPasswordEmail(ctx, account.Email, code.Code)
		})
	} else {
		sendErr = e.notify("verification", account.Email, func() error {
			return e.notifier.SendVerificationEmail(ctx, account.Email, code.Code)
		})
	}
	if sendErr != nil && !bestEffort {
		return ChallengeResult{}, sendErr
	}

	out := ChallengeResult{Purpose: tokenPurpose, Token: token.Value}
	if !e.config.Security.ProductionMode {
		out.OTP = code.Code
	}
	return out, nil
}

func validateEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

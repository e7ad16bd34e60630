package httpapi

import (
	"net/http"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/middleware"
)

type registerResponse struct {
	User              siteauth.Account `json:"user"`
	VerificationToken string           `json:"verificationToken"`
	OTP               string           `json:"otp,omitempty"`
}

type loginResponse struct {
	User          siteauth.Account   `json:"user"`
	Tokens        siteauth.TokenPair `json:"tokens"`
	SetupComplete bool               `json:"setupComplete"`
}

type userResponse struct {
	User siteauth.Account `json:"user"`
}

type tokensResponse struct {
	User   *siteauth.Account  `json:"user,omitempty"`
	Tokens siteauth.TokenPair `json:"tokens"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), siteauth.RegisterInput{
		Email:               req.Email,
		Password:            req.Password,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Role:                req.Role,
		CompanyID:           req.CompanyID,
		SupervisorManagerID: req.SupervisorManagerID,
	})
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User created successfully", registerResponse{
		User:              res.Account,
		VerificationToken: res.VerificationToken,
		OTP:               res.OTP,
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}, [2]string{"password", req.Password}); err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), siteauth.LoginInput{Email: req.Email, Password: req.Password, FCMToken: req.FCMToken})
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiry)
	writeSuccess(w, http.StatusOK, "User logged in successfully", loginResponse{
		User:          res.Account,
		Tokens:        res.Tokens,
		SetupComplete: res.SetupComplete,
	})
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "verify_email", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}, [2]string{"token", req.Token}, [2]string{"otp", req.OTP}); err != nil {
		h.writeError(w, r, "verify_email", err)
		return
	}

	res, err := h.service.VerifyEmail(r.Context(), req.Email, req.Token, req.OTP)
	if err != nil {
		h.writeError(w, r, "verify_email", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Email verified successfully", tokensResponse{User: &res.Account, Tokens: res.Tokens})
}

func (h *handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "resend_otp", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}); err != nil {
		h.writeError(w, r, "resend_otp", err)
		return
	}

	res, err := h.service.ResendOTP(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, "resend_otp", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Otp sent successfully", challengeData(res))
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "forgot_password", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}); err != nil {
		h.writeError(w, r, "forgot_password", err)
		return
	}

	res, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, "forgot_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset email sent successfully", challengeData(res))
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "reset_password", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}, [2]string{"password", req.Password}, [2]string{"otp", req.OTP}); err != nil {
		h.writeError(w, r, "reset_password", err)
		return
	}

	account, err := h.service.ResetPassword(r.Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		h.writeError(w, r, "reset_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successfully", userResponse{User: account})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, "logout", err)
		return
	}
	token := refreshToken(r, req)
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.writeError(w, r, "logout", err)
			return
		}
	}
	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, "User logged out successfully", nil)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, "refresh", err)
		return
	}
	token := refreshToken(r, req)
	if token == "" {
		h.writeError(w, r, "refresh", siteauth.ErrMissingToken)
		return
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, "refresh", err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiry)
	writeSuccess(w, http.StatusOK, "User logged in successfully", tokensResponse{Tokens: pair})
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "change_password", err)
		return
	}
	if err := requireFields([2]string{"currentPassword", req.CurrentPassword}, [2]string{"newPassword", req.NewPassword}); err != nil {
		h.writeError(w, r, "change_password", err)
		return
	}

	account, err := h.service.ChangePassword(r.Context(), principal.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, "change_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", userResponse{User: account})
}

func (h *handler) setInitialPassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	var req setInitialPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "set_initial_password", err)
		return
	}
	if err := requireFields([2]string{"newPassword", req.NewPassword}); err != nil {
		h.writeError(w, r, "set_initial_password", err)
		return
	}

	account, err := h.service.SetInitialPassword(r.Context(), principal.AccountID, req.NewPassword)
	if err != nil {
		h.writeError(w, r, "set_initial_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password set successfully", userResponse{User: account})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	account, err := h.service.Account(r.Context(), principal.AccountID)
	if err != nil {
		h.writeError(w, r, "me", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User retrieved successfully", userResponse{User: account})
}

func (h *handler) inviteSupervisors(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	var req inviteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "invite_supervisors", err)
		return
	}
	if len(req.Emails) == 0 {
		h.writeError(w, r, "invite_supervisors", badRequest("emails are required"))
		return
	}

	report, err := h.service.InviteSupervisors(r.Context(), principal.AccountID, req.Emails)
	if err != nil {
		h.writeError(w, r, "invite_supervisors", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Invitations processed", report)
}

func (h *handler) createStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "create_staff", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}, [2]string{"role", string(req.Role)}); err != nil {
		h.writeError(w, r, "create_staff", err)
		return
	}

	account, err := h.service.CreateStaffAccount(r.Context(), siteauth.StaffInput{
		Email: req.Email, Password: req.Password, Role: req.Role, Message: req.Message,
	})
	if err != nil {
		h.writeError(w, r, "create_staff", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Account created successfully", userResponse{User: account})
}

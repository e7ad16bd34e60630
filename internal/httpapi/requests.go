package httpapi

import (
	"strings"

	"github.com/aimbuild/siteauth"
)

type registerRequest struct {
	Email               string        `json:"email"`
	Password            string        `json:"password"`
	FirstName           string        `json:"fname"`
	LastName            string        `json:"lname"`
	Role                siteauth.Role `json:"role"`
	CompanyID           string        `json:"companyId"`
	SupervisorManagerID string        `json:"superVisorsManagerId"`
}

func (r registerRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return badRequest("email is required")
	case r.Password == "":
		return badRequest("password is required")
	case strings.TrimSpace(r.FirstName) == "":
		return badRequest("first name is required")
	case strings.TrimSpace(r.LastName) == "":
		return badRequest("last name is required")
	case r.Role == "":
		return badRequest("role is required")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FCMToken string `json:"fcmToken"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type setInitialPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type inviteRequest struct {
	Emails []string `json:"emails"`
}

type staffRequest struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Role     siteauth.Role `json:"role"`
	Message  string        `json:"message"`
}

// requireFields returns a bad request naming the first empty field.
func requireFields(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return badRequest(f[0] + " is required")
		}
	}
	return nil
}

type challengeResponse struct {
	Token string `json:"token"`
	OTP   string `json:"otp,omitempty"`
}

func challengeData(c siteauth.ChallengeResult) challengeResponse {
	return challengeResponse{Token: c.Token, OTP: c.OTP}
}

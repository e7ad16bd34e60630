package siteauth

import (
	"context"
	"strings"
	"time"

	internalaudit "github.com/aimbuild/siteauth/internal/audit"
)

// Role is one of the fixed role tags an account can hold.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleSuperAdmin        Role = "superAdmin"
	RoleProjectManager    Role = "projectManager"
	RoleProjectSupervisor Role = "projectSupervisor"
)

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleProjectManager, RoleProjectSupervisor:
		return true
	}
	return false
}

// FlowState records which verification flow an account is in. It decides
// which OTP and single-use token purpose the next verify or resend call
// expects.
type FlowState uint8

const (
	// FlowUnverified is the state of a freshly registered account awaiting
	// email confirmation.
	FlowUnverified FlowState = iota
	// FlowPendingReset is set by ForgotPassword and cleared by ResetPassword.
	FlowPendingReset
	// FlowActive means no flow is in progress.
	FlowActive
)

func (f FlowState) String() string {
	switch f {
	case FlowUnverified:
		return "unverified"
	case FlowPendingReset:
		return "pending_reset"
	case FlowActive:
		return "active"
	default:
		return "unknown"
	}
}

// ParseFlowState is the inverse of FlowState.String.
func ParseFlowState(s string) (FlowState, bool) {
	switch s {
	case "unverified":
		return FlowUnverified, true
	case "pending_reset":
		return FlowPendingReset, true
	case "active":
		return FlowActive, true
	}
	return 0, false
}

// Account is the persisted credential record. It is mutated only through
// Engine operations.
type Account struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"fname"`
	LastName            string     `json:"lname"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	CompanyID           string     `json:"companyId,omitempty"`
	SupervisorManagerID string     `json:"superVisorsManagerId,omitempty"`
	Flow                FlowState  `json:"-"`
	EmailVerified       bool       `json:"isEmailVerified"`
	PasswordTemporary   bool       `json:"isPasswordTemporary"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockUntil           *time.Time `json:"lockUntil,omitempty"`
	Deleted             bool       `json:"isDeleted"`
	FCMToken            string     `json:"fcmToken,omitempty"`
	LastPasswordChange  time.Time  `json:"lastPasswordChange"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Sanitized returns a copy of a without the password hash.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	if a.LockUntil != nil {
		t := *a.LockUntil
		a.LockUntil = &t
	}
	return a
}

// ResetPending mirrors the flow state for clients that expect the legacy flag.
func (a Account) ResetPending() bool {
	return a.Flow == FlowPendingReset
}

// NormalizeEmail trims and lower-cases an email address. Every lookup and
// write goes through it so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LockoutState is the result of an atomic failed-login update.
type LockoutState struct {
	FailedAttempts int
	LockUntil      *time.Time
	// AlreadyLocked is true when the update was skipped because a lockout
	// window was active at write time.
	AlreadyLocked bool
}

// ProfileUpdate carries the fields overwritten by an idempotent re-registration.
// Applying it also returns the account to FlowUnverified, so a re-registration
// abandons any reset that was started before the email was verified.
type ProfileUpdate struct {
	FirstName           string
	LastName            string
	Role                Role
	CompanyID           string
	SupervisorManagerID string
	PasswordHash        string
	UpdatedAt           time.Time
}

// PasswordUpdate replaces the stored hash. The hash is never appended to a
// history; the previous value is overwritten.
type PasswordUpdate struct {
	AccountID string
	Hash      string
	Flow      FlowState
	Temporary bool
	ChangedAt time.Time
}

// AccountStore persists accounts. Implementations return ErrAccountNotFound
// for missing rows and ErrEmailTaken on email uniqueness violations.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	ReplaceUnverified(ctx context.Context, id string, update ProfileUpdate) (Account, error)
	// RecordLoginFailure increments the failure counter and sets LockUntil
	// when the counter reaches maxAttempts. The increment is skipped when the
	// account is locked at now. It must be atomic per account.
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (LockoutState, error)
	ResetLoginFailures(ctx context.Context, id string) error
	MarkEmailVerified(ctx context.Context, id string, now time.Time) (Account, error)
	SetFlow(ctx context.Context, id string, flow FlowState, now time.Time) error
	UpdatePassword(ctx context.Context, update PasswordUpdate) (Account, error)
	UpdateFCMToken(ctx context.Context, id, token string) error
	// Delete removes an account outright. It only undoes a provisioning that
	// failed half way, before the account was handed to anyone.
	Delete(ctx context.Context, id string) error
}

// TenancyLink associates an account with a company under a role.
type TenancyLink struct {
	AccountID string
	CompanyID string
	Role      Role
}

// CompanyDirectory is the tenancy collaborator used during registration and
// invitations.
type CompanyDirectory interface {
	CompanyExists(ctx context.Context, companyID string) (bool, error)
	LinkAccount(ctx context.Context, link TenancyLink) error
	// UnlinkAccount drops the account's link. A missing link is not an error.
	UnlinkAccount(ctx context.Context, accountID string) error
	// CompanyForAccount returns the linked company id and whether a link exists.
	CompanyForAccount(ctx context.Context, accountID string) (string, bool, error)
}

// Notifier delivers emails on behalf of the engine.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, otp string) error
	SendResetPasswordEmail(ctx context.Context, to, otp string) error
	SendSupervisorInviteEmail(ctx context.Context, to, managerName, tempPassword string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
	SendAdminCreationEmail(ctx context.Context, to string, role Role, tempPassword, message string) error
}

// TokenPair is an access and refresh token minted together.
type TokenPair struct {
	AccessToken   string    `json:"accessToken"`
	RefreshToken  string    `json:"refreshToken"`
	AccessExpiry  time.Time `json:"accessExpiresAt"`
	RefreshExpiry time.Time `json:"refreshExpiresAt"`
}

// RegisterInput is the payload of Engine.Register.
type RegisterInput struct {
	Email               string
	Password            string
	FirstName           string
	LastName            string
	Role                Role
	CompanyID           string
	SupervisorManagerID string
}

// RegisterResult is returned by Engine.Register. OTP is only populated when
// the engine is not in production mode.
type RegisterResult struct {
	Account           Account
	VerificationToken string
	OTP               string
	// Reissued is true when an unverified account was overwritten.
	Reissued bool
}

// LoginInput is the payload of Engine.Login.
type LoginInput struct {
	Email    string
	Password string
	FCMToken string
}

// LoginResult is returned by a successful Engine.Login.
type LoginResult struct {
	Account       Account
	Tokens        TokenPair
	SetupComplete bool
}

// VerifyResult is returned by Engine.VerifyEmail.
type VerifyResult struct {
	Account Account
	Tokens  TokenPair
}

// ChallengeResult carries a freshly issued single-use token and, outside
// production mode, the OTP value.
type ChallengeResult struct {
	Purpose TokenPurpose
	Token   string
	OTP     string
}

// Principal is the identity attached to an authorized request.
type Principal struct {
	AccountID string
	Email     string
	Role      Role
	Account   Account
}

// InviteFailure names an email that could not be invited and why.
type InviteFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// InviteReport is returned by Engine.InviteSupervisors.
type InviteReport struct {
	Successful []string        `json:"successfulInvites"`
	Failed     []InviteFailure `json:"failedInvites"`
}

// StaffInput is the payload of Engine.CreateStaffAccount.
type StaffInput struct {
	Email    string
	Password string
	Role     Role
	Message  string
}

// AuditEvent is the audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

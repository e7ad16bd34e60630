package internaldefs

import (
	"github.com/aimbuild/siteauth"
)

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   siteauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram to its exported name.
type HistogramDef struct {
	ID   siteauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: siteauth.MetricRegisterSuccess, Name: "siteauth_register_success_total", Help: "Accounts registered."},
	{ID: siteauth.MetricRegisterReissued, Name: "siteauth_register_reissued_total", Help: "Re-registrations of unverified accounts."},
	{ID: siteauth.MetricRegisterConflict, Name: "siteauth_register_conflict_total", Help: "Registrations rejected for a verified email."},
	{ID: siteauth.MetricLoginSuccess, Name: "siteauth_login_success_total", Help: "Successful logins."},
	{ID: siteauth.MetricLoginFailure, Name: "siteauth_login_failure_total", Help: "Failed logins."},
	{ID: siteauth.MetricLoginRejectedLocked, Name: "siteauth_login_rejected_locked_total", Help: "Logins refused during a lockout window."},
	{ID: siteauth.MetricLockoutTriggered, Name: "siteauth_lockout_triggered_total", Help: "Accounts locked after repeated failures."},
	{ID: siteauth.MetricLoginRateLimited, Name: "siteauth_login_rate_limited_total", Help: "Logins refused by the per-IP throttle."},
	{ID: siteauth.MetricVerifyEmailSuccess, Name: "siteauth_verify_email_success_total", Help: "Successful email verifications."},
	{ID: siteauth.MetricVerifyEmailFailure, Name: "siteauth_verify_email_failure_total", Help: "Failed email verifications."},
	{ID: siteauth.MetricOTPIssued, Name: "siteauth_otp_issued_total", Help: "One-time codes issued."},
	{ID: siteauth.MetricOTPRateLimited, Name: "siteauth_otp_rate_limited_total", Help: "One-time code requests refused by the throttle."},
	{ID: siteauth.MetricPasswordResetRequest, Name: "siteauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: siteauth.MetricPasswordResetSuccess, Name: "siteauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: siteauth.MetricPasswordResetFailure, Name: "siteauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: siteauth.MetricPasswordChangeSuccess, Name: "siteauth_password_change_success_total", Help: "Successful password changes."},
	{ID: siteauth.MetricPasswordChangeInvalidOld, Name: "siteauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: siteauth.MetricPasswordChangeReuseRejected, Name: "siteauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: siteauth.MetricInitialPasswordSet, Name: "siteauth_initial_password_set_total", Help: "Temporary passwords replaced."},
	{ID: siteauth.MetricPasswordRehashed, Name: "siteauth_password_rehashed_total", Help: "Hashes upgraded after login."},
	{ID: siteauth.MetricRefreshSuccess, Name: "siteauth_refresh_success_total", Help: "Successful token refreshes."},
	{ID: siteauth.MetricRefreshFailure, Name: "siteauth_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: siteauth.MetricRefreshReuseDetected, Name: "siteauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after revocation."},
	{ID: siteauth.MetricLogout, Name: "siteauth_logout_total", Help: "Logouts."},
	{ID: siteauth.MetricSupervisorInvited, Name: "siteauth_supervisor_invited_total", Help: "Supervisors invited."},
	{ID: siteauth.MetricSupervisorInviteFailed, Name: "siteauth_supervisor_invite_failed_total", Help: "Supervisor invitations that failed."},
	{ID: siteauth.MetricStaffCreated, Name: "siteauth_staff_created_total", Help: "Admin and super admin accounts created."},
	{ID: siteauth.MetricAuthorizeSuccess, Name: "siteauth_authorize_success_total", Help: "Requests authorized."},
	{ID: siteauth.MetricAuthorizeDenied, Name: "siteauth_authorize_denied_total", Help: "Requests rejected by the authorization gate."},
	{ID: siteauth.MetricNotificationFailure, Name: "siteauth_notification_failure_total", Help: "Email deliveries that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: siteauth.MetricAuthorizeLatency, Name: "siteauth_authorize_latency_seconds", Help: "Authorization gate latency."},
}

// HistogramBounds are the Prometheus le labels of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-slot array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

package notify

import (
	"context"

	"github.com/aimbuild/siteauth"
	"go.uber.org/zap"
)

// LogNotifier logs every email instead of sending it. Secrets (codes and
// temporary passwords) are logged at debug level only when RevealSecrets is
// set.
type LogNotifier struct {
	logger        *zap.Logger
	revealSecrets bool
}

var _ siteauth.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger, revealSecrets bool) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify"), revealSecrets: revealSecrets}
}

func (n *LogNotifier) log(kind templateKind, to, secret string, fields ...zap.Field) {
	fields = append(fields, zap.String("kind", string(kind)), zap.String("to", to))
	n.logger.Info("email suppressed", fields...)
	if n.revealSecrets && secret != "" {
		n.logger.Debug("email secret", zap.String("kind", string(kind)), zap.String("to", to), zap.String("secret", secret))
	}
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, to, otp string) error {
	n.log(kindVerification, to, otp)
	return nil
}

func (n *LogNotifier) SendResetPasswordEmail(_ context.Context, to, otp string) error {
	n.log(kindReset, to, otp)
	return nil
}

func (n *LogNotifier) SendSupervisorInviteEmail(_ context.Context, to, managerName, tempPassword string) error {
	n.log(kindInvite, to, tempPassword, zap.String("manager", managerName))
	return nil
}

func (n *LogNotifier) SendWelcomeEmail(_ context.Context, to, name string) error {
	n.log(kindWelcome, to, "", zap.String("name", name))
	return nil
}

func (n *LogNotifier) SendAdminCreationEmail(_ context.Context, to string, role siteauth.Role, tempPassword, _ string) error {
	n.log(kindStaff, to, tempPassword, zap.String("role", string(role)))
	return nil
}

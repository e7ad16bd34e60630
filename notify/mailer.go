package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimbuild/siteauth"
	"go.uber.org/zap"
)

// Message is one rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// MailerConfig configures a Mailer.
type MailerConfig struct {
	From  string
	Brand string
	// Now stamps the copyright year. Defaults to time.Now.
	Now func() time.Time
}

// Mailer renders engine emails and sends them through a Transport. It
// implements siteauth.Notifier.
type Mailer struct {
	transport Transport
	config    MailerConfig
	templates map[templateKind]compiled
	logger    *zap.Logger
}

var _ siteauth.Notifier = (*Mailer)(nil)

// NewMailer compiles the templates and returns a Mailer. A nil logger
// disables logging.
func NewMailer(transport Transport, cfg MailerConfig, logger *zap.Logger) (*Mailer, error) {
	if transport == nil {
		return nil, errors.New("notify: transport is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notify: from address is required")
	}
	if cfg.Brand == "" {
		cfg.Brand = "Aim Construction"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	templates, err := compileTemplates()
	if err != nil {
		return nil, err
	}
	return &Mailer{transport: transport, config: cfg, templates: templates, logger: logger}, nil
}

func (m *Mailer) send(ctx context.Context, kind templateKind, data templateData) error {
	tpl, ok := m.templates[kind]
	if !ok {
		return fmt.Errorf("notify: unknown template %q", kind)
	}
	data.Brand = m.config.Brand
	data.Year = m.config.Now().Year()

	subject, body, err := tpl.render(data)
	if err != nil {
		return fmt.Errorf("notify: render %s: %w", kind, err)
	}
	msg := Message{From: m.config.From, To: data.To, Subject: subject, HTML: body}
	if err := m.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %s: %w", kind, err)
	}
	m.logger.Info("email sent", zap.String("kind", string(kind)), zap.String("to", data.To))
	return nil
}

func (m *Mailer) SendVerificationEmail(ctx context.Context, to, otp string) error {
	return m.send(ctx, kindVerification, templateData{To: to, Secret: otp})
}

func (m *Mailer) SendResetPasswordEmail(ctx context.Context, to, otp string) error {
	return m.send(ctx, kindReset, templateData{To: to, Secret: otp})
}

func (m *Mailer) SendSupervisorInviteEmail(ctx context.Context, to, managerName, tempPassword string) error {
	return m.send(ctx, kindInvite, templateData{To: to, Name: managerName, Secret: tempPassword})
}

func (m *Mailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.send(ctx, kindWelcome, templateData{To: to, Name: name})
}

func (m *Mailer) SendAdminCreationEmail(ctx context.Context, to string, role siteauth.Role, tempPassword, message string) error {
	return m.send(ctx, kindStaff, templateData{To: to, Role: roleTitle(role), Secret: tempPassword, Message: message})
}

func roleTitle(role siteauth.Role) string {
	switch role {
	case siteauth.RoleSuperAdmin:
		return "a Super Admin"
	case siteauth.RoleAdmin:
		return "an Admin"
	default:
		return string(role)
	}
}

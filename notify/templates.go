package notify

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

const layoutHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
  <div style="max-width: 600px; margin: auto; background: #fff; padding: 24px; border-radius: 8px;">
    <h2 style="color: #F9A825;">{{.Title}}</h2>
    {{template "body" .}}
    <p style="font-size: 12px; color: #888;">&copy; {{.Year}} {{.Brand}}. All rights reserved.</p>
  </div>
</body>
</html>`

const credentialsHTML = `<div style="background-color: #f9f9f9; padding: 20px; border-radius: 8px; text-align: center; margin: 30px 0;">
  <p><strong>Email:</strong> {{.To}}</p>
  <p><strong>Temporary Password:</strong> <span style="font-weight: bold;">{{.Secret}}</span></p>
</div>
<p>For security reasons, please log in and change your password immediately.</p>`

type templateKind string

const (
	kindVerification templateKind = "verification"
	kindReset        templateKind = "reset_password"
	kindInvite       templateKind = "supervisor_invite"
	kindStaff        templateKind = "staff_creation"
	kindWelcome      templateKind = "welcome"
)

type templateSpec struct {
	subject string
	title   string
	body    string
}

var templateSpecs = map[templateKind]templateSpec{
	kindVerification: {
		subject: "Your Verification Code",
		title:   "Verification Code",
		body: `<p>Here's your verification code:</p>
<div style="font-size: 32px; font-weight: bold; letter-spacing: 6px;">{{.Secret}}</div>
<p style="font-size: 14px;">This code will expire soon.</p>`,
	},
	kindReset: {
		subject: "Your Password Reset Code",
		title:   "Password Reset",
		body: `<p>Here's your password reset code:</p>
<div style="font-size: 32px; font-weight: bold; letter-spacing: 6px;">{{.Secret}}</div>
<p style="font-size: 14px;">If you didn't request this, you can safely ignore this email.</p>`,
	},
	kindInvite: {
		subject: "You've been invited to join {{.Brand}}",
		title:   "You're Invited!",
		body: `<p>Your manager, <strong>{{.Name}}</strong>, has invited you to join their team. An account has been created for you.</p>
` + credentialsHTML,
	},
	kindStaff: {
		subject: "Congratulations! You are now {{.Role}}",
		title:   "Welcome, {{.Role}}!",
		body: `<p>An account has been created for you on the {{.Brand}} platform. Use the credentials below to log in:</p>
` + credentialsHTML + `{{if .Message}}<p>{{.Message}}</p>{{end}}`,
	},
	kindWelcome: {
		subject: "Welcome to {{.Brand}}!",
		title:   "Welcome Aboard!",
		body:    `<p>Hi {{.Name}}, your password is set and your account is ready to use.</p>`,
	},
}

// templateData is what every template sees.
type templateData struct {
	Brand   string
	Year    int
	To      string
	Name    string
	Role    string
	Secret  string
	Message string
	Title   string
}

// Subjects and titles are plain text; only the page is HTML.
type compiled struct {
	subject *texttemplate.Template
	title   *texttemplate.Template
	page    *template.Template
}

func compileTemplates() (map[templateKind]compiled, error) {
	out := make(map[templateKind]compiled, len(templateSpecs))
	for kind, spec := range templateSpecs {
		subject, err := texttemplate.New("subject").Parse(spec.subject)
		if err != nil {
			return nil, fmt.Errorf("%s subject: %w", kind, err)
		}
		title, err := texttemplate.New("title").Parse(spec.title)
		if err != nil {
			return nil, fmt.Errorf("%s title: %w", kind, err)
		}
		page, err := template.New("layout").Parse(layoutHTML)
		if err == nil {
			_, err = page.New("body").Parse(spec.body)
		}
		if err != nil {
			return nil, fmt.Errorf("%s body: %w", kind, err)
		}
		out[kind] = compiled{subject: subject, title: title, page: page}
	}
	return out, nil
}

func (c compiled) render(data templateData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := c.title.Execute(&buf, data); err != nil {
		return "", "", err
	}
	data.Title = buf.String()
	buf.Reset()

	if err := c.subject.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject = buf.String()
	buf.Reset()

	if err := c.page.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

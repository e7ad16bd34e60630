package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig configures an SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS dials TLS directly (port 465). Otherwise STARTTLS is used
	// when the server offers it.
	ImplicitTLS bool
	Timeout     time.Duration
}

// SMTPTransport sends messages over SMTP with PLAIN auth.
type SMTPTransport struct {
	config SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("notify: smtp host and port are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPTransport{config: cfg}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	addr := net.JoinHostPort(t.config.Host, fmt.Sprint(t.config.Port))
	tlsConfig := &tls.Config{ServerName: t.config.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if t.config.ImplicitTLS {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if !t.config.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if t.config.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMIME renders msg as a single-part HTML message. Header values are
// stripped of CR and LF.
func buildMIME(msg Message) []byte {
	clean := strings.NewReplacer("\r", "", "\n", "")
	var b strings.Builder
	b.WriteString("From: " + clean.Replace(msg.From) + "\r\n")
	b.WriteString("To: " + clean.Replace(msg.To) + "\r\n")
	b.WriteString("Subject: " + clean.Replace(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

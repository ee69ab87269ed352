// Package notify sends outbound replies to clients and staff: templated HTML
// email over SMTP and Telegram bot API calls. Every send is best-effort from
// the pipeline's point of view; callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/cleanops/go-intake-backend/internal/config"
)

// Mailer sends HTML email through one SMTP endpoint. Implicit TLS (465) and
// STARTTLS submission are both supported, mirroring the mailbox credentials
// unless overridden.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer builds a Mailer from SMTP settings.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// sanitizeHeader removes CR/LF to prevent SMTP header injection.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// Send delivers one HTML message. The context bounds the dial; SMTP command
// exchange uses the connection's own timeouts.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if strings.TrimSpace(m.cfg.Host) == "" {
		return fmt.Errorf("smtp not configured")
	}
	to = sanitizeHeader(strings.TrimSpace(to))
	if to == "" {
		return fmt.Errorf("missing recipient")
	}
	from := sanitizeHeader(m.cfg.From)

	var h mail.Header
	if fromAddrs, err := mail.ParseAddressList(from); err == nil && len(fromAddrs) > 0 {
		h.SetAddressList("From", fromAddrs)
	} else {
		h.Set("From", from)
	}
	if toAddrs, err := mail.ParseAddressList(to); err == nil && len(toAddrs) > 0 {
		h.SetAddressList("To", toAddrs)
	} else {
		h.Set("To", to)
	}
	h.SetSubject(sanitizeHeader(subject))
	h.Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	if _, err := w.Write([]byte(htmlBody)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return m.deliver(ctx, to, buf.Bytes())
}

func (m *Mailer) deliver(ctx context.Context, to string, body []byte) error {
	port := m.cfg.Port
	if port <= 0 {
		port = 465
	}
	host := m.cfg.Host
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{}

	var client *smtp.Client
	if m.cfg.TLS {
		// Implicit TLS, typically port 465.
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, host)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client, err = smtp.NewClient(conn, host)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp client: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
				_ = client.Close()
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	defer client.Close()

	if m.cfg.User != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

package emailplatform

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/mikabele/canoe-go/internal/config"
)

const smtpDialTimeout = 30 * time.Second

// sendMail delivers a single plain-text reply. Connections are
// ephemeral: each call opens and closes its own connection, matching
// the low outbound volume of reply traffic (no connection pool to
// manage or leak).
func sendMail(ctx context.Context, cfg config.EmailConfig, to, subject, body string) error {
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var client *smtp.Client
	var err error

	if !cfg.StartTLS {
		tlsCfg := &tls.Config{ServerName: cfg.SMTPHost}
		conn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if dialErr != nil {
			return fmt.Errorf("emailplatform: dial SMTPS %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.SMTPHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("emailplatform: create SMTP client on %s: %w", addr, err)
		}
	} else {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("emailplatform: dial SMTP %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.SMTPHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("emailplatform: create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("emailplatform: EHLO: %w", err)
	}

	if cfg.StartTLS {
		tlsCfg := &tls.Config{ServerName: cfg.SMTPHost}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("emailplatform: STARTTLS: %w", err)
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("emailplatform: AUTH: %w", err)
		}
	}

	if err := client.Mail(cfg.DefaultFrom); err != nil {
		return fmt.Errorf("emailplatform: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("emailplatform: RCPT TO %s: %w", to, err)
	}

	msg, err := composeReply(cfg.DefaultFrom, to, subject, body)
	if err != nil {
		return fmt.Errorf("emailplatform: compose reply: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("emailplatform: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("emailplatform: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("emailplatform: close DATA: %w", err)
	}

	return client.Quit()
}

package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/newspaper/config"
)

// ErrSMTPNotConfigured is returned when no SMTP host or sender is set.
var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SMTPMailer sends plain text mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPSection
}

// NewSMTPMailer returns a mailer bound to the SMTP settings.
func NewSMTPMailer(cfg config.SMTPSection) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message. The context deadline bounds the whole SMTP dialogue.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	cfg := m.cfg
	if cfg.Host == "" || cfg.From == "" {
		return ErrSMTPNotConfigured
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	msg := buildMessage(cfg, to, subject, body)

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if cfg.TLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				return err
			}
		}
	}
	if cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(cfg config.SMTPSection, to, subject, body string) string {
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "NewsPaper"
	}
	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), cfg.From)},
		{"To", to},
		{"Subject", mime.BEncoding.Encode("UTF-8", subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}
	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// Package mailer sends email over SMTP using operator-managed settings.
package mailer

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// SMTPConfig holds the connection parameters stored in the settings table.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Mailer delivers HTML email via SMTP.
type Mailer struct{}

// New constructs a Mailer.
func New() *Mailer {
	return &Mailer{}
}

// Send delivers a single HTML message. The config is passed per call because
// SMTP settings live in the database and may change between cron runs.
func (m *Mailer) Send(cfg SMTPConfig, to, subject, htmlBody string) error {
	if cfg.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	msg := gomail.NewMessage()
	if cfg.FromName != "" {
		msg.SetAddressHeader("From", from, cfg.FromName)
	} else {
		msg.SetHeader("From", from)
	}
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

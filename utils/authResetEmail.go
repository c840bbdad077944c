package utils

import (
	"MediSlot/config"
	"context"
	"fmt"
	"html"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// ContactLookup resolves the email address of a doctor.
type ContactLookup interface {
	DoctorEmail(ctx context.Context, doctorID uint) (string, error)
}

// Mailer sends reset codes and doctor notifications over SMTP. With no SMTP
// host configured messages are logged and dropped.
type Mailer struct {
	from     string
	contacts ContactLookup
	send     func(m *gomail.Message) error
}

func NewMailer(cfg *config.AppConfig, contacts ContactLookup) *Mailer {
	m := &Mailer{from: cfg.SMTPFrom, contacts: contacts}
	if m.from == "" {
		m.from = cfg.SMTPUser
	}
	if cfg.SMTPHost == "" {
		m.send = func(msg *gomail.Message) error {
			log.Info().Strs("to", msg.GetHeader("To")).Strs("subject", msg.GetHeader("Subject")).Msg("SMTP disabled, dropping email")
			return nil
		}
		return m
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	m.send = func(msg *gomail.Message) error {
		return dialer.DialAndSend(msg)
	}
	return m
}

// Notify emails the doctor identified by doctorID.
func (m *Mailer) Notify(ctx context.Context, doctorID uint, subject, body string) error {
	to, err := m.contacts.DoctorEmail(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("failed to resolve doctor %d email: %w", doctorID, err)
	}
	msg := m.newMessage(to, subject)
	msg.SetBody("text/plain", body)
	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send notification to doctor %d: %w", doctorID, err)
	}
	return nil
}

// SendResetCode emails a password reset code.
func (m *Mailer) SendResetCode(email, code string) error {
	msg := m.newMessage(email, "Password Reset Code")
	msg.SetBody("text/plain", "Your password reset code is: "+code)
	msg.AddAlternative("text/html", resetCodeHTML(code))
	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send reset code: %w", err)
	}
	return nil
}

func (m *Mailer) newMessage(to, subject string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	return msg
}

func resetCodeHTML(code string) string {
	return `
	<!DOCTYPE html>
	<html>
	<head>
		<title>Password Reset Code</title>
		<style>
			body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0; }
			.container { background-color: #ffffff; margin: 20px auto; padding: 20px; border-radius: 8px; max-width: 600px; }
			.code { font-weight: bold; color: #007bff; }
		</style>
	</head>
	<body>
		<div class="container">
			<h1>Password Reset Code</h1>
			<p>Your password reset code is:</p>
			<p class="code">` + html.EscapeString(code) + `</p>
			<p>If you did not request a password reset, please ignore this email.</p>
		</div>
	</body>
	</html>
	`
}

// Package email sends transactional mail over SMTP
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"chartpilot/config"
	"chartpilot/internal/logging"
)

// Service sends transactional email using the configured SMTP server
type Service struct {
	cfg    config.EmailConfig
	logger *logging.Logger
}

// NewService creates a new email service
func NewService(cfg config.EmailConfig) *Service {
	return &Service{
		cfg:    cfg,
		logger: logging.WithComponent("email"),
	}
}

// IsConfigured returns true when SMTP is enabled and has the settings it
// needs to send
func (s *Service) IsConfigured() bool {
	return s.cfg.Enabled && s.cfg.Host != "" && s.cfg.Port != "" && s.cfg.From != ""
}

// SendVerificationEmail sends the email address verification link
func (s *Service) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.AppBaseURL, token)
	subject := "Verify your ChartPilot email"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2>Welcome to ChartPilot</h2>
		<p>Confirm your email address to finish setting up your account:</p>
		<p style="text-align: center;">
			<a href="%s" style="display: inline-block; padding: 12px 30px; background-color: #4F46E5; color: white; text-decoration: none; border-radius: 5px;">Verify Email</a>
		</p>
		<p>This link expires in 24 hours. If you didn't create a ChartPilot account, you can ignore this email.</p>
	</div>
</body>
</html>
`, link)

	return s.send(ctx, to, subject, body)
}

// SendPasswordResetEmail sends the password reset link
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.AppBaseURL, token)
	subject := "Reset your ChartPilot password"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2>Password Reset</h2>
		<p>You requested a password reset for your ChartPilot account.</p>
		<p style="text-align: center;">
			<a href="%s" style="display: inline-block; padding: 12px 30px; background-color: #4F46E5; color: white; text-decoration: none; border-radius: 5px;">Reset Password</a>
		</p>
		<p>This link expires in 1 hour. If you didn't request a reset, you can ignore this email.</p>
	</div>
</body>
</html>
`, link)

	return s.send(ctx, to, subject, body)
}

// send delivers one message. Port 465 uses implicit TLS; everything else
// goes through smtp.SendMail which negotiates STARTTLS when offered.
func (s *Service) send(_ context.Context, to, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("SMTP is not configured")
	}

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := s.cfg.Host + ":" + s.cfg.Port

	var err error
	if s.cfg.Port == "465" {
		err = s.sendTLS(addr, auth, s.cfg.From, to, message)
	} else {
		err = smtp.SendMail(addr, auth, s.cfg.From, []string{to}, message)
	}
	if err != nil {
		s.logger.WithError(err).WithField("to", to).Error("Failed to send email")
		return fmt.Errorf("SMTP error: %w", err)
	}

	s.logger.WithField("to", to).Debug("Email sent")
	return nil
}

// sendTLS sends over an implicit TLS connection (port 465)
func (s *Service) sendTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to add recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

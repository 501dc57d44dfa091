package tourguard

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// EmailSender delivers account emails. Implement this interface to use your
// preferred email service.
type EmailSender interface {
	// SendPasswordReset sends the reset link. link carries the plaintext
	// ticket; it must never be logged at info level or stored.
	SendPasswordReset(ctx context.Context, to, name, link string, expiresInMinutes int) error
	// SendWelcome greets a new account. url points at the account page.
	SendWelcome(ctx context.Context, to, name, url string) error
}

// SMTPConfig holds configuration for the SMTP email sender.
type SMTPConfig struct {
	Host     string // SMTP server host (e.g., "smtp.mailtrap.io")
	Port     int    // SMTP server port (e.g., 587)
	Username string // SMTP username (often the email address)
	Password string // SMTP password or app-specific password
	From     string // From address (e.g., "hello@natours.io")
	FromName string // From name (e.g., "Natours")
}

// Enabled reports whether any SMTP setting is present.
func (cfg SMTPConfig) Enabled() bool {
	return cfg.Host != ""
}

// Validate checks that all required SMTP configuration fields are set.
func (cfg SMTPConfig) Validate() error {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "Host")
	}
	if cfg.Port == 0 {
		missing = append(missing, "Port")
	}
	if cfg.Username == "" {
		missing = append(missing, "Username")
	}
	if cfg.Password == "" {
		missing = append(missing, "Password")
	}
	if cfg.From == "" {
		missing = append(missing, "From")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing SMTP configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SMTPEmailSender sends emails via SMTP.
type SMTPEmailSender struct {
	cfg     SMTPConfig
	baseURL string
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailSender creates a new SMTP email sender.
func NewSMTPEmailSender(cfg SMTPConfig, appBaseURL string) *SMTPEmailSender {
	return &SMTPEmailSender{
		cfg:     cfg,
		baseURL: appBaseURL,
		send:    smtp.SendMail,
	}
}

var resetEmailTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Reset your password</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: #555;">
    <p>Hi {{.Name}},</p>
    <p>Forgot your password? Submit a new password and its confirmation here. This link is valid for <strong>{{.ExpiresInMinutes}} minutes</strong>.</p>
    <p><a href="{{.Link}}" style="display: inline-block; padding: 12px 28px; background-color: #55c57a; color: #fff; text-decoration: none; border-radius: 100px;">Reset your password</a></p>
    <p style="word-break: break-all; font-size: 12px;">{{.Link}}</p>
    <p>If you didn't forget your password, please ignore this email.</p>
    <p style="font-size: 12px; color: #999;">Sent from {{.BaseURL}}</p>
</body>
</html>`))

var welcomeEmailTemplate = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Welcome to the Natours Family!</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: #555;">
    <p>Hi {{.Name}},</p>
    <p>Welcome to Natours, we're glad to have you.</p>
    <p><a href="{{.URL}}" style="display: inline-block; padding: 12px 28px; background-color: #55c57a; color: #fff; text-decoration: none; border-radius: 100px;">Upload user photo</a></p>
    <p style="font-size: 12px; color: #999;">Sent from {{.BaseURL}}</p>
</body>
</html>`))

// SendPasswordReset sends a password reset email via SMTP.
func (s *SMTPEmailSender) SendPasswordReset(ctx context.Context, to, name, link string, expiresInMinutes int) error {
	htmlBody, err := render(resetEmailTemplate, map[string]any{
		"Name":             firstName(name),
		"Link":             link,
		"ExpiresInMinutes": expiresInMinutes,
		"BaseURL":          s.baseURL,
	})
	if err != nil {
		return fmt.Errorf("build email body: %w", err)
	}
	textBody := fmt.Sprintf(`Hi %s,

Forgot your password? Submit a new password and its confirmation at the link below.
This link expires in %d minutes.

%s

If you didn't forget your password, please ignore this email.
`, firstName(name), expiresInMinutes, link)

	subject := fmt.Sprintf("Your password reset token (valid for %d min)", expiresInMinutes)
	return s.deliver(ctx, to, subject, textBody, htmlBody)
}

// SendWelcome sends the welcome email via SMTP.
func (s *SMTPEmailSender) SendWelcome(ctx context.Context, to, name, url string) error {
	htmlBody, err := render(welcomeEmailTemplate, map[string]any{
		"Name":    firstName(name),
		"URL":     url,
		"BaseURL": s.baseURL,
	})
	if err != nil {
		return fmt.Errorf("build email body: %w", err)
	}
	textBody := fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you.\n\n%s\n", firstName(name), url)
	return s.deliver(ctx, to, "Welcome to the Natours Family!", textBody, htmlBody)
}

func (s *SMTPEmailSender) deliver(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := s.buildMIMEMessage(to, subject, textBody, htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPEmailSender) buildMIMEMessage(to, subject, textBody, htmlBody string) []byte {
	var buf bytes.Buffer
	boundary := "==TourguardBoundary=="

	fromHeader := s.cfg.From
	if s.cfg.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	buf.WriteString("\r\n")

	// Plain text part
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(textBody)
	buf.WriteString("\r\n")

	// HTML part
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func firstName(name string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first
}

// LoggingEmailSender is a no-op sender that logs emails instead of sending.
// Useful for development and testing.
type LoggingEmailSender struct {
	log *zap.Logger
}

func NewLoggingEmailSender(log *zap.Logger) *LoggingEmailSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingEmailSender{log: log.With(zap.String("component", "email"))}
}

// SendPasswordReset logs the reset link at debug level instead of sending an email.
func (l *LoggingEmailSender) SendPasswordReset(ctx context.Context, to, name, link string, expiresInMinutes int) error {
	l.log.Debug("password reset email", zap.String("to", to), zap.String("link", link), zap.Int("expires_in_minutes", expiresInMinutes))
	return nil
}

func (l *LoggingEmailSender) SendWelcome(ctx context.Context, to, name, url string) error {
	l.log.Debug("welcome email", zap.String("to", to), zap.String("url", url))
	return nil
}

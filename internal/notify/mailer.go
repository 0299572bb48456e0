// Package notify delivers verification emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"dietlog/internal/config"
	"dietlog/internal/middleware"
	"dietlog/internal/observability"
)

// SendTimeout bounds a single delivery attempt.
const SendTimeout = 10 * time.Second

// Mailer sends the verification code to a newly registered or resending user.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
}

// New returns the mailer selected by MAIL_DRIVER.
func New(ctx context.Context, cfg *config.Config) (Mailer, error) {
	switch cfg.MailDriver {
	case config.MailDriverSES:
		return NewSESMailer(ctx, cfg)
	default:
		return NewLogMailer(middleware.Logger), nil
	}
}

const verificationSubject = "Verify your email address"

var verificationTemplate = template.Must(template.New("verification").Parse(`<html>
  <body>
    <h1>Verify your email address</h1>
    <p>Hello {{.Name}}</p>
    <p>Thank you for registering. To verify your email address, please use the following code:</p>
    <h2>{{.Code}}</h2>
    <p>This code expires in 15 minutes. If you didn't request it, you can safely ignore this email.</p>
  </body>
</html>
`))

// Message is a rendered verification email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// RenderVerification builds the verification email for name and code.
func RenderVerification(to, name, code string) (Message, error) {
	var buf bytes.Buffer
	if err := verificationTemplate.Execute(&buf, struct{ Name, Code string }{name, code}); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:      to,
		Subject: verificationSubject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Hello %s\n\nYour verification code is %s. It expires in 15 minutes.\n", name, code),
	}, nil
}

// LogMailer writes verification codes to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a mailer that logs through logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = middleware.Logger
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	msg, err := RenderVerification(to, name, code)
	if err != nil {
		observability.RecordEmail(config.MailDriverLog, err)
		return err
	}
	m.logger.InfoContext(ctx, "verification email",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("code", code),
	)
	observability.RecordEmail(config.MailDriverLog, nil)
	return nil
}

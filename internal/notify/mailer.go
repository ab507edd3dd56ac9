// Package notify sends operational email notifications. Delivery is best
// effort: failures are logged and never propagated to the caller.
package notify

import (
	"context"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Mailer sends plain-text mail through one SMTP account.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	logger   *slog.Logger
}

// NewMailer creates a mailer. An empty host disables sending; Send becomes
// a no-op with a debug log.
func NewMailer(host string, port int, username, password, from, to string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger,
	}
}

// Enabled reports whether the mailer has an SMTP host configured.
func (m *Mailer) Enabled() bool { return m.host != "" }

// Send delivers one message to the configured recipient.
func (m *Mailer) Send(ctx context.Context, subject, body string) {
	if !m.Enabled() {
		m.logger.Debug("mail disabled, dropping notification",
			slog.String("subject", subject))
		return
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		m.logger.Error("mail: invalid sender",
			slog.String("from", m.from),
			slog.String("error", err.Error()))
		return
	}
	if err := msg.To(m.to); err != nil {
		m.logger.Error("mail: invalid recipient",
			slog.String("to", m.to),
			slog.String("error", err.Error()))
		return
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(m.port)}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password))
	}
	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		m.logger.Error("mail: client setup failed", slog.String("error", err.Error()))
		return
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("mail: send failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return
	}
	m.logger.Info("notification sent", slog.String("subject", subject))
}

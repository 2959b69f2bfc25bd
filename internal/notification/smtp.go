package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // optional - some servers allow unauthenticated relay
	Password string // optional
	From     string // default sender address
	FromName string // optional sender display name
}

// SMTPSender implements Sender over SMTP using go-mail, which handles
// TLS/STARTTLS negotiation and MIME multipart construction.
type SMTPSender struct {
	config SMTPConfig
	logger zerolog.Logger
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(config SMTPConfig, logger zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		config: config,
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

// Send delivers the message via SMTP.
func (s *SMTPSender) Send(ctx context.Context, m *Message) (string, error) {
	msg := mail.NewMsg()

	from := s.config.From
	if s.config.FromName != "" {
		if err := msg.FromFormat(s.config.FromName, from); err != nil {
			return "", fmt.Errorf("invalid from address: %w", err)
		}
	} else if err := msg.From(from); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}

	if err := msg.To(m.To...); err != nil {
		return "", fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(m.Subject)

	if m.HTMLBody != "" {
		msg.SetBodyString(mail.TypeTextPlain, m.TextBody)
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTMLBody)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, m.TextBody)
	}

	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	client, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}

	id := msg.GetMessageID()
	s.logger.Info().
		Strs("to", m.To).
		Str("subject", m.Subject).
		Str("message_id", id).
		Msg("notification sent")

	return id, nil
}

// Package notification sends customer-facing messages. Failures here are
// never allowed to roll back the order flow that triggered them.
package notification

import "context"

// Message is a notification ready to send.
type Message struct {
	To       []string // Recipient email addresses
	Subject  string
	TextBody string
	HTMLBody string // optional
}

// Sender delivers messages.
// Implementations can use SMTP, Postmark, SES, etc.
type Sender interface {
	// Send delivers a message and returns the provider's message id when one
	// is available.
	Send(ctx context.Context, msg *Message) (string, error)
}

// Package mailer sends transactional email through SendGrid or, in
// development, logs messages to the console.
package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/pkg/config"
)

const (
	ProviderSendgrid = "sendgrid"
	ProviderConsole  = "console"
)

// Message is a single outgoing email.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// HasRecipients reports whether at least one address is set.
func (m Message) HasRecipients() bool {
	for _, to := range m.To {
		if strings.TrimSpace(to.Address) != "" {
			return true
		}
	}
	return false
}

// Mailer delivers messages synchronously and reports provider failures.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the provider configured for the environment.
func New(cfg config.EmailConfig, logger *zap.Logger) (Mailer, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	switch cfg.Provider {
	case ProviderSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendgridMailer(cfg.SendgridAPIKey, from, cfg.SubjectPrefix), nil
	case ProviderConsole, "":
		return NewConsoleMailer(from, cfg.SubjectPrefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

package mailer

import (
	"context"
	"net/mail"
	"sync"

	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of sending them and keeps a copy.
type ConsoleMailer struct {
	from       mail.Address
	subjPrefix string
	logger     *zap.Logger

	mu   sync.Mutex
	sent []Message
}

var _ Mailer = (*ConsoleMailer)(nil)

// NewConsoleMailer returns a development mailer.
func NewConsoleMailer(from mail.Address, subjPrefix string, logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{from: from, subjPrefix: subjPrefix, logger: logger}
}

// Send logs the message.
func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, to.String())
	}
	m.logger.Info("email",
		zap.String("from", m.from.String()),
		zap.Strings("to", recipients),
		zap.String("subject", m.subjPrefix+msg.Subject),
		zap.String("body", msg.Text),
	)

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages handled so far.
func (m *ConsoleMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

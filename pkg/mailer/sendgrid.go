package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendgridMailer delivers mail through the SendGrid v3 API.
type SendgridMailer struct {
	client     sendgridClient
	from       *sgmail.Email
	subjPrefix string
}

var _ Mailer = (*SendgridMailer)(nil)

// NewSendgridMailer builds a mailer using the given API key.
func NewSendgridMailer(apiKey string, from mail.Address, subjPrefix string) *SendgridMailer {
	return &SendgridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: subjPrefix,
	}
}

// Send posts the message and turns HTTP error statuses into errors.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if !msg.HasRecipients() {
		return fmt.Errorf("message has no recipients")
	}
	res, err := m.client.SendWithContext(ctx, m.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (m *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.Subject = p.Subject
	v3.AddPersonalizations(p)
	if msg.Text != "" {
		v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return v3
}

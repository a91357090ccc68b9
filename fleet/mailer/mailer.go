package mailer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var ErrSendFailed = errors.New("email dispatch failed")

// Mailer enqueues a message for an address. Delivery guarantees are the
// provider's concern, the caller only learns whether the handoff succeeded.
type Mailer interface {
	Send(toName, toAddress, subject, htmlBody string) error
}

// Discard drops every message. Used when no provider key is configured, so
// local setups can run without email.
type Discard struct{}

func (Discard) Send(toName, toAddress, subject, htmlBody string) error {
	slog.Info("email discarded, no mail provider configured", "to", toAddress, "subject", subject)
	return nil
}

type SendgridMailer struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
}

func NewSendgridMailer(apiKey, fromName, fromAddress string) *SendgridMailer {
	return &SendgridMailer{
		client:      sendgrid.NewSendClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
	}
}

func (m *SendgridMailer) Send(toName, toAddress, subject, htmlBody string) error {
	from := mail.NewEmail(m.fromName, m.fromAddress)
	to := mail.NewEmail(toName, toAddress)
	message := mail.NewSingleEmail(from, subject, to, "", htmlBody)

	response, err := m.client.Send(message)
	if err != nil {
		slog.Error("error sending email", "to", toAddress, "subject", subject, "error", err)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		slog.Error("email provider rejected message", "to", toAddress, "subject", subject, "status", response.StatusCode)
		return fmt.Errorf("%w: provider returned status %d", ErrSendFailed, response.StatusCode)
	}

	return nil
}

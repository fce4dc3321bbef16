package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/resend/resend-go/v2"

	"mailgate/internal/models"
)

// ResendTransport sends through the Resend HTTP API.
type ResendTransport struct {
	client *resend.Client
}

func NewResend(apiKey string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey)}
}

func (t *ResendTransport) Send(ctx context.Context, email *models.Email, useBcc bool) error {
	addrs := make([]string, len(email.Recipients))
	for i, r := range email.Recipients {
		addrs[i] = r.Address
	}

	params := &resend.SendEmailRequest{
		From:    email.Sender,
		Subject: email.Subject,
		Html:    email.HTMLBody,
		Text:    email.TextBody,
	}
	if useBcc {
		params.To = []string{email.Sender}
		params.Bcc = addrs
	} else {
		params.To = addrs
	}

	for _, a := range email.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}

	if _, err := t.client.Emails.SendWithContext(ctx, params); err != nil {
		return classifyResend(err)
	}
	return nil
}

// classifyResend maps Resend API failures onto the retry taxonomy: rate
// limiting, server-side errors and network faults are transient; validation
// and auth failures are permanent.
func classifyResend(err error) error {
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "internal_server_error"),
		strings.Contains(msg, "application_error"):
		return Transient(err)
	default:
		return Permanent(fmt.Errorf("resend send failed: %w", err))
	}
}

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"

	"gopkg.in/gomail.v2"

	"mailgate/internal/models"
)

// SMTPTransport sends through a plain SMTP relay via gomail.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
}

func NewSMTP(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{Host: host, Port: port, Username: username, Password: password}
}

func (t *SMTPTransport) Send(ctx context.Context, email *models.Email, useBcc bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", email.Sender)

	addrs := make([]string, len(email.Recipients))
	for i, r := range email.Recipients {
		addrs[i] = r.Address
	}
	if useBcc {
		m.SetHeader("To", email.Sender)
		m.SetHeader("Bcc", addrs...)
	} else {
		m.SetHeader("To", addrs...)
	}

	m.SetHeader("Subject", email.Subject)
	if email.TextBody != "" {
		m.SetBody("text/plain", email.TextBody)
		if email.HTMLBody != "" {
			m.AddAlternative("text/html", email.HTMLBody)
		}
	} else {
		m.SetBody("text/html", email.HTMLBody)
	}

	for _, a := range email.Attachments {
		content := a.Content
		m.Attach(a.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	d := gomail.NewDialer(t.Host, t.Port, t.Username, t.Password)
	if err := d.DialAndSend(m); err != nil {
		return classifySMTP(err)
	}
	return nil
}

// classifySMTP maps SMTP reply codes onto the retry taxonomy: 4xx replies
// (mailbox busy, insufficient storage, throttling) and network timeouts are
// transient, 5xx replies are permanent.
func classifySMTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return Transient(err)
		}
		return Permanent(err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient(err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient(err)
	}

	return Permanent(err)
}

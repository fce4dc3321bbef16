package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailgate/internal/models"
)

type recordingTransport struct {
	sent chan *models.Email
	err  error
}

func (r *recordingTransport) Send(_ context.Context, email *models.Email, useBcc bool) error {
	r.sent <- email
	return r.err
}

func TestAlertSendsSingleRecipientMessage(t *testing.T) {
	tr := &recordingTransport{sent: make(chan *models.Email, 1)}
	a := New(tr, "noreply@mailgate.org", "ops@mailgate.org", zap.NewNop())

	a.AlertIfAboveThreshold(models.PerMinute, 0.8, 0.92)

	select {
	case email := <-tr.sent:
		require.Len(t, email.Recipients, 1, "alerts are never batched")
		assert.Equal(t, "ops@mailgate.org", email.Recipients[0].Address)
		assert.Equal(t, "noreply@mailgate.org", email.Sender)
		assert.Contains(t, email.Subject, "per_minute")
		assert.Contains(t, email.Subject, "0.92")
		assert.Contains(t, email.TextBody, "0.80")
	case <-time.After(2 * time.Second):
		t.Fatal("alert was never sent")
	}
}

func TestAlertFailureIsSwallowed(t *testing.T) {
	tr := &recordingTransport{
		sent: make(chan *models.Email, 1),
		err:  errors.New("transport down"),
	}
	a := New(tr, "noreply@mailgate.org", "ops@mailgate.org", zap.NewNop())

	// Must not panic and must not block the caller.
	a.AlertIfAboveThreshold(models.PerHour, 0.8, 0.85)

	select {
	case <-tr.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("alert send was never attempted")
	}
}

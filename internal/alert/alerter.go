// Package alert notifies operators when quota usage nears the ceiling.
//
// The alerter holds only the narrow transport interface: it cannot reach
// the governor, so an alert can never be throttled into silence or recurse
// into admission control.
package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailgate/internal/models"
	"mailgate/internal/transport"
)

const sendTimeout = 15 * time.Second

type ThresholdAlerter struct {
	transport     transport.Transport
	senderAddress string
	operatorEmail string
	log           *zap.Logger
}

func New(t transport.Transport, senderAddress, operatorEmail string, log *zap.Logger) *ThresholdAlerter {
	return &ThresholdAlerter{
		transport:     t,
		senderAddress: senderAddress,
		operatorEmail: operatorEmail,
		log:           log,
	}
}

// AlertIfAboveThreshold sends a single-recipient, non-batched warning to
// the operator address. Best-effort: runs on its own goroutine, failures
// are logged and swallowed, the surrounding send is never affected.
func (a *ThresholdAlerter) AlertIfAboveThreshold(interval models.LimitInterval, threshold, usage float64) {
	email := a.compose(interval, threshold, usage)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := a.transport.Send(ctx, email, false); err != nil {
			a.log.Error("threshold alert send failed",
				zap.String("interval", interval.String()),
				zap.String("usage", fmt.Sprintf("%.2f", usage)),
				zap.Error(err),
			)
			return
		}

		a.log.Info("threshold alert sent",
			zap.String("interval", interval.String()),
			zap.String("usage", fmt.Sprintf("%.2f", usage)),
		)
	}()
}

func (a *ThresholdAlerter) compose(interval models.LimitInterval, threshold, usage float64) *models.Email {
	subject := fmt.Sprintf("Email quota warning: %s at %.2f", interval, usage)
	body := fmt.Sprintf(
		"Projected %s usage is %.2f, at or above the %.2f warning threshold.\n"+
			"Sends will be rejected once usage reaches 1.00.\n",
		interval, usage, threshold,
	)

	return &models.Email{
		Sender:     a.senderAddress,
		Subject:    subject,
		TextBody:   body,
		Recipients: []models.Recipient{models.NewRecipient(a.operatorEmail)},
		CreatedAt:  time.Now().UTC(),
	}
}

// Package orchestrator is the entry point for outbound email: structural
// validation, quota admission, recipient reconciliation, then batched
// dispatch.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mailgate/internal/governor"
	"mailgate/internal/models"
	"mailgate/internal/validate"
)

// ValidationError rejects a send before any network effect. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid email: %s %s", e.Field, e.Reason)
}

// AdmissionChecker decides whether sending intended more emails fits the
// provider quota windows.
type AdmissionChecker interface {
	CheckAndAdmit(ctx context.Context, intended int, now time.Time) (governor.Decision, error)
}

// Reconciler substitutes persisted recipient records for transient ones.
type Reconciler interface {
	Reconcile(ctx context.Context, recipients []models.Recipient) error
}

// Sender runs the batched dispatch of one admitted email.
type Sender interface {
	SendAll(ctx context.Context, email *models.Email, batchSize int, useBcc bool) (models.SendingStatus, error)
}

type Orchestrator struct {
	governor       AdmissionChecker
	dedup          Reconciler
	dispatcher     Sender
	allowedSenders map[string]bool
	batchSize      int
	structural     *validator.Validate
	log            *zap.Logger
}

func New(g AdmissionChecker, d Reconciler, s Sender, allowedSenders []string, batchSize int, log *zap.Logger) *Orchestrator {
	allowed := make(map[string]bool, len(allowedSenders))
	for _, a := range allowedSenders {
		allowed[strings.ToLower(strings.TrimSpace(a))] = true
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Orchestrator{
		governor:       g,
		dedup:          d,
		dispatcher:     s,
		allowedSenders: allowed,
		batchSize:      batchSize,
		structural:     validator.New(validator.WithRequiredStructEnabled()),
		log:            log,
	}
}

// SendEmail dispatches to the recipients already on the email, using the
// configured provider cap as the batch size. Newsletters go out Bcc.
func (o *Orchestrator) SendEmail(ctx context.Context, email *models.Email) (models.SendingStatus, error) {
	return o.SendEmailToAudience(ctx, email, email.Recipients, o.batchSize, email.IsNewsletter)
}

// SendEmailToAudience dispatches email to recipients in batches of at most
// batchSize. The pipeline is: structural checks, recipient partition, quota
// admission, reconciliation, dispatch. Validation and quota failures stop
// the pipeline with zero transport calls.
func (o *Orchestrator) SendEmailToAudience(ctx context.Context, email *models.Email, recipients []models.Recipient, batchSize int, useBcc bool) (models.SendingStatus, error) {
	status := models.SendingStatus{
		Email: email,
		State: models.StateNotStarted,
	}

	if batchSize < 1 {
		batchSize = o.batchSize
	}
	if email.IsNewsletter {
		useBcc = true
	}

	if verr := o.checkEmail(email, recipients); verr != nil {
		o.log.Warn("email rejected before dispatch",
			zap.String("field", verr.Field),
			zap.String("reason", verr.Reason),
		)
		status.State = models.StateFailed
		return status, verr
	}

	valid, invalid := validate.Partition(recipients)
	status.InvalidRecipients = invalid
	if len(valid) == 0 {
		status.State = models.StateFailed
		return status, &ValidationError{Field: "recipients", Reason: "no structurally valid addresses"}
	}

	status.State = models.StateRunning

	if _, err := o.governor.CheckAndAdmit(ctx, 1, time.Now().UTC()); err != nil {
		status.State = models.StateFailed
		return status, err
	}

	if err := o.dedup.Reconcile(ctx, valid); err != nil {
		status.State = models.StateFailed
		return status, err
	}

	msg := *email
	msg.Recipients = valid

	// The returned status carries the dispatched message: its recipient
	// list is the reconciled valid set, so callers can persist the
	// recipients that are still transient.
	sent, err := o.dispatcher.SendAll(ctx, &msg, batchSize, useBcc)
	sent.InvalidRecipients = invalid

	if sent.State == models.StateUnknown {
		o.log.Error("dispatch reported an unmodeled outcome",
			zap.String("subject", email.Subject),
			zap.Int("batches_total", sent.BatchesTotal),
		)
	}

	return sent, err
}

// checkEmail runs the synchronous pre-dispatch checks: the email never
// leaves NotStarted when any of these fail.
func (o *Orchestrator) checkEmail(email *models.Email, recipients []models.Recipient) *ValidationError {
	if len(recipients) == 0 {
		return &ValidationError{Field: "recipients", Reason: "must not be empty"}
	}

	probe := *email
	probe.Recipients = recipients
	if err := o.structural.Struct(&probe); err != nil {
		return &ValidationError{Field: "email", Reason: err.Error()}
	}

	if !o.allowedSenders[strings.ToLower(strings.TrimSpace(email.Sender))] {
		return &ValidationError{Field: "sender", Reason: "not in the organizational allow-list"}
	}

	if size := email.Size(); size > models.MaxEmailSize {
		return &ValidationError{
			Field:  "body",
			Reason: fmt.Sprintf("serialized size %d exceeds limit %d", size, models.MaxEmailSize),
		}
	}

	return nil
}

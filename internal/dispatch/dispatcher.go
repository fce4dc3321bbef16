// Package dispatch partitions a validated recipient set into bounded
// batches and drives them through the transport with per-batch retry.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/transport"
)

// PartialError reports a mixed outcome: some batches exhausted their retry
// budget while others were delivered.
type PartialError struct {
	FailedBatches int
	TotalBatches  int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial dispatch: %d of %d batches failed", e.FailedBatches, e.TotalBatches)
}

type Dispatcher struct {
	transport transport.Transport
	limiter   *rate.Limiter
	attempts  int
	delay     time.Duration
	log       *zap.Logger
}

// New builds a dispatcher. attempts is the total tries per batch (first
// attempt included); delay is the fixed pause between tries.
func New(t transport.Transport, limiter *rate.Limiter, attempts int, delay time.Duration, log *zap.Logger) *Dispatcher {
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{
		transport: t,
		limiter:   limiter,
		attempts:  attempts,
		delay:     delay,
		log:       log,
	}
}

// SendAll chunks the email's recipients into batches of at most batchSize
// and sends them in partition order. Each batch is an independent unit of
// failure: one batch exhausting its retries does not stop the rest.
// Cancellation is honored between batches and between retry attempts; an
// in-flight attempt is allowed to finish.
func (d *Dispatcher) SendAll(ctx context.Context, email *models.Email, batchSize int, useBcc bool) (models.SendingStatus, error) {
	status := models.SendingStatus{
		Email: email,
		State: models.StateRunning,
	}

	batches := chunk(email.Recipients, batchSize)
	status.BatchesTotal = len(batches)

	if len(batches) == 0 {
		// Dispatch on an empty recipient list maps to no modeled outcome.
		d.log.Error("dispatch produced zero batches, outcome is unmodeled",
			zap.String("subject", email.Subject),
		)
		status.State = models.StateUnknown
		return status, nil
	}

	canceled := false
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			// Everything not yet attempted stays retry-worthy.
			for _, b := range batches[i:] {
				status.FailedRecipients = append(status.FailedRecipients, b...)
			}
			status.BatchesFailed += len(batches) - i
			canceled = true
			break
		}

		metrics.BatchesSent.Inc()
		if err := d.sendBatch(ctx, email, batch, useBcc); err != nil {
			d.log.Error("batch send failed",
				zap.Int("batch_index", i),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			metrics.BatchFailures.Inc()
			status.BatchesFailed++
			status.FailedRecipients = append(status.FailedRecipients, batch...)
			// A retry aborted by cancellation surfaces as Canceled, never
			// as retry exhaustion.
			if ctx.Err() != nil {
				for _, b := range batches[i+1:] {
					status.FailedRecipients = append(status.FailedRecipients, b...)
				}
				status.BatchesFailed += len(batches) - i - 1
				canceled = true
				break
			}
			continue
		}

		d.log.Info("batch sent",
			zap.Int("batch_index", i),
			zap.Int("batch_size", len(batch)),
		)
	}

	switch {
	case canceled:
		status.State = models.StateCanceled
		return status, ctx.Err()
	case status.BatchesFailed == 0:
		status.State = models.StateSucceeded
		return status, nil
	case status.BatchesFailed == status.BatchesTotal:
		status.State = models.StateFailed
		return status, fmt.Errorf("all %d batches failed", status.BatchesTotal)
	default:
		status.State = models.StatePartiallyFailed
		return status, &PartialError{
			FailedBatches: status.BatchesFailed,
			TotalBatches:  status.BatchesTotal,
		}
	}
}

// sendBatch retries transient transport failures up to the attempt budget
// with a fixed inter-attempt delay. Permanent failures stop immediately.
func (d *Dispatcher) sendBatch(ctx context.Context, email *models.Email, batch []models.Recipient, useBcc bool) error {
	msg := *email
	msg.Recipients = batch

	operation := func() error {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		err := d.transport.Send(ctx, &msg, useBcc)
		if err == nil {
			return nil
		}
		if !transport.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.delay), uint64(d.attempts-1))
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// chunk splits recipients into groups of at most size, preserving order.
func chunk(recipients []models.Recipient, size int) [][]models.Recipient {
	if size < 1 {
		size = 1
	}

	var batches [][]models.Recipient
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end])
	}
	return batches
}

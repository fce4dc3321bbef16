package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mailgate/internal/metrics"
	"mailgate/internal/models"
)

// AudienceJob is one queued bulk send.
type AudienceJob struct {
	ID         string
	Email      *models.Email
	Recipients []models.Recipient
	BatchSize  int
	UseBcc     bool
}

// AudienceSender runs one audience send end to end.
type AudienceSender interface {
	SendEmailToAudience(ctx context.Context, email *models.Email, recipients []models.Recipient, batchSize int, useBcc bool) (models.SendingStatus, error)
}

// HistoryStore records dispatched emails and newly seen recipients.
type HistoryStore interface {
	InsertEmail(ctx context.Context, email *models.Email, state models.SendState) error
	InsertRecipient(ctx context.Context, r *models.Recipient) error
}

// StartPool runs workers that drain audience jobs through the orchestrator
// and record the outcome in send history.
func StartPool(
	ctx context.Context,
	wg *sync.WaitGroup,
	workers int,
	jobs <-chan AudienceJob,
	orch AudienceSender,
	store HistoryStore,
	logger *zap.Logger,
) {

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			logger.Info("audience worker started", zap.Int("worker_id", id))

			for {
				select {

				case <-ctx.Done():
					logger.Info("audience worker shutting down", zap.Int("worker_id", id))
					return

				case job, ok := <-jobs:
					if !ok {
						logger.Info("job channel closed", zap.Int("worker_id", id))
						return
					}

					status, err := orch.SendEmailToAudience(ctx, job.Email, job.Recipients, job.BatchSize, job.UseBcc)
					if err != nil {
						logger.Error("audience send failed",
							zap.Int("worker_id", id),
							zap.String("job_id", job.ID),
							zap.String("state", string(status.State)),
							zap.Error(err),
						)
					} else {
						logger.Info("audience send finished",
							zap.Int("worker_id", id),
							zap.String("job_id", job.ID),
							zap.String("state", string(status.State)),
							zap.Int("batches_total", status.BatchesTotal),
							zap.Int("batches_failed", status.BatchesFailed),
						)
					}

					switch status.State {
					case models.StateSucceeded:
						metrics.EmailsSent.Inc()
					case models.StateFailed, models.StatePartiallyFailed:
						metrics.EmailFailures.Inc()
					}

					// History feeds later admission checks; only record
					// emails that actually reached the transport.
					if status.State != models.StateFailed && status.State != models.StateNotStarted {
						if dbErr := store.InsertEmail(ctx, job.Email, status.State); dbErr != nil {
							logger.Error("failed to record send history",
								zap.String("job_id", job.ID),
								zap.Error(dbErr),
							)
						}
						persistNewRecipients(ctx, store, status.Email, logger)
					}
				}
			}
		}(i)
	}
}

// persistNewRecipients stores the recipients dispatch saw for the first
// time, so the next reconciliation substitutes the persisted row instead
// of inserting a duplicate.
func persistNewRecipients(ctx context.Context, store HistoryStore, email *models.Email, logger *zap.Logger) {
	if email == nil {
		return
	}
	for i := range email.Recipients {
		rec := &email.Recipients[i]
		if rec.ID != 0 {
			continue
		}
		if err := store.InsertRecipient(ctx, rec); err != nil {
			logger.Error("failed to persist recipient",
				zap.String("address", rec.Address),
				zap.Error(err),
			)
		}
	}
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailgate/internal/models"
)

type fakeStore struct {
	emails     int
	recipients []models.Recipient
	nextID     int64
}

func (f *fakeStore) InsertEmail(_ context.Context, _ *models.Email, _ models.SendState) error {
	f.emails++
	return nil
}

func (f *fakeStore) InsertRecipient(_ context.Context, r *models.Recipient) error {
	f.nextID++
	r.ID = f.nextID
	f.recipients = append(f.recipients, *r)
	return nil
}

type stubSender struct {
	status models.SendingStatus
	err    error
}

func (s *stubSender) SendEmailToAudience(_ context.Context, email *models.Email, _ []models.Recipient, _ int, _ bool) (models.SendingStatus, error) {
	if s.status.Email == nil {
		s.status.Email = email
	}
	return s.status, s.err
}

func runOneJob(t *testing.T, sender *stubSender, store *fakeStore, job AudienceJob) {
	t.Helper()

	jobs := make(chan AudienceJob, 1)
	var wg sync.WaitGroup
	StartPool(context.Background(), &wg, 1, jobs, sender, store, zap.NewNop())

	jobs <- job
	close(jobs)
	wg.Wait()
}

func TestPoolRecordsHistoryAndNewRecipients(t *testing.T) {
	store := &fakeStore{}
	sender := &stubSender{status: models.SendingStatus{State: models.StateSucceeded, BatchesTotal: 1}}

	email := &models.Email{
		Sender:  "noreply@mailgate.org",
		Subject: "Monthly newsletter",
		Recipients: []models.Recipient{
			{Address: "a@example.org"},
			{ID: 3, Address: "b@example.org"},
		},
	}

	runOneJob(t, sender, store, AudienceJob{ID: "job-1", Email: email, Recipients: email.Recipients})

	assert.Equal(t, 1, store.emails)

	// The already-persisted recipient must not be written again.
	require.Len(t, store.recipients, 1)
	assert.Equal(t, "a@example.org", store.recipients[0].Address)
}

func TestPoolSkipsHistoryWhenNothingWasSent(t *testing.T) {
	store := &fakeStore{}
	sender := &stubSender{
		status: models.SendingStatus{State: models.StateFailed},
		err:    errors.New("quota exceeded"),
	}

	runOneJob(t, sender, store, AudienceJob{ID: "job-2", Email: &models.Email{}})

	assert.Zero(t, store.emails)
	assert.Empty(t, store.recipients)
}

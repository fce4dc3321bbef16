package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailgate/internal/models"
)

type fakeCounter struct {
	mu          sync.Mutex
	minuteCount int
	hourCount   int
	err         error
	errOnHour   bool
	calls       int
}

func (f *fakeCounter) CountCreatedSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	window := time.Now().UTC().Sub(since)
	isHour := window > 30*time.Minute
	if f.err != nil && (!f.errOnHour || isHour) {
		return 0, f.err
	}
	if isHour {
		return f.hourCount, nil
	}
	return f.minuteCount, nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	calls []models.LimitInterval
}

func (f *fakeAlerter) AlertIfAboveThreshold(interval models.LimitInterval, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, interval)
}

func newGovernor(t *testing.T, counter *fakeCounter, alerter *fakeAlerter, perMinute, perHour int) *Governor {
	t.Helper()
	g, err := New(counter, alerter, perMinute, perHour, 0.8, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestNonPositiveQuotaIsRejectedAtConstruction(t *testing.T) {
	_, err := New(&fakeCounter{}, &fakeAlerter{}, 0, 100, 0.8, zap.NewNop())
	require.Error(t, err)

	_, err = New(&fakeCounter{}, &fakeAlerter{}, 10, -1, 0.8, zap.NewNop())
	require.Error(t, err)
}

func TestNegativeCountFailsWithoutRepositoryRead(t *testing.T) {
	counter := &fakeCounter{}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 100)

	_, err := g.CheckAndAdmit(context.Background(), -1, time.Now().UTC())

	require.ErrorIs(t, err, ErrNegativeCount)
	assert.Zero(t, counter.calls, "repository must not be read for a contract violation")
}

func TestRejectsWhenProjectedUsageExceedsQuota(t *testing.T) {
	// 8 already in the trailing minute, quota 10, asking for 3 more:
	// (8+3)/10 = 1.10.
	counter := &fakeCounter{minuteCount: 8, hourCount: 8}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 1000)

	decision, err := g.CheckAndAdmit(context.Background(), 3, time.Now().UTC())

	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.False(t, decision.Admitted)
	assert.InDelta(t, 1.10, qerr.Usages[models.PerMinute], 1e-9)
	assert.InDelta(t, 1.10, decision.Usages[models.PerMinute], 1e-9)
}

func TestAdmitsAtNinetyPercentAndAlertsOnce(t *testing.T) {
	// (8+1)/10 = 0.90: above the 0.80 warning threshold but under quota.
	counter := &fakeCounter{minuteCount: 8, hourCount: 8}
	alerter := &fakeAlerter{}
	g := newGovernor(t, counter, alerter, 10, 1000)

	decision, err := g.CheckAndAdmit(context.Background(), 1, time.Now().UTC())

	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.InDelta(t, 0.90, decision.Usages[models.PerMinute], 1e-9)
	require.Len(t, alerter.calls, 1, "exactly one alert for the per-minute interval")
	assert.Equal(t, models.PerMinute, alerter.calls[0])
}

func TestAlertsPerIntervalIndependently(t *testing.T) {
	// Both windows above threshold: one alert each.
	counter := &fakeCounter{minuteCount: 9, hourCount: 95}
	alerter := &fakeAlerter{}
	g := newGovernor(t, counter, alerter, 10, 100)

	_, err := g.CheckAndAdmit(context.Background(), 0, time.Now().UTC())

	require.NoError(t, err)
	require.Len(t, alerter.calls, 2)
	assert.Equal(t, models.PerMinute, alerter.calls[0])
	assert.Equal(t, models.PerHour, alerter.calls[1])
}

func TestAlertsEvenWhenRejected(t *testing.T) {
	counter := &fakeCounter{minuteCount: 12, hourCount: 12}
	alerter := &fakeAlerter{}
	g := newGovernor(t, counter, alerter, 10, 1000)

	_, err := g.CheckAndAdmit(context.Background(), 0, time.Now().UTC())

	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	require.Len(t, alerter.calls, 1)
	assert.Equal(t, models.PerMinute, alerter.calls[0])
}

func TestUsageIsUnclampedRatio(t *testing.T) {
	counter := &fakeCounter{minuteCount: 25, hourCount: 25}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 1000)

	decision, err := g.CheckAndAdmit(context.Background(), 5, time.Now().UTC())

	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.InDelta(t, 3.0, decision.Usages[models.PerMinute], 1e-9)
}

func TestFailsClosedWhenCountUnavailable(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 100)

	decision, err := g.CheckAndAdmit(context.Background(), 1, time.Now().UTC())

	var uerr *UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, models.PerMinute, uerr.Interval)
	assert.False(t, decision.Admitted)
}

func TestFailsClosedWhenOnlySecondWindowUnavailable(t *testing.T) {
	counter := &fakeCounter{minuteCount: 0, hourCount: 0, err: errors.New("timeout"), errOnHour: true}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 100)

	_, err := g.CheckAndAdmit(context.Background(), 1, time.Now().UTC())

	var uerr *UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, models.PerHour, uerr.Interval)
}

// There is no reservation step between admission and send: two concurrent
// checks each read the window before either send lands, and both admit.
// That transient over-admission is the documented behavior, not a bug.
func TestConcurrentChecksMayJointlyOverAdmit(t *testing.T) {
	// 5 counted, quota 10: each check projects (5+4)/10 = 0.90 and admits,
	// yet together the two sends would put 13 in the window.
	counter := &fakeCounter{minuteCount: 5, hourCount: 5}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 1000)

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			decision, err := g.CheckAndAdmit(context.Background(), 4, time.Now().UTC())
			results <- err == nil && decision.Admitted
		}()
	}

	assert.True(t, <-results)
	assert.True(t, <-results)
}

func TestZeroIntendedStillChecksWindows(t *testing.T) {
	counter := &fakeCounter{minuteCount: 1, hourCount: 1}
	g := newGovernor(t, counter, &fakeAlerter{}, 10, 100)

	decision, err := g.CheckAndAdmit(context.Background(), 0, time.Now().UTC())

	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, 2, counter.calls)
}

// Package governor performs admission control over the provider's sliding
// per-minute and per-hour quota windows.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailgate/internal/metrics"
	"mailgate/internal/models"
)

// SendCounter is the slice of the repository the governor reads: how many
// emails were recorded in the trailing window starting at since.
type SendCounter interface {
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// Alerter is notified when projected usage of one interval crosses the
// warning threshold. Implementations must be best-effort and must never
// re-enter admission control.
type Alerter interface {
	AlertIfAboveThreshold(interval models.LimitInterval, threshold, usage float64)
}

// ErrNegativeCount is a programming-contract violation: callers never ask
// to admit a negative number of sends.
var ErrNegativeCount = errors.New("governor: intended send count is negative")

// QuotaExceededError rejects admission. It carries the projected usage of
// every interval for diagnostics.
type QuotaExceededError struct {
	Usages map[models.LimitInterval]float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: per-minute %.2f, per-hour %.2f",
		e.Usages[models.PerMinute], e.Usages[models.PerHour])
}

// UnavailableError means usage could not be computed at all. The governor
// fails closed: sending is never attempted on an unverified window.
type UnavailableError struct {
	Interval models.LimitInterval
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cannot verify %s usage: %v", e.Interval, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool
	Usages   map[models.LimitInterval]float64
}

type Governor struct {
	counter   SendCounter
	alerter   Alerter
	quotas    map[models.LimitInterval]int
	threshold float64
	log       *zap.Logger
}

// New rejects non-positive quotas at construction: a zero quota would make
// every usage ratio +Inf and silently reject all sends.
func New(counter SendCounter, alerter Alerter, perMinute, perHour int, threshold float64, log *zap.Logger) (*Governor, error) {
	if perMinute < 1 || perHour < 1 {
		return nil, fmt.Errorf("governor: quotas must be positive, got per-minute %d, per-hour %d", perMinute, perHour)
	}
	return &Governor{
		counter: counter,
		alerter: alerter,
		quotas: map[models.LimitInterval]int{
			models.PerMinute: perMinute,
			models.PerHour:   perHour,
		},
		threshold: threshold,
		log:       log,
	}, nil
}

// CheckAndAdmit projects the usage that sending intended more emails would
// produce in each sliding window and decides admit or reject.
//
// Usage is an unclamped ratio and may exceed 1.0. Each interval at or above
// the warning threshold triggers exactly one alerter call, whether or not
// the check admits. A repository failure on either window fails closed.
func (g *Governor) CheckAndAdmit(ctx context.Context, intended int, now time.Time) (Decision, error) {
	if intended < 0 {
		return Decision{}, ErrNegativeCount
	}

	usages := make(map[models.LimitInterval]float64, len(g.quotas))
	for _, interval := range models.Intervals() {
		count, err := g.counter.CountCreatedSince(ctx, now.Add(-interval.Window()))
		if err != nil {
			return Decision{}, &UnavailableError{Interval: interval, Err: err}
		}

		usage := float64(count+intended) / float64(g.quotas[interval])
		usages[interval] = usage
		metrics.QuotaUsage.WithLabelValues(interval.String()).Set(usage)

		if usage >= g.threshold {
			g.alerter.AlertIfAboveThreshold(interval, g.threshold, usage)
		}
	}

	if usages[models.PerMinute] >= 1.0 || usages[models.PerHour] >= 1.0 {
		g.log.Warn("send rejected by quota",
			zap.Int("intended", intended),
			zap.String("per_minute_usage", fmt.Sprintf("%.2f", usages[models.PerMinute])),
			zap.String("per_hour_usage", fmt.Sprintf("%.2f", usages[models.PerHour])),
		)
		metrics.QuotaRejections.Inc()
		return Decision{Admitted: false, Usages: usages}, &QuotaExceededError{Usages: usages}
	}

	g.log.Info("send admitted",
		zap.Int("intended", intended),
		zap.String("per_minute_usage", fmt.Sprintf("%.2f", usages[models.PerMinute])),
		zap.String("per_hour_usage", fmt.Sprintf("%.2f", usages[models.PerHour])),
	)

	return Decision{Admitted: true, Usages: usages}, nil
}

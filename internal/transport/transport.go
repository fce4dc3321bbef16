// Package transport is the boundary to the external email provider.
// It owns the transient/permanent classification of send failures; the
// provider itself never classifies.
package transport

import (
	"context"
	"errors"
	"net"

	"mailgate/internal/models"
)

// Transport sends one message to the recipients currently on the email.
// useBcc hides recipients from one another (newsletter dispatch).
//
// Implementations wrap retry-worthy failures with Transient; everything
// else is treated as permanent.
type Transport interface {
	Send(ctx context.Context, email *models.Email, useBcc bool) error
}

// TransientError marks a failure worth retrying: provider throttling,
// 4xx SMTP replies, network timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient transport error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix: malformed
// request, authentication, rejected sender.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent transport error: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retry-worthy.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as not retry-worthy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err should be retried. Unclassified network
// timeouts count as transient; anything else unclassified is permanent.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxEmailSize is the provider's cap on the serialized message:
// both bodies plus all attachment payloads.
const MaxEmailSize = int64(7.5 * 1024 * 1024)

const (
	MinSubjectLen = 1
	MaxSubjectLen = 80
)

// Recipient is a single destination address. Token is the opaque identity
// used by unsubscribe/confirmation flows; dispatch only carries it along.
// A Recipient with a non-zero ID is a persisted record and must not be
// duplicated by downstream writes.
type Recipient struct {
	ID      int64  `json:"id,omitempty"`
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
}

// NewRecipient builds a transient (unpersisted) recipient with a fresh token.
func NewRecipient(address string) Recipient {
	return Recipient{
		Address: address,
		Token:   uuid.NewString(),
	}
}

type Attachment struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Email is one outbound message. Recipients is ordered; batching preserves
// that order.
type Email struct {
	Sender       string       `json:"sender" validate:"required,email"`
	Subject      string       `json:"subject" validate:"required,min=1,max=80"`
	HTMLBody     string       `json:"html_body"`
	TextBody     string       `json:"text_body"`
	Recipients   []Recipient  `json:"recipients"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	IsNewsletter bool         `json:"is_newsletter"`

	CreatedAt time.Time `json:"created_at"`
}

// Size reports the serialized payload size: both bodies plus attachments.
func (e *Email) Size() int64 {
	n := int64(len(e.HTMLBody)) + int64(len(e.TextBody))
	for _, a := range e.Attachments {
		n += int64(len(a.Content))
	}
	return n
}

// SendState is the dispatch state machine. Running is never returned to
// callers; it covers validation, admission and dispatch while in flight.
type SendState string

const (
	StateNotStarted      SendState = "not_started"
	StateRunning         SendState = "running"
	StateSucceeded       SendState = "succeeded"
	StateFailed          SendState = "failed"
	StatePartiallyFailed SendState = "partially_failed"
	StateCanceled        SendState = "canceled"

	// StateUnknown is a defensive fallback for transport outcomes this
	// subsystem does not model. It is logged as a modeling gap, never
	// coerced to success or failure.
	StateUnknown SendState = "unknown"
)

// LimitInterval is one of the provider's sliding quota windows.
type LimitInterval string

const (
	PerMinute LimitInterval = "per_minute"
	PerHour   LimitInterval = "per_hour"
)

// Intervals lists every governed window, in checking order.
func Intervals() []LimitInterval {
	return []LimitInterval{PerMinute, PerHour}
}

// Window is the trailing length of the interval's sliding window.
func (i LimitInterval) Window() time.Duration {
	switch i {
	case PerMinute:
		return time.Minute
	case PerHour:
		return time.Hour
	default:
		return 0
	}
}

func (i LimitInterval) String() string { return string(i) }

// SendingStatus is the aggregate outcome of one dispatch.
//
// InvalidRecipients are addresses rejected by structural validation before
// any network call: not retry-worthy. FailedRecipients belonged to batches
// that exhausted transport retries: retry-worthy. The two sets are never
// merged because their failure modes differ.
type SendingStatus struct {
	Email             *Email      `json:"email"`
	State             SendState   `json:"state"`
	InvalidRecipients []Recipient `json:"invalid_recipients,omitempty"`
	FailedRecipients  []Recipient `json:"failed_recipients,omitempty"`
	BatchesTotal      int         `json:"batches_total"`
	BatchesFailed     int         `json:"batches_failed"`
}

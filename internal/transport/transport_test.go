package transport

import (
	"errors"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsTransient(Permanent(base)))
	assert.False(t, IsTransient(base), "unclassified errors default to permanent")
	assert.False(t, IsTransient(nil))
}

func TestClassifySMTP(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"service unavailable", &textproto.Error{Code: 421, Msg: "service not available"}, true},
		{"mailbox busy", &textproto.Error{Code: 450, Msg: "mailbox busy"}, true},
		{"local error", &textproto.Error{Code: 451, Msg: "local error in processing"}, true},
		{"insufficient storage", &textproto.Error{Code: 452, Msg: "insufficient storage"}, true},
		{"mailbox unavailable", &textproto.Error{Code: 550, Msg: "mailbox unavailable"}, false},
		{"user unknown", &textproto.Error{Code: 553, Msg: "user unknown"}, false},
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"anything else", errors.New("tls handshake failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifySMTP(tt.err)
			assert.Equal(t, tt.transient, IsTransient(classified))
		})
	}
}

func TestClassifyResend(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", errors.New("rate_limit_exceeded: too many requests"), true},
		{"server error", errors.New("internal_server_error"), true},
		{"validation", errors.New("validation_error: from address is invalid"), false},
		{"auth", errors.New("missing_api_key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyResend(tt.err)
			assert.Equal(t, tt.transient, IsTransient(classified))
		})
	}
}

func TestClassificationWrapsCause(t *testing.T) {
	cause := &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	classified := classifySMTP(cause)

	var tpErr *textproto.Error
	assert.True(t, errors.As(classified, &tpErr))
	assert.Equal(t, 550, tpErr.Code)
}

// Package providers adapts outbound provider APIs (Twilio, WhatsApp Cloud,
// Resend, Graph) behind circuit breakers.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrCircuitOpen      = errors.New("provider unavailable: circuit breaker is open")
	ErrInvalidRecipient = errors.New("invalid recipient phone number")
	ErrInvalidMessage   = errors.New("invalid message length")
	ErrUnsupported      = errors.New("channel not supported by provider")
)

// SendError marks provider failures with retry classification.
type SendError struct {
	err       error
	permanent bool
}

func (e *SendError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// NewPermanentError wraps a failure that will not succeed on retry.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{err: err, permanent: true}
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		return false
	}
	return sendErr.permanent
}

// statusError classifies a non-2xx provider response. Client errors are
// permanent except timeouts and throttling.
func statusError(provider string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := fmt.Errorf("%s send failed: status %d: %s", provider, status, msg)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return NewPermanentError(err)
	}
	return err
}

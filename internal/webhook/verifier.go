// Package webhook authenticates inbound provider callbacks.
package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrMissingSignature = errors.New("signature header is required")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedBody    = errors.New("malformed webhook body")
	ErrBodyTooLarge     = errors.New("webhook body too large")
)

// Request is the part of an inbound call a signature covers.
type Request struct {
	// URL is the full externally visible URL the provider called.
	URL    string
	Header http.Header
	// Body is the exact raw body, before any parsing.
	Body []byte
}

// Verifier validates incoming webhook authenticity for a provider.
type Verifier interface {
	Provider() string
	Verify(req Request) error
}

// VerifySignature reports whether req is authentic. Any error or panic
// raised during verification counts as a failure; reason describes it.
func VerifySignature(v Verifier, req Request) (ok bool, reason string) {
	defer func() {
		if p := recover(); p != nil {
			ok, reason = false, fmt.Sprintf("verification panic: %v", p)
		}
	}()

	if err := v.Verify(req); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// constantTimeEqual rejects unequal lengths up front, then compares every
// byte without short-circuiting.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ReadBody reads at most limit bytes of the request body.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// RequestURL rebuilds the URL the provider signed. A configured public base
// URL wins over forwarded headers.
func RequestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

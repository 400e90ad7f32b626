// Package auth issues and validates the service tokens that guard the
// internal notification endpoint.
package auth

import "errors"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrForbidden    = errors.New("forbidden")
)

// Scopes carried by service tokens.
const (
	// ScopeNotificationsDispatch allows calling POST /internal/notifications.
	ScopeNotificationsDispatch = "notifications:dispatch"
	// ScopeAuditRead allows calling GET /internal/audit/events.
	ScopeAuditRead = "audit:read"
)

// Identity represents an authenticated internal caller.
type Identity struct {
	Subject   string   `json:"sub"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"`
}

// HasScope reports whether the identity carries scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

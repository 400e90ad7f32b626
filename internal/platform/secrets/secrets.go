// Package secrets exposes provider credentials read from the process
// environment. Lookups never fail hard: missing values come back empty or as
// a nil credential set, and callers decide whether that is fatal.
package secrets

import (
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	EnvTwilioAccountSID       = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken        = "TWILIO_AUTH_TOKEN"
	EnvTwilioPhoneNumber      = "TWILIO_PHONE_NUMBER"
	EnvTwilioWhatsAppNumber   = "TWILIO_WHATSAPP_NUMBER"
	EnvFacebookAppSecret      = "FACEBOOK_APP_SECRET"
	EnvWhatsAppVerifyToken    = "WHATSAPP_VERIFY_TOKEN"
	EnvLeadsVerifyToken       = "FACEBOOK_LEADS_VERIFY_TOKEN"
	EnvWhatsAppAccessToken    = "WHATSAPP_ACCESS_TOKEN"
	EnvWhatsAppPhoneNumberID  = "WHATSAPP_PHONE_NUMBER_ID"
	EnvWhatsAppFlowPrivateKey = "WHATSAPP_FLOW_PRIVATE_KEY"
	EnvResendAPIKey           = "RESEND_API_KEY"
)

const (
	defaultTwilioPhoneNumber    = "+12294082463"
	defaultTwilioWhatsAppNumber = "whatsapp:+14155238886"
)

// TwilioCredentials authenticate against the Twilio REST API and its webhooks.
type TwilioCredentials struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	WhatsAppNumber string
}

// MetaCredentials cover the WhatsApp Cloud API and Graph webhooks.
type MetaCredentials struct {
	AppSecret     string
	VerifyToken   string
	AccessToken   string
	PhoneNumberID string
}

// Accessor reads secrets from a snapshot of the environment.
type Accessor struct {
	k *koanf.Koanf
}

// FromEnv snapshots the current process environment.
func FromEnv() *Accessor {
	k := koanf.New("\x00")
	// Keys are kept verbatim; the NUL delimiter prevents nesting on "_".
	_ = k.Load(env.Provider("", "\x00", func(s string) string { return s }), nil)
	return &Accessor{k: k}
}

// FromMap builds an accessor over a fixed set of values.
func FromMap(values map[string]string) *Accessor {
	k := koanf.New("\x00")
	for key, value := range values {
		_ = k.Set(key, value)
	}
	return &Accessor{k: k}
}

// Get returns the trimmed value for name, or "" when unset.
func (a *Accessor) Get(name string) string {
	if a == nil || a.k == nil {
		return strings.TrimSpace(os.Getenv(name))
	}
	return strings.TrimSpace(a.k.String(name))
}

func (a *Accessor) getOr(name, fallback string) string {
	if v := a.Get(name); v != "" {
		return v
	}
	return fallback
}

// Twilio returns Twilio credentials. With requireAll set, a missing account
// SID or auth token yields nil.
func (a *Accessor) Twilio(requireAll bool) *TwilioCredentials {
	creds := &TwilioCredentials{
		AccountSID:     a.Get(EnvTwilioAccountSID),
		AuthToken:      a.Get(EnvTwilioAuthToken),
		PhoneNumber:    a.getOr(EnvTwilioPhoneNumber, defaultTwilioPhoneNumber),
		WhatsAppNumber: a.getOr(EnvTwilioWhatsAppNumber, defaultTwilioWhatsAppNumber),
	}
	if requireAll && (creds.AccountSID == "" || creds.AuthToken == "") {
		slog.Error("missing required twilio credentials")
		return nil
	}
	return creds
}

// Meta returns Meta credentials, or nil when the app secret is not configured.
func (a *Accessor) Meta() *MetaCredentials {
	appSecret := a.Get(EnvFacebookAppSecret)
	if appSecret == "" {
		slog.Warn("facebook app secret not configured")
		return nil
	}
	return &MetaCredentials{
		AppSecret:     appSecret,
		VerifyToken:   a.Get(EnvWhatsAppVerifyToken),
		AccessToken:   a.Get(EnvWhatsAppAccessToken),
		PhoneNumberID: a.Get(EnvWhatsAppPhoneNumberID),
	}
}

// WhatsAppVerifyToken is the hub handshake token for WhatsApp endpoints.
func (a *Accessor) WhatsAppVerifyToken() string {
	return a.Get(EnvWhatsAppVerifyToken)
}

// LeadsVerifyToken prefers the dedicated lead-ads token and falls back to the
// WhatsApp one.
func (a *Accessor) LeadsVerifyToken() string {
	return a.getOr(EnvLeadsVerifyToken, a.Get(EnvWhatsAppVerifyToken))
}

// FlowPrivateKey returns the PEM-encoded RSA key for flow decryption.
// Escaped newlines are expanded since env files often carry the key on one line.
func (a *Accessor) FlowPrivateKey() string {
	return strings.ReplaceAll(a.Get(EnvWhatsAppFlowPrivateKey), `\n`, "\n")
}

// ResendAPIKey returns the transactional email key or "".
func (a *Accessor) ResendAPIKey() string {
	return a.Get(EnvResendAPIKey)
}

// Validate reports which of the required names are unset.
func (a *Accessor) Validate(required ...string) (bool, []string) {
	missing := make([]string, 0)
	for _, name := range required {
		if a.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}

// Mask renders a secret safe for logs: first and last four characters,
// or "****" for anything shorter than 12 characters.
func Mask(value string) string {
	if len(value) < 12 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/config"
	"github.com/uberfix/fixhooks/internal/platform/secrets"
	"github.com/uberfix/fixhooks/internal/providers"
)

func TestParseChannels(t *testing.T) {
	got := parseChannels([]string{"in_app", "pigeon", "sms"})
	assert.Equal(t, []notify.Channel{notify.ChannelInApp, notify.ChannelSMS}, got)
	assert.Empty(t, parseChannels(nil))
}

func TestCheckSecrets(t *testing.T) {
	sec := secrets.FromMap(map[string]string{
		secrets.EnvTwilioAccountSID: "AC0123456789abcdef",
		secrets.EnvTwilioAuthToken:  "twilio-token-value",
		secrets.EnvResendAPIKey:     "re_0123456789",
	})

	missing := checkSecrets(sec)

	assert.ElementsMatch(t, []string{
		secrets.EnvFacebookAppSecret,
		secrets.EnvWhatsAppVerifyToken,
		secrets.EnvWhatsAppAccessToken,
		secrets.EnvWhatsAppPhoneNumberID,
		secrets.EnvWhatsAppFlowPrivateKey,
	}, missing)
	assert.Empty(t, checkSecrets(secrets.FromMap(map[string]string{
		secrets.EnvTwilioAccountSID:       "a",
		secrets.EnvTwilioAuthToken:        "b",
		secrets.EnvFacebookAppSecret:      "c",
		secrets.EnvWhatsAppVerifyToken:    "d",
		secrets.EnvWhatsAppAccessToken:    "e",
		secrets.EnvWhatsAppPhoneNumberID:  "f",
		secrets.EnvWhatsAppFlowPrivateKey: "g",
		secrets.EnvResendAPIKey:           "h",
	})))
}

func TestFlowCodec(t *testing.T) {
	assert.Nil(t, flowCodec(secrets.FromMap(nil)))
	assert.Nil(t, flowCodec(secrets.FromMap(map[string]string{
		secrets.EnvWhatsAppFlowPrivateKey: "not a pem",
	})))
}

func TestBuildProviders(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	t.Run("unconfigured providers stay nil", func(t *testing.T) {
		p := buildProviders(cfg, secrets.FromMap(nil), http.DefaultClient, nil)

		assert.Nil(t, p.mailer)
		assert.Nil(t, p.confirmer)
		assert.Nil(t, p.leadFetcher)
		assert.Nil(t, p.twilioVerifier)
		assert.Nil(t, p.metaVerifier)

		router, ok := p.texts.(providers.TextRouter)
		require.True(t, ok)
		assert.Nil(t, router.SMS)
		assert.Nil(t, router.WhatsApp)
	})

	t.Run("whatsapp prefers the cloud api", func(t *testing.T) {
		p := buildProviders(cfg, secrets.FromMap(map[string]string{
			secrets.EnvTwilioAccountSID:      "AC123",
			secrets.EnvTwilioAuthToken:       "twilio-token",
			secrets.EnvFacebookAppSecret:     "app-secret",
			secrets.EnvWhatsAppAccessToken:   "wa-token",
			secrets.EnvWhatsAppPhoneNumberID: "1234567890",
			secrets.EnvResendAPIKey:          "re_test",
		}), http.DefaultClient, nil)

		assert.NotNil(t, p.mailer)
		assert.NotNil(t, p.confirmer)
		assert.NotNil(t, p.leadFetcher)
		assert.NotNil(t, p.twilioVerifier)
		assert.NotNil(t, p.metaVerifier)

		router := p.texts.(providers.TextRouter)
		assert.IsType(t, &providers.TwilioSender{}, router.SMS)
		assert.IsType(t, &providers.WhatsAppCloudSender{}, router.WhatsApp)
	})

	t.Run("whatsapp falls back to twilio", func(t *testing.T) {
		p := buildProviders(cfg, secrets.FromMap(map[string]string{
			secrets.EnvTwilioAccountSID: "AC123",
			secrets.EnvTwilioAuthToken:  "twilio-token",
		}), http.DefaultClient, nil)

		router := p.texts.(providers.TextRouter)
		assert.IsType(t, &providers.TwilioSender{}, router.WhatsApp)
		assert.Nil(t, p.confirmer)
	})
}

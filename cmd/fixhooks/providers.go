package main

import (
	"log/slog"
	"net/http"

	"github.com/uberfix/fixhooks/internal/flow"
	"github.com/uberfix/fixhooks/internal/leads"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/config"
	"github.com/uberfix/fixhooks/internal/platform/secrets"
	"github.com/uberfix/fixhooks/internal/providers"
	"github.com/uberfix/fixhooks/internal/webhook"
)

// providerSet holds the outbound adapters and webhook verifiers built from
// configuration. Unconfigured members are nil interfaces.
type providerSet struct {
	texts          notify.TextSender
	mailer         notify.Mailer
	confirmer      flow.Confirmer
	leadFetcher    leads.Fetcher
	twilioVerifier webhook.Verifier
	metaVerifier   webhook.Verifier
}

func buildProviders(cfg *config.Config, sec *secrets.Accessor, client *http.Client, logger *slog.Logger) providerSet {
	var p providerSet
	router := providers.TextRouter{}

	twilio := sec.Twilio(false)
	if twilio.AuthToken != "" {
		p.twilioVerifier = webhook.NewTwilioVerifier(twilio.AuthToken)
	}
	if twilio.AccountSID != "" && twilio.AuthToken != "" {
		sender := providers.NewTwilioSender(*twilio, cfg.Providers.Twilio.APIBaseURL,
			providers.NewBreaker("twilio", cfg.Providers.Breaker, logger), client)
		router.SMS = sender
		router.WhatsApp = sender
	} else {
		slog.Warn("twilio credentials not configured, sms disabled")
	}

	if meta := sec.Meta(); meta != nil {
		p.metaVerifier = webhook.NewMetaVerifier(meta.AppSecret)
	}

	// WhatsApp prefers the Cloud API and falls back to Twilio.
	accessToken := sec.Get(secrets.EnvWhatsAppAccessToken)
	phoneNumberID := sec.Get(secrets.EnvWhatsAppPhoneNumberID)
	if accessToken != "" && phoneNumberID != "" {
		cloud := providers.NewWhatsAppCloudSender(
			cfg.Providers.WhatsApp.APIBaseURL, cfg.Providers.WhatsApp.APIVersion,
			accessToken, phoneNumberID,
			providers.NewBreaker("whatsapp", cfg.Providers.Breaker, logger), client)
		router.WhatsApp = cloud
		p.confirmer = cloud
	}
	if accessToken != "" {
		p.leadFetcher = providers.NewGraphClient(
			cfg.Providers.WhatsApp.APIBaseURL, cfg.Providers.Graph.APIVersion, accessToken,
			providers.NewBreaker("graph", cfg.Providers.Breaker, logger), client)
	}
	p.texts = router

	if key := sec.ResendAPIKey(); key != "" {
		mailer, err := providers.NewResendMailer(key, cfg.Providers.Resend.From, cfg.Providers.Resend.APIBaseURL,
			providers.NewBreaker("resend", cfg.Providers.Breaker, logger), client)
		if err != nil {
			slog.Error("resend mailer disabled", "error", err)
		} else {
			p.mailer = mailer
		}
	} else {
		slog.Warn("resend api key not configured, email disabled")
	}

	return p
}

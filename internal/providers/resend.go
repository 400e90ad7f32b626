package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/uberfix/fixhooks/internal/notify"
)

const defaultEmailFrom = "UberFix <hello@tx.uberfix.shop>"

// ResendMailer sends transactional email through Resend.
type ResendMailer struct {
	client  *resend.Client
	from    string
	breaker *Breaker
}

// NewResendMailer creates a mailer. baseURL overrides the API endpoint and
// may be empty.
func NewResendMailer(apiKey, from, baseURL string, breaker *Breaker, httpClient *http.Client) (*ResendMailer, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	client := resend.NewCustomClient(httpClient, apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing resend base url: %w", err)
		}
		client.BaseURL = u
	}
	if strings.TrimSpace(from) == "" {
		from = defaultEmailFrom
	}
	return &ResendMailer{client: client, from: from, breaker: breaker}, nil
}

// SendEmail implements notify.Mailer.
func (m *ResendMailer) SendEmail(ctx context.Context, e notify.Email) (string, error) {
	var id string
	err := m.breaker.Execute(ctx, func() error {
		sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
			From:    m.from,
			To:      []string{e.To},
			Subject: e.Subject,
			Html:    e.HTML,
		})
		if err != nil {
			return fmt.Errorf("sending email: %w", err)
		}
		id = sent.Id
		return nil
	})
	return id, err
}

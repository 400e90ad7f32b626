package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/secrets"
)

const (
	defaultTwilioAPIBaseURL = "https://api.twilio.com"
	defaultHTTPTimeout      = 10 * time.Second
	twilioMaxBody           = 1600
)

// TwilioSender sends SMS and WhatsApp messages through the Twilio
// Messages API.
type TwilioSender struct {
	client     *http.Client
	apiBaseURL string
	creds      secrets.TwilioCredentials
	breaker    *Breaker
}

// NewTwilioSender creates a sender. A nil client uses a 10 second timeout.
func NewTwilioSender(creds secrets.TwilioCredentials, apiBaseURL string, breaker *Breaker, client *http.Client) *TwilioSender {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	apiBaseURL = strings.TrimSpace(apiBaseURL)
	if apiBaseURL == "" {
		apiBaseURL = defaultTwilioAPIBaseURL
	}
	return &TwilioSender{
		client:     client,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		creds:      creds,
		breaker:    breaker,
	}
}

// SendText implements notify.TextSender.
func (s *TwilioSender) SendText(ctx context.Context, ch notify.Channel, msg notify.TextMessage) (notify.Delivery, error) {
	to := FormatE164(strings.TrimPrefix(msg.To, "whatsapp:"))
	delivery := notify.Delivery{Provider: "twilio", To: to}
	if !ValidE164(to) {
		return delivery, NewPermanentError(fmt.Errorf("%w: %s", ErrInvalidRecipient, to))
	}
	if !validLength(msg.Body, twilioMaxBody) {
		return delivery, NewPermanentError(fmt.Errorf("%w: must be 1-%d characters", ErrInvalidMessage, twilioMaxBody))
	}

	from := s.creds.PhoneNumber
	switch ch {
	case notify.ChannelSMS:
	case notify.ChannelWhatsApp:
		to = "whatsapp:" + to
		from = s.creds.WhatsAppNumber
		if !strings.HasPrefix(from, "whatsapp:") {
			from = "whatsapp:" + from
		}
	default:
		return delivery, NewPermanentError(fmt.Errorf("twilio: %w: %s", ErrUnsupported, ch))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", msg.Body)

	err := s.breaker.Execute(ctx, func() error {
		sid, err := s.post(ctx, form)
		delivery.MessageID = sid
		return err
	})
	return delivery, err
}

func (s *TwilioSender) post(ctx context.Context, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.apiBaseURL, url.PathEscape(s.creds.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building twilio request: %w", err)
	}
	req.SetBasicAuth(s.creds.AccountSID, s.creds.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending twilio request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("twilio", resp.StatusCode, respBody)
	}

	var out struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decoding twilio response: %w", err)
	}
	return out.SID, nil
}

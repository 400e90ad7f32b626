package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/uberfix/fixhooks/internal/notify"
)

const (
	defaultWhatsAppAPIBaseURL = "https://graph.facebook.com"
	defaultWhatsAppAPIVersion = "v18.0"
	whatsAppMaxBody           = 4096
)

// WhatsAppCloudSender sends WhatsApp text messages through the Cloud API.
type WhatsAppCloudSender struct {
	client        *http.Client
	apiBaseURL    string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	breaker       *Breaker
}

// NewWhatsAppCloudSender creates a sender. A nil client uses a 10 second timeout.
func NewWhatsAppCloudSender(apiBaseURL, apiVersion, accessToken, phoneNumberID string, breaker *Breaker, client *http.Client) *WhatsAppCloudSender {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	apiBaseURL = strings.TrimSpace(apiBaseURL)
	if apiBaseURL == "" {
		apiBaseURL = defaultWhatsAppAPIBaseURL
	}
	apiVersion = strings.Trim(strings.TrimSpace(apiVersion), "/")
	if apiVersion == "" {
		apiVersion = defaultWhatsAppAPIVersion
	}
	return &WhatsAppCloudSender{
		client:        client,
		apiBaseURL:    strings.TrimRight(apiBaseURL, "/"),
		apiVersion:    apiVersion,
		accessToken:   strings.TrimSpace(accessToken),
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		breaker:       breaker,
	}
}

// SendText implements notify.TextSender for the WhatsApp channel only.
func (s *WhatsAppCloudSender) SendText(ctx context.Context, ch notify.Channel, msg notify.TextMessage) (notify.Delivery, error) {
	if ch != notify.ChannelWhatsApp {
		return notify.Delivery{Provider: "meta"}, NewPermanentError(fmt.Errorf("meta: %w: %s", ErrUnsupported, ch))
	}
	to := FormatWhatsAppID(msg.To)
	id, err := s.SendWhatsApp(ctx, to, msg.Body)
	return notify.Delivery{Provider: "meta", MessageID: id, To: to}, err
}

// SendWhatsApp delivers a text message and returns the provider message id.
func (s *WhatsAppCloudSender) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	to = FormatWhatsAppID(to)
	if !validWhatsAppID(to) {
		return "", NewPermanentError(fmt.Errorf("%w: %s", ErrInvalidRecipient, to))
	}
	if !validLength(body, whatsAppMaxBody) {
		return "", NewPermanentError(fmt.Errorf("%w: must be 1-%d characters", ErrInvalidMessage, whatsAppMaxBody))
	}

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"body": body,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling whatsapp message body: %w", err)
	}

	var messageID string
	err = s.breaker.Execute(ctx, func() error {
		id, err := s.post(ctx, payload)
		messageID = id
		return err
	})
	return messageID, err
}

func (s *WhatsAppCloudSender) post(ctx context.Context, payload []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.apiBaseURL, s.apiVersion, url.PathEscape(s.phoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("whatsapp", resp.StatusCode, respBody)
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decoding whatsapp response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

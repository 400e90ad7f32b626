// Package inbound receives SMS and WhatsApp messages pushed by Twilio.
package inbound

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/uberfix/fixhooks/internal/maintenance"
)

var ErrMissingField = errors.New("required message field missing")

// Channel kinds.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Address prefixes that select the WhatsApp channel.
var whatsAppPrefixes = []string{"whatsapp:", "wa:"}

// SplitAddress strips a channel prefix from addr and reports the channel
// it denotes. Unprefixed addresses are SMS.
func SplitAddress(addr string) (channel, bare string) {
	addr = strings.TrimSpace(addr)
	lower := strings.ToLower(addr)
	for _, p := range whatsAppPrefixes {
		if strings.HasPrefix(lower, p) {
			return ChannelWhatsApp, strings.TrimSpace(addr[len(p):])
		}
	}
	return ChannelSMS, addr
}

// ParseMessage normalizes a Twilio form payload.
func ParseMessage(form url.Values) (*maintenance.InboundMessage, error) {
	sid := strings.TrimSpace(form.Get("MessageSid"))
	if sid == "" {
		sid = strings.TrimSpace(form.Get("SmsMessageSid"))
	}
	if sid == "" {
		return nil, fmt.Errorf("%w: MessageSid", ErrMissingField)
	}
	if strings.TrimSpace(form.Get("From")) == "" {
		return nil, fmt.Errorf("%w: From", ErrMissingField)
	}

	channel, from := SplitAddress(form.Get("From"))
	_, to := SplitAddress(form.Get("To"))

	numMedia, _ := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	if numMedia < 0 {
		numMedia = 0
	}

	return &maintenance.InboundMessage{
		Provider:         "twilio",
		ExternalID:       sid,
		From:             from,
		To:               to,
		Body:             form.Get("Body"),
		Channel:          channel,
		NumMedia:         numMedia,
		MediaURL:         form.Get("MediaUrl0"),
		MediaContentType: form.Get("MediaContentType0"),
		ProfileName:      strings.TrimSpace(form.Get("ProfileName")),
		WaID:             strings.TrimSpace(form.Get("WaId")),
	}, nil
}

// staffAlert renders the internal notification for an inbound message.
func staffAlert(m *maintenance.InboundMessage) (title, message string) {
	kind := "SMS"
	if m.Channel == ChannelWhatsApp {
		kind = "واتساب"
	}
	sender := m.ProfileName
	if sender == "" {
		sender = m.From
	}
	body := m.Body
	if strings.TrimSpace(body) == "" {
		body = "[رسالة وسائط]"
	}
	return "رسالة " + kind + " واردة", "من: " + sender + "\nالرسالة: " + body
}

package providers

import (
	"context"
	"fmt"

	"github.com/uberfix/fixhooks/internal/notify"
)

// TextRouter picks the sender for each channel.
type TextRouter struct {
	SMS      notify.TextSender
	WhatsApp notify.TextSender
}

// SendText implements notify.TextSender.
func (r TextRouter) SendText(ctx context.Context, ch notify.Channel, msg notify.TextMessage) (notify.Delivery, error) {
	var sender notify.TextSender
	switch ch {
	case notify.ChannelSMS:
		sender = r.SMS
	case notify.ChannelWhatsApp:
		sender = r.WhatsApp
	}
	if sender == nil {
		return notify.Delivery{}, fmt.Errorf("%w: %s", notify.ErrChannelDisabled, ch)
	}
	return sender.SendText(ctx, ch, msg)
}

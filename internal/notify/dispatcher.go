// Package notify delivers alerts to their owner over e-mail, SMS, WhatsApp and push.
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

// Channels lists every channel in dispatch order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush}

// Notifier sends one alert to one recipient over a single channel.
type Notifier interface {
	Send(ctx context.Context, to *models.Recipient, alert *models.Alert) error
}

// RecipientDirectory looks up a user's contact points and preferences.
type RecipientDirectory interface {
	GetRecipient(ctx context.Context, userID string) (*models.Recipient, error)
}

type ChannelResult struct {
	Attempted bool
	Succeeded bool
	Err       error
}

// Results holds one entry per channel that was considered.
type Results map[Channel]ChannelResult

// Succeeded reports whether ch was attempted and delivered.
func (r Results) Succeeded(ch Channel) bool {
	return r[ch].Succeeded
}

// Dispatcher fans one alert out to every eligible channel.
type Dispatcher struct {
	directory RecipientDirectory
	notifiers map[Channel]Notifier
	logger    *zap.Logger
}

func NewDispatcher(directory RecipientDirectory, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		notifiers: make(map[Channel]Notifier),
		logger:    logger,
	}
}

// Register installs the adapter for ch. Unregistered channels are never attempted.
func (d *Dispatcher) Register(ch Channel, n Notifier) {
	d.notifiers[ch] = n
}

// Registered lists the channels that have an adapter, in Channels order.
func (d *Dispatcher) Registered() []Channel {
	var out []Channel
	for _, ch := range Channels {
		if _, ok := d.notifiers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Dispatch delivers alert to its owner. Channels run concurrently and
// independently; each is tried at most once. Failures are reported in the
// result and logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) Results {
	results := make(Results, len(Channels))

	recipient, err := d.directory.GetRecipient(ctx, alert.UserID)
	if err != nil {
		d.logger.Warn("Recipient not found for notification",
			zap.String("user_id", alert.UserID),
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range Channels {
		n, ok := d.notifiers[ch]
		if !ok || !eligible(ch, recipient, alert) {
			results[ch] = ChannelResult{}
			continue
		}
		wg.Add(1)
		go func(ch Channel, n Notifier) {
			defer wg.Done()
			res := ChannelResult{Attempted: true}
			if err := n.Send(ctx, recipient, alert); err != nil {
				res.Err = fmt.Errorf("%s: %w: %w", ch, models.ErrChannelDelivery, err)
				d.logger.Warn("Notification channel failed",
					zap.String("channel", string(ch)),
					zap.String("user_id", recipient.UserID),
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			} else {
				res.Succeeded = true
			}
			mu.Lock()
			results[ch] = res
			mu.Unlock()
		}(ch, n)
	}
	wg.Wait()

	d.logger.Info("Notifications dispatched",
		zap.String("user_id", recipient.UserID),
		zap.String("alert_id", alert.ID),
		zap.Bool("email", results.Succeeded(ChannelEmail)),
		zap.Bool("sms", results.Succeeded(ChannelSMS)),
		zap.Bool("whatsapp", results.Succeeded(ChannelWhatsApp)),
		zap.Bool("push", results.Succeeded(ChannelPush)),
	)
	return results
}

// eligible applies the recipient's preference and contact points. Critical
// alerts always go out by SMS when a phone number is known.
func eligible(ch Channel, r *models.Recipient, alert *models.Alert) bool {
	pref := r.EffectivePreference()
	switch ch {
	case ChannelEmail:
		return pref.Email && r.Email != ""
	case ChannelSMS:
		return (pref.SMS || alert.Severity == models.SeverityCritical) && r.Phone != ""
	case ChannelWhatsApp:
		return pref.WhatsApp && r.Phone != ""
	case ChannelPush:
		return pref.Push && r.TelegramChatID != 0
	}
	return false
}

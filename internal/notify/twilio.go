package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	BaseURL        string
	AccountSID     string
	AuthToken      string
	FromNumber     string
	WhatsAppNumber string
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwilioClient posts messages to the Twilio REST API.
type TwilioClient struct {
	httpClient *resty.Client
	cfg        TwilioConfig
	logger     *zap.Logger
}

func NewTwilioClient(cfg TwilioConfig, logger *zap.Logger) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioClient{httpClient: client, cfg: cfg, logger: logger}
}

func (c *TwilioClient) send(ctx context.Context, from, to, body string) error {
	var (
		result twilioMessage
		apiErr twilioError
	)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": from,
			"To":   to,
			"Body": body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.cfg.AccountSID))
	if err != nil {
		return fmt.Errorf("failed to call Twilio API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("twilio API error: %s (status: %d, code: %d)", apiErr.Message, resp.StatusCode(), apiErr.Code)
	}

	c.logger.Debug("Twilio message accepted",
		zap.String("sid", result.SID),
		zap.String("status", result.Status),
	)
	return nil
}

// SMS returns the SMS channel adapter.
func (c *TwilioClient) SMS() Notifier {
	return notifierFunc(func(ctx context.Context, to *models.Recipient, alert *models.Alert) error {
		return c.send(ctx, c.cfg.FromNumber, to.Phone, ShortText(alert))
	})
}

// WhatsApp returns the WhatsApp channel adapter.
func (c *TwilioClient) WhatsApp() Notifier {
	return notifierFunc(func(ctx context.Context, to *models.Recipient, alert *models.Alert) error {
		return c.send(ctx, whatsAppAddress(c.cfg.WhatsAppNumber), whatsAppAddress(to.Phone), ChatText(alert))
	})
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

type notifierFunc func(ctx context.Context, to *models.Recipient, alert *models.Alert) error

func (f notifierFunc) Send(ctx context.Context, to *models.Recipient, alert *models.Alert) error {
	return f(ctx, to, alert)
}

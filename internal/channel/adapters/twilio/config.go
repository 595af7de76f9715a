package twilio

import (
	"errors"
	"strings"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// accountConfig holds the Twilio credentials extracted from a channel
// configuration.
type accountConfig struct {
	AccountSID          string
	AuthToken           string
	From                string
	MessagingServiceSID string
	WebhookBaseURL      string
}

func parseConfig(raw map[string]any) (accountConfig, error) {
	cfg := accountConfig{
		AccountSID:          channel.ReadString(raw, "account_sid", "accountSid"),
		AuthToken:           channel.ReadString(raw, "auth_token", "authToken"),
		From:                normalizePhone(channel.ReadString(raw, "from", "from_number")),
		MessagingServiceSID: channel.ReadString(raw, "messaging_service_sid", "messagingServiceSid"),
		WebhookBaseURL:      strings.TrimRight(channel.ReadString(raw, "webhook_base_url"), "/"),
	}
	if cfg.AccountSID == "" {
		return accountConfig{}, errors.New("twilio account_sid is required")
	}
	if cfg.AuthToken == "" {
		return accountConfig{}, errors.New("twilio auth_token is required")
	}
	if cfg.From == "" {
		return accountConfig{}, errors.New("twilio from number is required")
	}
	return cfg, nil
}

// normalizePhone reduces a phone number to E.164 shape: digits and the
// leading plus.
func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package vapi

import (
	"errors"
	"strings"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

const defaultBaseURL = "https://api.vapi.ai"

// accountConfig holds the VAPI credentials extracted from a channel
// configuration.
type accountConfig struct {
	APIKey        string
	WebhookSecret string
	AssistantID   string
	PhoneNumberID string
	PhoneNumber   string
	BaseURL       string
}

func parseConfig(raw map[string]any) (accountConfig, error) {
	cfg := accountConfig{
		APIKey:        channel.ReadString(raw, "api_key", "apiKey"),
		WebhookSecret: channel.ReadString(raw, "webhook_secret", "webhookSecret"),
		AssistantID:   channel.ReadString(raw, "assistant_id", "assistantId"),
		PhoneNumberID: channel.ReadString(raw, "phone_number_id", "phoneNumberId"),
		PhoneNumber:   channel.ReadString(raw, "phone_number", "phoneNumber"),
		BaseURL:       strings.TrimRight(channel.ReadString(raw, "base_url"), "/"),
	}
	if cfg.APIKey == "" {
		return accountConfig{}, errors.New("vapi api_key is required")
	}
	if cfg.WebhookSecret == "" {
		return accountConfig{}, errors.New("vapi webhook_secret is required")
	}
	if cfg.AssistantID == "" {
		return accountConfig{}, errors.New("vapi assistant_id is required")
	}
	if cfg.PhoneNumberID == "" {
		return accountConfig{}, errors.New("vapi phone_number_id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return cfg, nil
}

// selfIdentity is the account's own number when known, else the phone
// number id. The pipeline only needs a stable value to match against
// inbound senders.
func (c accountConfig) selfIdentity() string {
	if c.PhoneNumber != "" {
		return c.PhoneNumber
	}
	return c.PhoneNumberID
}

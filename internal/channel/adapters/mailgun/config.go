package mailgun

import (
	"fmt"
	"strings"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

type accountConfig struct {
	// Address is the sending address, e.g. assistant@mg.example.com.
	Address string
	// Domain is the Mailgun sending domain. Defaults to the domain
	// part of Address.
	Domain string
	// APIKey authorizes the Messages API.
	APIKey string
	// WebhookSigningKey verifies inbound route posts. Accounts without
	// one reject all webhooks.
	WebhookSigningKey string
}

func parseConfig(credentials map[string]any) (accountConfig, error) {
	account := accountConfig{
		Address:           strings.TrimSpace(channel.ReadString(credentials, "address")),
		Domain:            strings.TrimSpace(channel.ReadString(credentials, "domain")),
		APIKey:            channel.ReadString(credentials, "api_key"),
		WebhookSigningKey: channel.ReadString(credentials, "webhook_signing_key"),
	}
	if account.Address == "" || !strings.Contains(account.Address, "@") {
		return accountConfig{}, fmt.Errorf("mailgun address must be a valid email address")
	}
	if account.APIKey == "" {
		return accountConfig{}, fmt.Errorf("mailgun api_key is required")
	}
	if account.Domain == "" {
		account.Domain = account.Address[strings.LastIndex(account.Address, "@")+1:]
	}
	return account, nil
}

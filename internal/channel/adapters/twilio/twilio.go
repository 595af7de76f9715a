package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// smsChunkLimit is Twilio's hard cap on a message body.
const smsChunkLimit = 1600

type Adapter struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "twilio")),
	}
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Twilio SMS",
		Description: "SMS through Twilio Programmable Messaging.",
		Capabilities: channel.Capabilities{
			Text:        true,
			Attachments: true,
		},
		CredentialSchema: channel.ConfigSchema{
			Version: 1,
			Fields: map[string]channel.FieldSchema{
				"account_sid":           {Type: channel.FieldString, Required: true, Title: "Account SID", Example: "ACxxxxxxxx"},
				"auth_token":            {Type: channel.FieldSecret, Required: true, Title: "Auth token"},
				"from":                  {Type: channel.FieldString, Required: true, Title: "From number", Example: "+15550100000"},
				"messaging_service_sid": {Type: channel.FieldString, Title: "Messaging service SID", Description: "Used instead of the from number when set."},
				"webhook_base_url":      {Type: channel.FieldString, Title: "Public webhook base URL", Description: "Overrides the request URL during signature validation when the service sits behind a proxy."},
			},
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: smsChunkLimit,
			RetryMax:       3,
			RetryBackoffMs: 1000,
		},
	}
}

// Normalize validates the credential table and derives the account's
// self identity from the sending number.
func (a *Adapter) Normalize(cfg *channel.Config) error {
	parsed, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	cfg.SelfIdentity = parsed.From
	return nil
}

func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.OutboundMessage) error {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("account", cfg.ID), slog.Any("error", err))
		return err
	}
	to := normalizePhone(msg.Target)
	if to == "" {
		return fmt.Errorf("twilio target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: account.AccountSID,
		Password: account.AuthToken,
	})
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	if account.MessagingServiceSID != "" {
		params.SetMessagingServiceSid(account.MessagingServiceSID)
	} else {
		params.SetFrom(account.From)
	}
	if text := strings.TrimSpace(msg.Message.Text); text != "" {
		params.SetBody(text)
	}
	if media := mediaURLs(msg.Message.Attachments); len(media) > 0 {
		params.SetMediaUrl(media)
	}

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	a.logger.Info("outbound sent",
		slog.String("account", cfg.ID),
		slog.String("to", to),
		slog.String("sid", sid))
	return nil
}

func mediaURLs(attachments []channel.Attachment) []string {
	urls := make([]string, 0, len(attachments))
	for _, att := range attachments {
		if att.URL != "" {
			urls = append(urls, att.URL)
		}
	}
	return urls
}

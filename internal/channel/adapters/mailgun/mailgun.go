package mailgun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailgun/mailgun-go/v5"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
)

// Metadata keys for reply threading, written when the inbound webhook
// is parsed and read back at send time.
const (
	metaReplyCc      = "reply_cc"
	metaReplySubject = "reply_subject"
	metaParentID     = "parent_message_id"
	metaReferences   = "references"
)

type Adapter struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "mailgun"))}
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Mailgun",
		Description: "Email through a Mailgun domain: route webhooks receive, Messages API send.",
		Capabilities: channel.Capabilities{
			Text:        true,
			Attachments: true,
			Reply:       true,
		},
		CredentialSchema: channel.ConfigSchema{
			Version: 1,
			Fields: map[string]channel.FieldSchema{
				"address":             {Type: channel.FieldString, Required: true, Title: "Sending address", Example: "assistant@mg.example.com"},
				"domain":              {Type: channel.FieldString, Title: "Sending domain", Description: "Defaults to the domain part of the sending address."},
				"api_key":             {Type: channel.FieldSecret, Required: true, Title: "API key"},
				"webhook_signing_key": {Type: channel.FieldSecret, Title: "Webhook signing key", Description: "HTTP API signing key used to verify inbound route posts."},
			},
		},
		OutboundPolicy: channel.OutboundPolicy{
			RetryMax:       3,
			RetryBackoffMs: 2000,
		},
	}
}

// Normalize validates the credential table and derives the account's
// self identity from the sending address.
func (a *Adapter) Normalize(cfg *channel.Config) error {
	parsed, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	cfg.SelfIdentity = strings.ToLower(parsed.Address)
	return nil
}

// Send submits one message through the Messages API. Threading headers,
// Cc, and the subject come from the metadata recorded when the message
// being answered arrived.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.OutboundMessage) error {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("account", cfg.ID), slog.Any("error", err))
		return err
	}
	to := strings.TrimSpace(msg.Target)
	if to == "" {
		return fmt.Errorf("mailgun target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}

	meta := msg.Message.Metadata
	subject := channel.ReadString(meta, metaReplySubject)
	out := mailgun.NewMessage(account.Domain, account.Address, subject, adapterutil.TextWithAttachmentLinks(msg.Message), to)
	for _, cc := range channel.ReadStringSlice(meta, metaReplyCc) {
		out.AddCC(cc)
	}
	if parent := channel.ReadString(meta, metaParentID); parent != "" {
		out.AddHeader("In-Reply-To", adapterutil.AngleWrap(parent))
		refs := channel.ReadStringSlice(meta, metaReferences)
		if len(refs) == 0 {
			refs = []string{parent}
		}
		wrapped := make([]string, len(refs))
		for i, ref := range refs {
			wrapped[i] = adapterutil.AngleWrap(ref)
		}
		out.AddHeader("References", strings.Join(wrapped, " "))
	}

	client := mailgun.NewMailgun(account.APIKey)
	resp, err := client.Send(ctx, out)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	a.logger.Info("outbound sent",
		slog.String("account", cfg.ID),
		slog.String("to", to),
		slog.String("message_id", resp.ID))
	return nil
}

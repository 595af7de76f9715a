package mailgun

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
	"github.com/ResslAI-Salesforce/dalo-2/internal/reply"
)

// VerifySignature checks the timestamp+token HMAC carried by every
// Mailgun webhook post. Accounts without a signing key reject all
// webhooks.
func (a *Adapter) VerifySignature(cfg channel.Config, timestamp, token, signature string) bool {
	account, err := parseConfig(cfg.Credentials)
	if err != nil || account.WebhookSigningKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(account.WebhookSigningKey))
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// storedAttachment is the JSON shape of the "attachments" form field.
type storedAttachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content-type"`
	Size        int64  `json:"size"`
}

// ParseWebhook turns a route post into the normalized inbound form.
// The provider's stripped-text field is ignored; quoted history is
// trimmed downstream so every channel shares one set of rules.
func (a *Adapter) ParseWebhook(cfg channel.Config, form url.Values) (channel.InboundMessage, error) {
	from, err := fromAddress(form)
	if err != nil {
		return channel.InboundMessage{}, err
	}

	msgID := strings.Trim(headerValue(form, "Message-Id"), "<> \t")
	subject := form.Get("subject")
	to := addressList(headerValue(form, "To"))
	cc := addressList(headerValue(form, "Cc"))
	references := messageIDs(headerValue(form, "References"))
	if len(references) == 0 {
		references = messageIDs(headerValue(form, "In-Reply-To"))
	}

	text := form.Get("body-plain")
	if strings.TrimSpace(text) == "" {
		if html := form.Get("body-html"); html != "" {
			text = adapterutil.HTMLToText(html)
		}
	}

	var attachments []channel.Attachment
	if raw := form.Get("attachments"); raw != "" {
		var stored []storedAttachment
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			a.logger.Warn("decode attachments failed", slog.String("account", cfg.ID), slog.Any("error", err))
		}
		for _, att := range stored {
			attachments = append(attachments, channel.NormalizeInboundAttachment(channel.Attachment{
				Name: att.Name,
				Mime: att.ContentType,
				Size: att.Size,
				URL:  att.URL,
			}))
		}
	}

	receivedAt := time.Now()
	if ts, err := strconv.ParseInt(form.Get("timestamp"), 10, 64); err == nil && ts > 0 {
		receivedAt = time.Unix(ts, 0)
	}

	recipients := reply.Resolve(cfg.SelfIdentity, from.Address, to, cc, cfg.PreserveCc)
	metadata := map[string]any{
		metaReplySubject: reply.Subject(subject),
	}
	if len(recipients.Cc) > 0 {
		metadata[metaReplyCc] = recipients.Cc
	}
	if msgID != "" {
		metadata[metaParentID] = msgID
		metadata[metaReferences] = reply.References(references, msgID)
	}

	return channel.InboundMessage{
		Channel:   Type,
		AccountID: cfg.ID,
		BotID:     cfg.BotID,
		Message: channel.Message{
			ID:          msgID,
			Text:        text,
			Attachments: attachments,
			Metadata:    metadata,
		},
		Sender: channel.Identity{
			ExternalID:  from.Address,
			DisplayName: from.Name,
		},
		ReplyTarget: recipients.To[0],
		ReceivedAt:  receivedAt.UTC(),
		Source:      "webhook",
	}, nil
}

// fromAddress resolves the author, preferring the From header over the
// envelope sender so display names survive.
func fromAddress(form url.Values) (*mail.Address, error) {
	if raw := form.Get("from"); raw != "" {
		if addr, err := mail.ParseAddress(raw); err == nil {
			return addr, nil
		}
	}
	sender := strings.TrimSpace(form.Get("sender"))
	if sender == "" {
		return nil, fmt.Errorf("route post has no sender")
	}
	return &mail.Address{Address: sender}, nil
}

// headerValue reads a forwarded header field, tolerating both case
// variants Mailgun has used over time.
func headerValue(form url.Values, name string) string {
	if v := form.Get(name); v != "" {
		return v
	}
	return form.Get(strings.ToLower(name))
}

func addressList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(parsed))
	for _, addr := range parsed {
		if addr != nil && addr.Address != "" {
			out = append(out, addr.Address)
		}
	}
	return out
}

func messageIDs(raw string) []string {
	var ids []string
	for _, field := range strings.Fields(raw) {
		if id := strings.Trim(field, "<>"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

package twilio

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	twclient "github.com/twilio/twilio-go/client"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// VerifySignature checks the X-Twilio-Signature header against the
// request URL and form body. fullURL must be the URL Twilio called,
// including scheme, host, and query.
func (a *Adapter) VerifySignature(cfg channel.Config, fullURL string, form url.Values, signature string) bool {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		return false
	}
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	validator := twclient.NewRequestValidator(account.AuthToken)
	return validator.Validate(fullURL, params, signature)
}

// WebhookURL resolves the URL to validate the signature against,
// preferring the configured public base over the observed request URL.
func (a *Adapter) WebhookURL(cfg channel.Config, requestURL string, path string) string {
	account, err := parseConfig(cfg.Credentials)
	if err != nil || account.WebhookBaseURL == "" {
		return requestURL
	}
	return account.WebhookBaseURL + path
}

// ParseWebhook maps an inbound provider POST onto the normalized
// message form.
func (a *Adapter) ParseWebhook(cfg channel.Config, form url.Values) (channel.InboundMessage, error) {
	from := normalizePhone(form.Get("From"))
	if from == "" {
		return channel.InboundMessage{}, errors.New("twilio webhook has no From number")
	}
	numMedia, _ := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	var attachments []channel.Attachment
	for i := 0; i < numMedia; i++ {
		mediaURL := strings.TrimSpace(form.Get(fmt.Sprintf("MediaUrl%d", i)))
		if mediaURL == "" {
			continue
		}
		attachments = append(attachments, channel.NormalizeInboundAttachment(channel.Attachment{
			URL:  mediaURL,
			Mime: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		}))
	}
	return channel.InboundMessage{
		Channel:   Type,
		AccountID: cfg.ID,
		BotID:     cfg.BotID,
		Message: channel.Message{
			ID:          strings.TrimSpace(form.Get("MessageSid")),
			Text:        form.Get("Body"),
			Attachments: attachments,
		},
		Sender:      channel.Identity{ExternalID: from},
		ReplyTarget: from,
		ReceivedAt:  time.Now().UTC(),
		Source:      "webhook",
	}, nil
}

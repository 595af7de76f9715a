package vapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// serverMessage is the envelope VAPI POSTs to the webhook. Fields cover
// the payload variants across report versions; absent ones decode to
// zero values.
type serverMessage struct {
	Message struct {
		Type        string `json:"type"`
		Status      string `json:"status"`
		EndedReason string `json:"endedReason"`
		Summary     string `json:"summary"`
		Transcript  string `json:"transcript"`
		EndedAt     string `json:"endedAt"`
		Call        struct {
			ID       string `json:"id"`
			Customer struct {
				Number string `json:"number"`
				Name   string `json:"name"`
			} `json:"customer"`
		} `json:"call"`
		Customer struct {
			Number string `json:"number"`
			Name   string `json:"name"`
		} `json:"customer"`
		Artifact struct {
			Transcript string `json:"transcript"`
		} `json:"artifact"`
		Analysis struct {
			Summary string `json:"summary"`
		} `json:"analysis"`
	} `json:"message"`
}

// VerifySecret compares the X-Vapi-Secret header against the account's
// webhook secret.
func (a *Adapter) VerifySecret(cfg channel.Config, header string) bool {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(account.WebhookSecret)) == 1
}

// ParseWebhook decodes a server message. The returned bool reports
// whether the payload is deliverable to the pipeline: end-of-call
// reports are, status updates and unknown types are acknowledged and
// dropped.
func (a *Adapter) ParseWebhook(cfg channel.Config, body []byte) (channel.InboundMessage, bool, error) {
	var decoded serverMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return channel.InboundMessage{}, false, fmt.Errorf("decode webhook: %w", err)
	}
	m := decoded.Message
	switch m.Type {
	case "end-of-call-report":
	case "status-update":
		a.logger.Debug("call status",
			slog.String("account", cfg.ID),
			slog.String("call_id", m.Call.ID),
			slog.String("status", m.Status))
		return channel.InboundMessage{}, false, nil
	default:
		a.logger.Debug("ignoring webhook type",
			slog.String("account", cfg.ID),
			slog.String("type", m.Type))
		return channel.InboundMessage{}, false, nil
	}

	number := strings.TrimSpace(m.Call.Customer.Number)
	name := strings.TrimSpace(m.Call.Customer.Name)
	if number == "" {
		number = strings.TrimSpace(m.Customer.Number)
		name = strings.TrimSpace(m.Customer.Name)
	}
	text := strings.TrimSpace(m.Analysis.Summary)
	if text == "" {
		text = strings.TrimSpace(m.Summary)
	}
	if text == "" {
		text = strings.TrimSpace(m.Artifact.Transcript)
	}
	if text == "" {
		text = strings.TrimSpace(m.Transcript)
	}

	receivedAt := time.Now().UTC()
	if m.EndedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, m.EndedAt); err == nil {
			receivedAt = parsed.UTC()
		}
	}

	msg := channel.InboundMessage{
		Channel:   Type,
		AccountID: cfg.ID,
		BotID:     cfg.BotID,
		Message: channel.Message{
			ID:   m.Call.ID,
			Text: text,
			Metadata: map[string]any{
				"call_id":      m.Call.ID,
				"ended_reason": m.EndedReason,
			},
		},
		Sender: channel.Identity{
			ExternalID:  number,
			DisplayName: name,
		},
		ReplyTarget: number,
		ReceivedAt:  receivedAt,
		Source:      "webhook",
	}
	return msg, true, nil
}

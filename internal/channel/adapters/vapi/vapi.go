package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

type Adapter struct {
	logger     *slog.Logger
	httpClient *http.Client
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:     log.With(slog.String("adapter", "vapi")),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "VAPI Voice",
		Description: "Phone calls through VAPI: call reports in, assistant calls out.",
		Capabilities: channel.Capabilities{
			Text: true,
		},
		CredentialSchema: channel.ConfigSchema{
			Version: 1,
			Fields: map[string]channel.FieldSchema{
				"api_key":         {Type: channel.FieldSecret, Required: true, Title: "API key"},
				"webhook_secret":  {Type: channel.FieldSecret, Required: true, Title: "Webhook secret", Description: "Value VAPI sends in the X-Vapi-Secret header."},
				"assistant_id":    {Type: channel.FieldString, Required: true, Title: "Assistant id"},
				"phone_number_id": {Type: channel.FieldString, Required: true, Title: "Phone number id"},
				"phone_number":    {Type: channel.FieldString, Title: "Phone number", Example: "+15550100000"},
				"base_url":        {Type: channel.FieldString, Title: "API base URL", Example: defaultBaseURL},
			},
		},
		OutboundPolicy: channel.OutboundPolicy{
			RetryMax:       2,
			RetryBackoffMs: 2000,
		},
	}
}

func (a *Adapter) Normalize(cfg *channel.Config) error {
	parsed, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	cfg.SelfIdentity = parsed.selfIdentity()
	return nil
}

// Send places an outbound call to the target number, with the message
// text as the assistant's opening line.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.OutboundMessage) error {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("account", cfg.ID), slog.Any("error", err))
		return err
	}
	to := strings.TrimSpace(msg.Target)
	if to == "" {
		return fmt.Errorf("vapi target is required")
	}
	text := strings.TrimSpace(msg.Message.Text)
	if text == "" {
		return fmt.Errorf("message text is required")
	}
	callID, err := a.startCall(ctx, account, to, text)
	if err != nil {
		return err
	}
	a.logger.Info("outbound call placed",
		slog.String("account", cfg.ID),
		slog.String("to", to),
		slog.String("call_id", callID))
	return nil
}

type callRequest struct {
	AssistantID        string              `json:"assistantId"`
	PhoneNumberID      string              `json:"phoneNumberId"`
	Customer           callCustomer        `json:"customer"`
	AssistantOverrides *assistantOverrides `json:"assistantOverrides,omitempty"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type assistantOverrides struct {
	FirstMessage string `json:"firstMessage,omitempty"`
}

type callResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (a *Adapter) startCall(ctx context.Context, account accountConfig, number, firstMessage string) (string, error) {
	payload := callRequest{
		AssistantID:   account.AssistantID,
		PhoneNumberID: account.PhoneNumberID,
		Customer:      callCustomer{Number: number},
	}
	if firstMessage != "" {
		payload.AssistantOverrides = &assistantOverrides{FirstMessage: firstMessage}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode call request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create call request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vapi call request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("vapi call failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var decoded callResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	return decoded.ID, nil
}

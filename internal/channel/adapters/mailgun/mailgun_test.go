package mailgun

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

func testAdapter() *Adapter {
	return New(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
}

func testConfig(credentials map[string]any) channel.Config {
	return channel.Config{
		ID:           "acc-1",
		Type:         Type,
		BotID:        "bot-1",
		SelfIdentity: "bot@mg.example.com",
		PreserveCc:   true,
		Credentials:  credentials,
	}
}

func TestParseConfig(t *testing.T) {
	cases := []struct {
		name        string
		credentials map[string]any
		wantErr     string
		wantDomain  string
	}{
		{
			name:        "missing address",
			credentials: map[string]any{"api_key": "key-1"},
			wantErr:     "address",
		},
		{
			name:        "address without at sign",
			credentials: map[string]any{"address": "not-an-address", "api_key": "key-1"},
			wantErr:     "address",
		},
		{
			name:        "missing api key",
			credentials: map[string]any{"address": "bot@mg.example.com"},
			wantErr:     "api_key",
		},
		{
			name:        "domain derived from address",
			credentials: map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"},
			wantDomain:  "mg.example.com",
		},
		{
			name: "explicit domain kept",
			credentials: map[string]any{
				"address": "bot@corp.example.com",
				"domain":  "mg.example.com",
				"api_key": "key-1",
			},
			wantDomain: "mg.example.com",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account, err := parseConfig(tc.credentials)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConfig: %v", err)
			}
			if account.Domain != tc.wantDomain {
				t.Fatalf("domain = %q, want %q", account.Domain, tc.wantDomain)
			}
		})
	}
}

func TestNormalizeDerivesSelfIdentity(t *testing.T) {
	cfg := testConfig(map[string]any{"address": "Bot@MG.Example.com", "api_key": "key-1"})
	cfg.SelfIdentity = ""
	if err := testAdapter().Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.SelfIdentity != "bot@mg.example.com" {
		t.Fatalf("self identity = %q", cfg.SelfIdentity)
	}
}

func mailgunSign(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := testAdapter()
	cfg := testConfig(map[string]any{
		"address":             "bot@mg.example.com",
		"api_key":             "key-1",
		"webhook_signing_key": "signing-key",
	})
	timestamp, token := "1700000000", "tok-1"

	if !adapter.VerifySignature(cfg, timestamp, token, mailgunSign("signing-key", timestamp, token)) {
		t.Fatal("valid signature rejected")
	}
	if adapter.VerifySignature(cfg, timestamp, token, mailgunSign("other-key", timestamp, token)) {
		t.Fatal("forged signature accepted")
	}
	if adapter.VerifySignature(cfg, "1700000001", token, mailgunSign("signing-key", timestamp, token)) {
		t.Fatal("tampered timestamp accepted")
	}

	noKey := testConfig(map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"})
	if adapter.VerifySignature(noKey, timestamp, token, mailgunSign("", timestamp, token)) {
		t.Fatal("account without signing key accepted a webhook")
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := testAdapter()
	cfg := testConfig(map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"})

	form := url.Values{}
	form.Set("from", "Alice <alice@example.com>")
	form.Set("sender", "alice@example.com")
	form.Set("recipient", "bot@mg.example.com")
	form.Set("To", "Bot <bot@mg.example.com>, bob@example.com")
	form.Set("Cc", "carol@example.com")
	form.Set("subject", "Quarterly numbers")
	form.Set("body-plain", "Looks good to me.")
	form.Set("stripped-text", "provider trimmed version")
	form.Set("Message-Id", "<m1@example.com>")
	form.Set("References", "<r1@example.com> <r2@example.com>")
	form.Set("timestamp", "1700000000")
	form.Set("attachments", `[
		{"url": "https://storage.mailgun.net/a1", "name": "report.pdf", "content-type": "application/pdf", "size": 10240},
		{"url": "https://storage.mailgun.net/a2", "name": "chart.png", "content-type": "image/png", "size": 2048}
	]`)

	msg, err := adapter.ParseWebhook(cfg, form)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Channel != Type || msg.AccountID != "acc-1" || msg.BotID != "bot-1" {
		t.Fatalf("routing fields = %+v", msg)
	}
	if msg.Sender.ExternalID != "alice@example.com" || msg.Sender.DisplayName != "Alice" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if msg.ReplyTarget != "alice@example.com" {
		t.Fatalf("reply target = %q", msg.ReplyTarget)
	}
	if msg.Message.ID != "m1@example.com" {
		t.Fatalf("message id = %q", msg.Message.ID)
	}
	if msg.Message.Text != "Looks good to me." {
		t.Fatalf("text = %q", msg.Message.Text)
	}
	meta := msg.Message.Metadata
	if got := meta[metaReplySubject]; got != "Re: Quarterly numbers" {
		t.Fatalf("reply subject = %v", got)
	}
	if got, want := meta[metaReplyCc], []string{"bob@example.com", "carol@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("reply cc = %v, want %v", got, want)
	}
	if got := meta[metaParentID]; got != "m1@example.com" {
		t.Fatalf("parent id = %v", got)
	}
	if got, want := meta[metaReferences], []string{"r1@example.com", "r2@example.com", "m1@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("references = %v, want %v", got, want)
	}
	if len(msg.Message.Attachments) != 2 {
		t.Fatalf("attachments = %+v", msg.Message.Attachments)
	}
	pdf, png := msg.Message.Attachments[0], msg.Message.Attachments[1]
	if pdf.Type != channel.AttachmentFile || pdf.Name != "report.pdf" || pdf.URL != "https://storage.mailgun.net/a1" || pdf.Size != 10240 {
		t.Fatalf("pdf attachment = %+v", pdf)
	}
	if png.Type != channel.AttachmentImage || png.Mime != "image/png" {
		t.Fatalf("png attachment = %+v", png)
	}
	if want := time.Unix(1700000000, 0).UTC(); !msg.ReceivedAt.Equal(want) {
		t.Fatalf("received at = %v, want %v", msg.ReceivedAt, want)
	}
	if msg.Source != "webhook" {
		t.Fatalf("source = %q", msg.Source)
	}
}

func TestParseWebhookHTMLFallback(t *testing.T) {
	adapter := testAdapter()
	cfg := testConfig(map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"})

	form := url.Values{}
	form.Set("from", "alice@example.com")
	form.Set("body-html", "<p>Hello <b>there</b></p>")

	msg, err := adapter.ParseWebhook(cfg, form)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if strings.Contains(msg.Message.Text, "<") {
		t.Fatalf("html survived: %q", msg.Message.Text)
	}
	if !strings.Contains(msg.Message.Text, "Hello") {
		t.Fatalf("text = %q", msg.Message.Text)
	}
}

func TestParseWebhookSenderFallback(t *testing.T) {
	adapter := testAdapter()
	cfg := testConfig(map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"})

	form := url.Values{}
	form.Set("sender", "alice@example.com")
	form.Set("body-plain", "hi")
	msg, err := adapter.ParseWebhook(cfg, form)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Sender.ExternalID != "alice@example.com" {
		t.Fatalf("sender = %+v", msg.Sender)
	}

	if _, err := adapter.ParseWebhook(cfg, url.Values{}); err == nil {
		t.Fatal("expected error for post without sender")
	}
}

func TestSendValidation(t *testing.T) {
	adapter := testAdapter()
	cfg := testConfig(map[string]any{"address": "bot@mg.example.com", "api_key": "key-1"})

	err := adapter.Send(context.Background(), cfg, channel.OutboundMessage{
		Message: channel.Message{Text: "hi"},
	})
	if err == nil || !strings.Contains(err.Error(), "target") {
		t.Fatalf("err = %v, want target error", err)
	}

	err = adapter.Send(context.Background(), cfg, channel.OutboundMessage{
		Target: "alice@example.com",
	})
	if err == nil || !strings.Contains(err.Error(), "message") {
		t.Fatalf("err = %v, want message error", err)
	}
}

package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

func credentials() map[string]any {
	return map[string]any{
		"account_sid": "AC00000000000000000000000000000000",
		"auth_token":  "token-secret",
		"from":        "+1 (555) 010-0000",
	}
}

func TestParseConfig(t *testing.T) {
	cases := []struct {
		name    string
		drop    string
		wantErr string
	}{
		{name: "missing account sid", drop: "account_sid", wantErr: "account_sid"},
		{name: "missing auth token", drop: "auth_token", wantErr: "auth_token"},
		{name: "missing from", drop: "from", wantErr: "from number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := credentials()
			delete(raw, tc.drop)
			_, err := parseConfig(raw)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("parseConfig error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}

	cfg, err := parseConfig(credentials())
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.From != "+15550100000" {
		t.Fatalf("From = %q, want normalized E.164", cfg.From)
	}
}

func TestNormalizeDerivesSelfIdentity(t *testing.T) {
	adapter := New(nil)
	cfg := channel.Config{ID: "acc-1", Type: Type, Credentials: credentials()}
	if err := adapter.Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.SelfIdentity != "+15550100000" {
		t.Fatalf("SelfIdentity = %q", cfg.SelfIdentity)
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := New(nil)
	cfg := channel.Config{ID: "acc-1", Type: Type, BotID: "bot-1", Credentials: credentials()}
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15550123456")
	form.Set("To", "+15550100000")
	form.Set("Body", "hello bot")
	form.Set("NumMedia", "2")
	form.Set("MediaUrl0", "https://api.twilio.com/media/1")
	form.Set("MediaContentType0", "image/jpeg")
	form.Set("MediaUrl1", "https://api.twilio.com/media/2")
	form.Set("MediaContentType1", "application/pdf")

	msg, err := adapter.ParseWebhook(cfg, form)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Message.ID != "SM123" {
		t.Fatalf("Message.ID = %q", msg.Message.ID)
	}
	if msg.Sender.ExternalID != "+15550123456" || msg.ReplyTarget != "+15550123456" {
		t.Fatalf("sender = %q, reply target = %q", msg.Sender.ExternalID, msg.ReplyTarget)
	}
	if msg.Message.Text != "hello bot" {
		t.Fatalf("text = %q", msg.Message.Text)
	}
	if len(msg.Message.Attachments) != 2 {
		t.Fatalf("attachments = %+v", msg.Message.Attachments)
	}
	if msg.Message.Attachments[0].Type != channel.AttachmentImage {
		t.Fatalf("first attachment type = %q, want image", msg.Message.Attachments[0].Type)
	}
	if msg.Message.Attachments[1].Type != channel.AttachmentFile {
		t.Fatalf("second attachment type = %q, want file", msg.Message.Attachments[1].Type)
	}
	if msg.AccountID != "acc-1" || msg.BotID != "bot-1" {
		t.Fatalf("account/bot = %q/%q", msg.AccountID, msg.BotID)
	}
}

func TestParseWebhookRequiresFrom(t *testing.T) {
	adapter := New(nil)
	cfg := channel.Config{ID: "acc-1", Type: Type, Credentials: credentials()}
	form := url.Values{}
	form.Set("Body", "anonymous")
	if _, err := adapter.ParseWebhook(cfg, form); err == nil {
		t.Fatal("ParseWebhook should reject a payload without From")
	}
}

// twilioSign reproduces the documented signature scheme: HMAC-SHA1 over
// the URL plus the form keys and values in sorted key order.
func twilioSign(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(form.Get(key))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := New(nil)
	cfg := channel.Config{ID: "acc-1", Type: Type, Credentials: credentials()}
	fullURL := "https://bot.example.com/webhooks/twilio/acc-1"
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15550123456")
	form.Set("Body", "hello")

	good := twilioSign("token-secret", fullURL, form)
	if !adapter.VerifySignature(cfg, fullURL, form, good) {
		t.Fatal("valid signature rejected")
	}
	if adapter.VerifySignature(cfg, fullURL, form, "bogus") {
		t.Fatal("invalid signature accepted")
	}
	tampered := url.Values{}
	tampered.Set("MessageSid", "SM123")
	tampered.Set("From", "+15550123456")
	tampered.Set("Body", "hello attacker")
	if adapter.VerifySignature(cfg, fullURL, tampered, good) {
		t.Fatal("signature must not survive body tampering")
	}
}

func TestWebhookURLPrefersConfiguredBase(t *testing.T) {
	adapter := New(nil)
	raw := credentials()
	raw["webhook_base_url"] = "https://public.example.com/"
	cfg := channel.Config{ID: "acc-1", Type: Type, Credentials: raw}

	got := adapter.WebhookURL(cfg, "http://10.0.0.5:8080/webhooks/twilio/acc-1", "/webhooks/twilio/acc-1")
	if got != "https://public.example.com/webhooks/twilio/acc-1" {
		t.Fatalf("WebhookURL = %q", got)
	}

	noBase := channel.Config{ID: "acc-1", Type: Type, Credentials: credentials()}
	got = adapter.WebhookURL(noBase, "http://10.0.0.5:8080/webhooks/twilio/acc-1", "/webhooks/twilio/acc-1")
	if got != "http://10.0.0.5:8080/webhooks/twilio/acc-1" {
		t.Fatalf("WebhookURL fallback = %q", got)
	}
}

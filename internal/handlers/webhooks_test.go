package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/mailgun"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/twilio"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/vapi"
)

// twilioSign reproduces the documented scheme: HMAC-SHA1 over the URL
// plus the form keys and values in sorted key order.
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

func mailgunSign(signingKey, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func newWebhookEnv(t *testing.T, configs ...channel.Config) (*fakeStore, *recordProcessor, *channel.Manager) {
	t.Helper()
	store := &fakeStore{}
	store.set(configs...)
	proc := &recordProcessor{}
	manager := channel.NewManager(discardLogger(), channel.NewRegistry(), store, proc)
	t.Cleanup(func() {
		_ = manager.Shutdown(context.Background())
	})
	return store, proc, manager
}

func TestTwilioWebhook(t *testing.T) {
	t.Parallel()

	creds := map[string]any{
		"account_sid": "AC00000000000000000000000000000000",
		"auth_token":  "token-secret",
		"from":        "+15550100000",
	}
	store, proc, manager := newWebhookEnv(t,
		channel.Config{ID: "sms-1", Type: twilio.Type, BotID: "bot-1", Enabled: true, Credentials: creds},
		channel.Config{ID: "sms-off", Type: twilio.Type, Enabled: false, Credentials: creds},
		channel.Config{ID: "mail-1", Type: "gmail", Enabled: true},
	)

	e := echo.New()
	NewTwilioWebhookHandler(discardLogger(), store, manager, twilio.New(discardLogger())).Register(e)

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15550123456")
	form.Set("To", "+15550100000")
	form.Set("Body", "hello bot")

	target := "/webhooks/twilio/sms-1"
	req := formRequest(target, form)
	req.Header.Set("X-Twilio-Signature", twilioSign("token-secret", "http://example.com"+target, form))
	rec := do(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Fatalf("expected empty TwiML ack, got %q", rec.Body.String())
	}
	waitFor(t, time.Second, func() bool { return len(proc.messages()) == 1 })
	msg := proc.messages()[0]
	if msg.AccountID != "sms-1" || msg.Message.Text != "hello bot" || msg.Sender.ExternalID != "+15550123456" {
		t.Fatalf("unexpected queued message %#v", msg)
	}

	req = formRequest(target, form)
	req.Header.Set("X-Twilio-Signature", "forged")
	if rec := do(e, req); rec.Code != http.StatusForbidden {
		t.Fatalf("forged signature status = %d", rec.Code)
	}

	for _, account := range []string{"missing", "sms-off", "mail-1"} {
		req := formRequest("/webhooks/twilio/"+account, form)
		req.Header.Set("X-Twilio-Signature", twilioSign("token-secret", "http://example.com/webhooks/twilio/"+account, form))
		if rec := do(e, req); rec.Code != http.StatusNotFound {
			t.Fatalf("account %s status = %d, want 404", account, rec.Code)
		}
	}
	if got := len(proc.messages()); got != 1 {
		t.Fatalf("rejected webhooks must not enqueue, got %d messages", got)
	}
}

func TestVapiWebhook(t *testing.T) {
	t.Parallel()

	creds := map[string]any{
		"api_key":         "vapi-key",
		"webhook_secret":  "hook-secret",
		"assistant_id":    "asst-1",
		"phone_number_id": "pn-1",
	}
	store, proc, manager := newWebhookEnv(t,
		channel.Config{ID: "voice-1", Type: vapi.Type, BotID: "bot-1", Enabled: true, Credentials: creds},
	)

	e := echo.New()
	NewVapiWebhookHandler(discardLogger(), store, manager, vapi.New(discardLogger())).Register(e)

	report := `{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","endedAt":"2024-05-01T10:00:00Z","analysis":{"summary":"Customer wants a callback tomorrow."},"call":{"id":"call-9","customer":{"number":"+15550123456","name":"Alice"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vapi/voice-1", strings.NewReader(report))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("x-vapi-secret", "hook-secret")
	rec := do(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "queued") {
		t.Fatalf("expected queued ack, got %q", rec.Body.String())
	}
	waitFor(t, time.Second, func() bool { return len(proc.messages()) == 1 })
	msg := proc.messages()[0]
	if msg.Message.ID != "call-9" || msg.Message.Text != "Customer wants a callback tomorrow." {
		t.Fatalf("unexpected queued message %#v", msg)
	}
	if msg.Sender.ExternalID != "+15550123456" {
		t.Fatalf("sender = %#v", msg.Sender)
	}

	statusUpdate := `{"message":{"type":"status-update","status":"in-progress","call":{"id":"call-9"}}}`
	req = httptest.NewRequest(http.MethodPost, "/webhooks/vapi/voice-1", strings.NewReader(statusUpdate))
	req.Header.Set("x-vapi-secret", "hook-secret")
	rec = do(e, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("status-update response = %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/vapi/voice-1", strings.NewReader(report))
	req.Header.Set("x-vapi-secret", "wrong")
	if rec := do(e, req); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong secret status = %d", rec.Code)
	}
	if got := len(proc.messages()); got != 1 {
		t.Fatalf("only the report should enqueue, got %d messages", got)
	}
}

func TestMailgunWebhook(t *testing.T) {
	t.Parallel()

	creds := map[string]any{
		"address":             "bot@mg.example.com",
		"api_key":             "key-123",
		"webhook_signing_key": "sig-key",
	}
	store, proc, manager := newWebhookEnv(t,
		channel.Config{ID: "mail-1", Type: mailgun.Type, BotID: "bot-1", Enabled: true, SelfIdentity: "bot@mg.example.com", Credentials: creds},
	)

	e := echo.New()
	NewMailgunWebhookHandler(discardLogger(), store, manager, mailgun.New(discardLogger())).Register(e)

	form := url.Values{}
	form.Set("timestamp", "1700000000")
	form.Set("token", "tok-1")
	form.Set("signature", mailgunSign("sig-key", "1700000000", "tok-1"))
	form.Set("sender", "alice@example.com")
	form.Set("from", "Alice <alice@example.com>")
	form.Set("To", "Bot <bot@mg.example.com>")
	form.Set("subject", "Q3 numbers")
	form.Set("Message-Id", "<m1@example.com>")
	form.Set("body-plain", "Need the latest report.")

	rec := do(e, formRequest("/webhooks/mailgun/mail-1", form))
	if rec.Code != http.StatusOK {
		t.Fatalf("signed route post status = %d body = %s", rec.Code, rec.Body.String())
	}
	waitFor(t, time.Second, func() bool { return len(proc.messages()) == 1 })
	msg := proc.messages()[0]
	if msg.Sender.ExternalID != "alice@example.com" || msg.Message.Text != "Need the latest report." {
		t.Fatalf("unexpected queued message %#v", msg)
	}
	if msg.ReplyTarget != "alice@example.com" {
		t.Fatalf("ReplyTarget = %q", msg.ReplyTarget)
	}

	forged := url.Values{}
	for key, values := range form {
		forged[key] = values
	}
	forged.Set("signature", "deadbeef")
	if rec := do(e, formRequest("/webhooks/mailgun/mail-1", forged)); rec.Code != http.StatusNotAcceptable {
		t.Fatalf("forged signature status = %d", rec.Code)
	}

	empty := url.Values{}
	empty.Set("timestamp", "1700000001")
	empty.Set("token", "tok-2")
	empty.Set("signature", mailgunSign("sig-key", "1700000001", "tok-2"))
	if rec := do(e, formRequest("/webhooks/mailgun/mail-1", empty)); rec.Code != http.StatusNotAcceptable {
		t.Fatalf("senderless post status = %d", rec.Code)
	}
	if got := len(proc.messages()); got != 1 {
		t.Fatalf("rejected posts must not enqueue, got %d messages", got)
	}
}

package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/supervise"
)

// oauthEndpoint is Google's OAuth2 endpoint. The full-mailbox scope
// covers both IMAP and SMTP submission.
var oauthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const mailScope = "https://mail.google.com/"

type Adapter struct {
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]oauth2.TokenSource
	limits map[string]*rate.Limiter
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "gmail")),
		tokens: map[string]oauth2.TokenSource{},
		limits: map[string]*rate.Limiter{},
	}
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Gmail",
		Description: "Email through a Gmail mailbox: IMAP receive, SMTP submission send.",
		Capabilities: channel.Capabilities{
			Text:        true,
			Attachments: true,
			Reply:       true,
		},
		CredentialSchema: channel.ConfigSchema{
			Version: 1,
			Fields: map[string]channel.FieldSchema{
				"address":          {Type: channel.FieldString, Required: true, Title: "Email address", Example: "bot@example.com"},
				"password":         {Type: channel.FieldSecret, Title: "App password", Description: "Used when no OAuth refresh token is set."},
				"client_id":        {Type: channel.FieldString, Title: "OAuth client id"},
				"client_secret":    {Type: channel.FieldSecret, Title: "OAuth client secret"},
				"refresh_token":    {Type: channel.FieldSecret, Title: "OAuth refresh token"},
				"imap_host":        {Type: channel.FieldString, Title: "IMAP host", Example: defaultIMAPHost},
				"imap_port":        {Type: channel.FieldNumber, Title: "IMAP port", Example: defaultIMAPPort},
				"smtp_host":        {Type: channel.FieldString, Title: "SMTP host", Example: defaultSMTPHost},
				"smtp_port":        {Type: channel.FieldNumber, Title: "SMTP port", Example: defaultSMTPPort},
				"mailbox":          {Type: channel.FieldString, Title: "Mailbox", Example: defaultMailbox},
				"poll_schedule":    {Type: channel.FieldString, Title: "Poll schedule", Description: "Cron pattern or @every duration.", Example: defaultPollSchedule},
				"send_interval_ms": {Type: channel.FieldNumber, Title: "Minimum send interval (ms)"},
			},
		},
		OutboundPolicy: channel.OutboundPolicy{
			RetryMax:       3,
			RetryBackoffMs: 2000,
		},
	}
}

// Normalize validates the credential table and derives the account's
// self identity from the mailbox address.
func (a *Adapter) Normalize(cfg *channel.Config) error {
	parsed, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	cfg.SelfIdentity = strings.ToLower(parsed.Address)
	return nil
}

// accessToken mints an access token for the account, refreshing through
// the cached token source. A rejected grant is terminal; network
// failures are left retryable.
func (a *Adapter) accessToken(account accountConfig) (string, error) {
	key := account.ClientID + "\n" + account.RefreshToken
	a.mu.Lock()
	ts, ok := a.tokens[key]
	if !ok {
		oc := &oauth2.Config{
			ClientID:     account.ClientID,
			ClientSecret: account.ClientSecret,
			Endpoint:     oauthEndpoint,
			Scopes:       []string{mailScope},
		}
		ts = oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: account.RefreshToken})
		a.tokens[key] = ts
	}
	a.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return "", supervise.Terminal(fmt.Errorf("refresh gmail token: %w", err))
		}
		return "", fmt.Errorf("refresh gmail token: %w", err)
	}
	return tok.AccessToken, nil
}

// limiter spaces outbound sends for one account.
func (a *Adapter) limiter(accountID string, account accountConfig) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.limits[accountID]; ok {
		return l
	}
	interval := time.Duration(account.SendIntervalMs) * time.Millisecond
	l := rate.NewLimiter(rate.Every(interval), 1)
	a.limits[accountID] = l
	return l
}

package gmail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

const (
	defaultIMAPHost       = "imap.gmail.com"
	defaultIMAPPort       = 993
	defaultSMTPHost       = "smtp.gmail.com"
	defaultSMTPPort       = 587
	defaultMailbox        = "INBOX"
	defaultPollSchedule   = "@every 1m"
	defaultSendIntervalMs = 1500
)

// pollParser accepts standard cron patterns with an optional seconds
// field plus descriptors like "@every 1m".
var pollParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// accountConfig holds the mailbox credentials extracted from a channel
// configuration. OAuth fields take precedence over the app password.
type accountConfig struct {
	Address        string
	Password       string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	IMAPHost       string
	IMAPPort       int
	SMTPHost       string
	SMTPPort       int
	Mailbox        string
	PollSchedule   string
	SendIntervalMs int
}

func (c accountConfig) useOAuth() bool {
	return c.RefreshToken != ""
}

func parseConfig(raw map[string]any) (accountConfig, error) {
	cfg := accountConfig{
		Address:        strings.TrimSpace(channel.ReadString(raw, "address", "email")),
		Password:       channel.ReadString(raw, "password", "app_password"),
		ClientID:       channel.ReadString(raw, "client_id", "clientId"),
		ClientSecret:   channel.ReadString(raw, "client_secret", "clientSecret"),
		RefreshToken:   channel.ReadString(raw, "refresh_token", "refreshToken"),
		IMAPHost:       channel.ReadString(raw, "imap_host"),
		IMAPPort:       channel.ReadInt(raw, "imap_port"),
		SMTPHost:       channel.ReadString(raw, "smtp_host"),
		SMTPPort:       channel.ReadInt(raw, "smtp_port"),
		Mailbox:        channel.ReadString(raw, "mailbox"),
		PollSchedule:   channel.ReadString(raw, "poll_schedule"),
		SendIntervalMs: channel.ReadInt(raw, "send_interval_ms"),
	}
	if cfg.Address == "" || !strings.Contains(cfg.Address, "@") {
		return accountConfig{}, errors.New("gmail address is required")
	}
	if cfg.RefreshToken != "" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return accountConfig{}, errors.New("gmail oauth requires client_id and client_secret")
		}
	} else if cfg.Password == "" {
		return accountConfig{}, errors.New("gmail requires a refresh_token or an app password")
	}
	if cfg.IMAPHost == "" {
		cfg.IMAPHost = defaultIMAPHost
	}
	if cfg.IMAPPort <= 0 {
		cfg.IMAPPort = defaultIMAPPort
	}
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = defaultSMTPHost
	}
	if cfg.SMTPPort <= 0 {
		cfg.SMTPPort = defaultSMTPPort
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = defaultMailbox
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = defaultPollSchedule
	}
	if _, err := pollParser.Parse(cfg.PollSchedule); err != nil {
		return accountConfig{}, fmt.Errorf("invalid poll_schedule: %w", err)
	}
	if cfg.SendIntervalMs <= 0 {
		cfg.SendIntervalMs = defaultSendIntervalMs
	}
	return cfg, nil
}

package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
)

// Send submits one message over SMTP. Threading headers, Cc, and the
// subject come from the metadata recorded when the message being
// answered arrived.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.OutboundMessage) error {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("account", cfg.ID), slog.Any("error", err))
		return err
	}
	to := strings.TrimSpace(msg.Target)
	if to == "" {
		return fmt.Errorf("gmail target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}

	out := mail.NewMsg()
	if err := out.From(account.Address); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	meta := msg.Message.Metadata
	if cc := channel.ReadStringSlice(meta, metaReplyCc); len(cc) > 0 {
		if err := out.Cc(cc...); err != nil {
			return fmt.Errorf("invalid cc: %w", err)
		}
	}
	if subject := channel.ReadString(meta, metaReplySubject); subject != "" {
		out.Subject(subject)
	}
	if parent := channel.ReadString(meta, metaParentID); parent != "" {
		out.SetGenHeader(mail.HeaderInReplyTo, adapterutil.AngleWrap(parent))
		refs := channel.ReadStringSlice(meta, metaReferences)
		if len(refs) == 0 {
			refs = []string{parent}
		}
		wrapped := make([]string, len(refs))
		for i, ref := range refs {
			wrapped[i] = adapterutil.AngleWrap(ref)
		}
		out.SetGenHeader(mail.HeaderReferences, strings.Join(wrapped, " "))
	}
	out.SetBodyString(mail.TypeTextPlain, adapterutil.TextWithAttachmentLinks(msg.Message))

	if err := a.limiter(cfg.ID, account).Wait(ctx); err != nil {
		return err
	}
	client, err := a.smtpClient(account)
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	a.logger.Info("outbound sent", slog.String("account", cfg.ID), slog.String("to", to))
	return nil
}

func (a *Adapter) smtpClient(account accountConfig) (*mail.Client, error) {
	options := []mail.Option{
		mail.WithPort(account.SMTPPort),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithUsername(account.Address),
	}
	if account.useOAuth() {
		token, err := a.accessToken(account)
		if err != nil {
			return nil, err
		}
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthXOAUTH2),
			mail.WithPassword(token))
	} else {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithPassword(account.Password))
	}
	client, err := mail.NewClient(account.SMTPHost, options...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

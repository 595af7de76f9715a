// Package inbound runs the shared intake pipeline between the channel
// adapters and the reply dispatcher. Every message walks the same
// stations regardless of channel: duplicate check, content check,
// sender policy, dispatch. Terminal outcomes short of dispatch return
// nil so providers never see an error for a message the pipeline chose
// to drop.
package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
	"github.com/ResslAI-Salesforce/dalo-2/internal/dedupe"
	"github.com/ResslAI-Salesforce/dalo-2/internal/dispatch"
	"github.com/ResslAI-Salesforce/dalo-2/internal/pairing"
	"github.com/ResslAI-Salesforce/dalo-2/internal/policy"
	"github.com/ResslAI-Salesforce/dalo-2/internal/reply"
)

// Pipeline decides what happens to each inbound message. It implements
// channel.InboundProcessor.
type Pipeline struct {
	logger     *slog.Logger
	dispatcher dispatch.Dispatcher
	pairs      *pairing.Store
	caches     *CacheSet
}

func NewPipeline(log *slog.Logger, dispatcher dispatch.Dispatcher, pairs *pairing.Store, caches *CacheSet) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if caches == nil {
		caches = NewCacheSet(channel.DedupeConfig{})
	}
	return &Pipeline{
		logger:     log.With(slog.String("component", "inbound")),
		dispatcher: dispatcher,
		pairs:      pairs,
		caches:     caches,
	}
}

func (p *Pipeline) HandleInbound(ctx context.Context, cfg channel.Config, msg channel.InboundMessage, sender channel.ReplySender) error {
	log := p.logger.With(
		slog.String("channel", msg.Channel.String()),
		slog.String("account", cfg.ID),
		slog.String("message_id", msg.Message.ID),
	)
	log.Debug("inbound received",
		slog.String("sender", msg.Sender.ExternalID),
		slog.String("preview", adapterutil.SummarizeText(msg.Message.Text)))

	key := dedupe.Key(cfg.ID, msg.Message.ID)
	if p.caches.For(cfg).CheckAndMark(key) {
		log.Debug("inbound dropped", slog.String("outcome", "duplicate"))
		return nil
	}

	text := reply.LatestContent(msg.Message.Text)
	if text == "" && len(msg.Message.Attachments) == 0 {
		log.Debug("inbound dropped", slog.String("outcome", "empty"))
		return nil
	}

	senderID := strings.TrimSpace(msg.Sender.ExternalID)
	rule := policy.Rule{Policy: p.dmPolicy(cfg, log), AllowFrom: cfg.AllowFrom}
	switch rule.Evaluate(senderID, cfg.SelfIdentity) {
	case policy.VerdictAllow:
	case policy.VerdictPair:
		if p.pairs != nil && p.pairs.Approved(cfg.ID, senderID) {
			break
		}
		return p.handlePairing(ctx, cfg, msg, sender, senderID, log)
	default:
		log.Info("inbound dropped",
			slog.String("outcome", "blocked"),
			slog.String("sender", senderID))
		return nil
	}

	return p.dispatch(ctx, cfg, msg, sender, text, log)
}

func (p *Pipeline) dispatch(ctx context.Context, cfg channel.Config, msg channel.InboundMessage, sender channel.ReplySender, text string, log *slog.Logger) error {
	req := dispatch.Request{
		AccountID:   cfg.ID,
		Channel:     msg.Channel.String(),
		BotID:       cfg.BotID,
		SessionKey:  msg.SessionKey(),
		MessageID:   msg.Message.ID,
		Sender:      msg.Sender.ExternalID,
		SenderName:  msg.Sender.DisplayName,
		Text:        text,
		Attachments: msg.Message.Attachments,
		ReceivedAt:  msg.ReceivedAt,
	}
	rep, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return fmt.Errorf("dispatch inbound: %w", err)
	}
	if strings.TrimSpace(rep.Text) == "" {
		log.Debug("inbound handled", slog.String("outcome", "done"), slog.Bool("replied", false))
		return nil
	}
	if err := p.reply(ctx, msg, sender, rep.Text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	log.Debug("inbound handled", slog.String("outcome", "done"), slog.Bool("replied", true))
	return nil
}

func (p *Pipeline) handlePairing(ctx context.Context, cfg channel.Config, msg channel.InboundMessage, sender channel.ReplySender, senderID string, log *slog.Logger) error {
	if p.pairs == nil {
		log.Info("inbound dropped",
			slog.String("outcome", "blocked"),
			slog.String("sender", senderID))
		return nil
	}
	code, created := p.pairs.Issue(cfg.ID, senderID)
	if !created {
		log.Debug("inbound dropped", slog.String("outcome", "pairing"), slog.Bool("code_sent", false))
		return nil
	}
	log.Info("pairing code issued",
		slog.String("sender", senderID),
		slog.String("code", code.Value))
	text := fmt.Sprintf("Your pairing code is %s. An operator must approve it before I can respond here.", code.Value)
	if err := p.reply(ctx, msg, sender, text); err != nil {
		return fmt.Errorf("send pairing code: %w", err)
	}
	return nil
}

// reply sends text back where msg came from, round-tripping the
// adapter's metadata and threading reference.
func (p *Pipeline) reply(ctx context.Context, msg channel.InboundMessage, sender channel.ReplySender, text string) error {
	target := strings.TrimSpace(msg.ReplyTarget)
	if target == "" {
		target = strings.TrimSpace(msg.Sender.ExternalID)
	}
	if target == "" {
		return fmt.Errorf("no reply target")
	}
	out := channel.OutboundMessage{
		Target: target,
		Message: channel.Message{
			Text:     text,
			Metadata: msg.Message.Metadata,
		},
	}
	if msg.Message.ID != "" {
		out.Message.Reply = &channel.ReplyRef{MessageID: msg.Message.ID}
	}
	return sender.Send(ctx, out)
}

func (p *Pipeline) dmPolicy(cfg channel.Config, log *slog.Logger) policy.DMPolicy {
	parsed, err := policy.ParseDMPolicy(cfg.DMPolicy)
	if err != nil {
		log.Warn("unknown dm_policy, blocking senders", slog.String("dm_policy", cfg.DMPolicy))
		return policy.PolicyDisabled
	}
	return parsed
}

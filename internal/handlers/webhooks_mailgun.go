package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/mailgun"
)

// MailgunWebhookHandler receives forwarded route posts for inbound mail.
type MailgunWebhookHandler struct {
	store   channel.ConfigStore
	manager *channel.Manager
	adapter *mailgun.Adapter
	logger  *slog.Logger
}

func NewMailgunWebhookHandler(log *slog.Logger, store channel.ConfigStore, manager *channel.Manager, adapter *mailgun.Adapter) *MailgunWebhookHandler {
	return &MailgunWebhookHandler{
		store:   store,
		manager: manager,
		adapter: adapter,
		logger:  log.With(slog.String("handler", "mailgun_webhook")),
	}
}

func (h *MailgunWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/mailgun/:account", h.Inbound)
}

// Inbound verifies the timestamp+token signature and queues the message.
// 406 tells the provider not to retry a rejected post.
func (h *MailgunWebhookHandler) Inbound(c echo.Context) error {
	cfg, err := webhookConfig(c, h.store, mailgun.Type)
	if err != nil {
		return err
	}
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !h.adapter.VerifySignature(cfg, form.Get("timestamp"), form.Get("token"), form.Get("signature")) {
		h.logger.Warn("webhook signature rejected", slog.String("account", cfg.ID))
		return echo.NewHTTPError(http.StatusNotAcceptable, "invalid signature")
	}

	msg, err := h.adapter.ParseWebhook(cfg, form)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotAcceptable, err.Error())
	}
	if err := h.manager.HandleInbound(c.Request().Context(), cfg, msg); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/twilio"
)

// emptyTwiML acknowledges the message without sending an immediate
// reply; replies go out through the Messages API once dispatched.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioWebhookHandler receives inbound SMS/MMS posts.
type TwilioWebhookHandler struct {
	store   channel.ConfigStore
	manager *channel.Manager
	adapter *twilio.Adapter
	logger  *slog.Logger
}

func NewTwilioWebhookHandler(log *slog.Logger, store channel.ConfigStore, manager *channel.Manager, adapter *twilio.Adapter) *TwilioWebhookHandler {
	return &TwilioWebhookHandler{
		store:   store,
		manager: manager,
		adapter: adapter,
		logger:  log.With(slog.String("handler", "twilio_webhook")),
	}
}

func (h *TwilioWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/twilio/:account", h.Inbound)
}

// Inbound verifies the provider signature, normalizes the message, and
// queues it for processing. The response is empty TwiML either way.
func (h *TwilioWebhookHandler) Inbound(c echo.Context) error {
	cfg, err := webhookConfig(c, h.store, twilio.Type)
	if err != nil {
		return err
	}
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req := c.Request()
	fullURL := h.adapter.WebhookURL(cfg, c.Scheme()+"://"+req.Host+req.RequestURI, req.URL.Path)
	signature := req.Header.Get("X-Twilio-Signature")
	if !h.adapter.VerifySignature(cfg, fullURL, form, signature) {
		h.logger.Warn("webhook signature rejected", slog.String("account", cfg.ID))
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	msg, err := h.adapter.ParseWebhook(cfg, form)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.manager.HandleInbound(req.Context(), cfg, msg); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

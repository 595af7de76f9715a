package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/vapi"
)

// maxVapiBody bounds webhook payloads; end-of-call reports with full
// transcripts stay well under this.
const maxVapiBody = 1 << 20

// VapiWebhookHandler receives server messages from the voice provider.
type VapiWebhookHandler struct {
	store   channel.ConfigStore
	manager *channel.Manager
	adapter *vapi.Adapter
	logger  *slog.Logger
}

func NewVapiWebhookHandler(log *slog.Logger, store channel.ConfigStore, manager *channel.Manager, adapter *vapi.Adapter) *VapiWebhookHandler {
	return &VapiWebhookHandler{
		store:   store,
		manager: manager,
		adapter: adapter,
		logger:  log.With(slog.String("handler", "vapi_webhook")),
	}
}

func (h *VapiWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/vapi/:account", h.Inbound)
}

// Inbound verifies the shared webhook secret and queues end-of-call
// reports; other server message types are acknowledged and dropped.
func (h *VapiWebhookHandler) Inbound(c echo.Context) error {
	cfg, err := webhookConfig(c, h.store, vapi.Type)
	if err != nil {
		return err
	}
	if !h.adapter.VerifySecret(cfg, c.Request().Header.Get("x-vapi-secret")) {
		h.logger.Warn("webhook secret rejected", slog.String("account", cfg.ID))
		return echo.NewHTTPError(http.StatusForbidden, "invalid secret")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxVapiBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, deliverable, err := h.adapter.ParseWebhook(cfg, body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !deliverable {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if err := h.manager.HandleInbound(c.Request().Context(), cfg, msg); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}

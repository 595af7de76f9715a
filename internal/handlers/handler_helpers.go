package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// webhookConfig resolves the :account path param to an enabled account
// of the expected channel type. Lookup failures are reported uniformly
// so the response does not leak which accounts exist.
func webhookConfig(c echo.Context, store channel.ConfigStore, want channel.Type) (channel.Config, error) {
	cfg, ok := store.GetConfig(c.Request().Context(), c.Param("account"))
	if !ok || cfg.Type != want || !cfg.Enabled {
		return channel.Config{}, echo.NewHTTPError(http.StatusNotFound, "unknown account")
	}
	return cfg, nil
}

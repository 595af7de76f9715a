package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/inbound"
	"github.com/ResslAI-Salesforce/dalo-2/internal/pairing"
)

// AccountsHandler serves account status and drives pairing approval.
type AccountsHandler struct {
	store   channel.ConfigStore
	manager *channel.Manager
	caches  *inbound.CacheSet
	pairs   *pairing.Store
	logger  *slog.Logger
}

// AccountStatus is one account's runtime view: config summary plus
// connection and pipeline state.
type AccountStatus struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Channel      string `json:"channel"`
	Enabled      bool   `json:"enabled"`
	BotID        string `json:"bot_id,omitempty"`
	DMPolicy     string `json:"dm_policy,omitempty"`
	Connected    bool   `json:"connected"`
	DedupeSize   int    `json:"dedupe_size"`
	PendingCodes int    `json:"pending_codes"`
}

// AccountsResponse is the body for GET /accounts.
type AccountsResponse struct {
	Accounts []AccountStatus `json:"accounts"`
}

// ApproveResponse is the body for a successful pairing approval.
type ApproveResponse struct {
	Account   string `json:"account"`
	Sender    string `json:"sender"`
	Code      string `json:"code"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

func NewAccountsHandler(log *slog.Logger, store channel.ConfigStore, manager *channel.Manager, caches *inbound.CacheSet, pairs *pairing.Store) *AccountsHandler {
	return &AccountsHandler{
		store:   store,
		manager: manager,
		caches:  caches,
		pairs:   pairs,
		logger:  log.With(slog.String("handler", "accounts")),
	}
}

func (h *AccountsHandler) Register(e *echo.Echo) {
	e.GET("/accounts", h.ListAccounts)
	e.GET("/accounts/:id", h.GetAccount)
	e.POST("/accounts/:id/pairing/:code/approve", h.ApprovePairing)
}

// ListAccounts returns the status of every configured account.
func (h *AccountsHandler) ListAccounts(c echo.Context) error {
	configs, err := h.store.ListConfigs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	running := map[string]bool{}
	for _, conn := range h.manager.Connections() {
		running[conn.AccountID] = conn.Running
	}

	statuses := make([]AccountStatus, 0, len(configs))
	for _, cfg := range configs {
		statuses = append(statuses, h.status(cfg, running[cfg.ID]))
	}
	return c.JSON(http.StatusOK, AccountsResponse{Accounts: statuses})
}

// GetAccount returns the status of one account.
func (h *AccountsHandler) GetAccount(c echo.Context) error {
	cfg, ok := h.store.GetConfig(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}

	connected := false
	for _, conn := range h.manager.Connections() {
		if conn.AccountID == cfg.ID {
			connected = conn.Running
			break
		}
	}
	return c.JSON(http.StatusOK, h.status(cfg, connected))
}

// ApprovePairing marks a pairing code approved so its sender passes the
// allowlist check from the next message on.
func (h *AccountsHandler) ApprovePairing(c echo.Context) error {
	cfg, ok := h.store.GetConfig(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}

	code, err := h.pairs.Approve(cfg.ID, c.Param("code"))
	if err != nil {
		if errors.Is(err, pairing.ErrCodeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "pairing code not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.logger.Info("pairing approved",
		slog.String("account", cfg.ID),
		slog.String("sender", code.Sender))
	return c.JSON(http.StatusOK, ApproveResponse{
		Account:   code.AccountID,
		Sender:    code.Sender,
		Code:      code.Value,
		IssuedAt:  code.IssuedAt.Format(time.RFC3339),
		ExpiresAt: code.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *AccountsHandler) status(cfg channel.Config, connected bool) AccountStatus {
	return AccountStatus{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Channel:      cfg.Type.String(),
		Enabled:      cfg.Enabled,
		BotID:        cfg.BotID,
		DMPolicy:     cfg.DMPolicy,
		Connected:    connected,
		DedupeSize:   h.caches.Size(cfg.ID),
		PendingCodes: h.pairs.Pending(cfg.ID),
	}
}

package handlers

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// ChannelsHandler serves the adapter descriptors and credential schemas.
type ChannelsHandler struct {
	registry *channel.Registry
}

// ChannelsResponse is the body for GET /channels.
type ChannelsResponse struct {
	Channels []channel.Descriptor `json:"channels"`
}

func NewChannelsHandler(registry *channel.Registry) *ChannelsHandler {
	return &ChannelsHandler{registry: registry}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	e.GET("/channels", h.ListChannels)
	e.GET("/channels/:type", h.GetChannel)
}

// ListChannels returns every registered adapter's descriptor.
func (h *ChannelsHandler) ListChannels(c echo.Context) error {
	descriptors := h.registry.ListDescriptors()
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Type < descriptors[j].Type
	})
	return c.JSON(http.StatusOK, ChannelsResponse{Channels: descriptors})
}

// GetChannel returns one adapter's descriptor.
func (h *ChannelsHandler) GetChannel(c echo.Context) error {
	channelType, err := h.registry.ParseType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	descriptor, ok := h.registry.GetDescriptor(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown channel type")
	}
	return c.JSON(http.StatusOK, descriptor)
}

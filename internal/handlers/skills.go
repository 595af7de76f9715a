package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ResslAI-Salesforce/dalo-2/internal/skills"
)

// SkillsHandler serves the loaded skill documents.
type SkillsHandler struct {
	library *skills.Library
}

// SkillsResponse is the body for GET /skills.
type SkillsResponse struct {
	Skills []skills.Skill `json:"skills"`
}

func NewSkillsHandler(library *skills.Library) *SkillsHandler {
	return &SkillsHandler{library: library}
}

func (h *SkillsHandler) Register(e *echo.Echo) {
	e.GET("/skills", h.ListSkills)
	e.GET("/skills/:name", h.GetSkill)
}

// ListSkills returns all skills, optionally filtered by ?channel=.
func (h *SkillsHandler) ListSkills(c echo.Context) error {
	var items []skills.Skill
	if channelType := c.QueryParam("channel"); channelType != "" {
		items = h.library.ForChannel(channelType)
	} else {
		items = h.library.List()
	}
	return c.JSON(http.StatusOK, SkillsResponse{Skills: items})
}

// GetSkill returns one skill as JSON, or rendered HTML with
// ?format=html.
func (h *SkillsHandler) GetSkill(c echo.Context) error {
	name := c.Param("name")
	if c.QueryParam("format") == "html" {
		html, err := h.library.RenderHTML(name)
		if err != nil {
			if errors.Is(err, skills.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "skill not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.HTMLBlob(http.StatusOK, html)
	}

	skill, err := h.library.Get(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	return c.JSON(http.StatusOK, skill)
}

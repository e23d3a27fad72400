package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler exposes the handoff commands over REST. The socket gateway
// offers the same commands; both go through the one controller.
type AdminHandler struct {
	handoff Handoff
	log     zerolog.Logger
}

func NewAdminHandler(handoff Handoff, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{handoff: handoff, log: log}
}

func (h *AdminHandler) RegisterRoutes(conv *gin.RouterGroup) {
	conv.GET("/ownership", h.GetOwnership)
	conv.PUT("/bot-enabled", h.SetBotEnabled)
	conv.POST("/takeover", h.TakeOver)
	conv.POST("/release", h.Release)
}

func (h *AdminHandler) GetOwnership(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	state, err := h.handoff.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *AdminHandler) SetBotEnabled(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	state, err := h.handoff.SetBotEnabled(c.Request.Context(), userID, *payload.Enabled, c.GetString(ctxAdminID))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *AdminHandler) TakeOver(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	state, err := h.handoff.TakeOver(c.Request.Context(), userID, c.GetString(ctxAdminID))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *AdminHandler) Release(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	state, err := h.handoff.Release(c.Request.Context(), userID, c.GetString(ctxAdminID))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

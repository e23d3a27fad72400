package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"project_handoff/internal/entities"
)

// Config
func (h *Handler) GetAllConfigs(c *gin.Context) {
	configs, err := h.settings.GetAllConfigs(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *Handler) SetConfig(c *gin.Context) {
	var payload struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if !ValidConfigKey(payload.Key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config key"})
		return
	}
	if !ValidateLength(payload.Value, 0, MaxConfigValLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Config value too long"})
		return
	}
	payload.Value = SanitizeString(payload.Value)

	if err := h.settings.SetConfig(c.Request.Context(), payload.Key, payload.Value); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Menus
func (h *Handler) GetAllMenus(c *gin.Context) {
	menus, err := h.settings.GetAllMenus(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, menus)
}

func (h *Handler) GetMenu(c *gin.Context) {
	slug := c.Param("slug")
	if !ValidSlug(slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid menu slug"})
		return
	}
	menu, err := h.settings.GetMenu(c.Request.Context(), slug)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if menu == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
		return
	}
	c.JSON(http.StatusOK, menu)
}

type menuPayload struct {
	Slug  string          `json:"slug"`
	Title string          `json:"title"`
	Items json.RawMessage `json:"items"`
}

// validate checks the payload and normalizes its title.
func (m *menuPayload) validate() string {
	if !ValidSlug(m.Slug) {
		return "Invalid slug format"
	}
	if !ValidateLength(m.Title, 1, MaxTitleLength) {
		return "Invalid title length"
	}
	if len(m.Items) == 0 {
		m.Items = json.RawMessage("[]")
	}
	var items []entities.MenuItem
	if err := json.Unmarshal(m.Items, &items); err != nil {
		return "Items must be a list of {label, action, payload}"
	}
	m.Title = SanitizeString(m.Title)
	return ""
}

func (h *Handler) CreateMenu(c *gin.Context) {
	var m menuPayload
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.saveMenu(c, m, http.StatusCreated)
}

func (h *Handler) UpdateMenu(c *gin.Context) {
	var m menuPayload
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	m.Slug = c.Param("slug")
	h.saveMenu(c, m, http.StatusOK)
}

func (h *Handler) saveMenu(c *gin.Context, m menuPayload, status int) {
	if msg := m.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	menu := &entities.Menu{Slug: m.Slug, Title: m.Title, Items: m.Items}
	if err := h.settings.SaveMenu(c.Request.Context(), menu); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, menu)
}

func (h *Handler) DeleteMenu(c *gin.Context) {
	slug := c.Param("slug")
	if !ValidSlug(slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid menu slug"})
		return
	}
	if err := h.settings.DeleteMenu(c.Request.Context(), slug); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
	"project_handoff/internal/timeline"
	"project_handoff/internal/usecases"
)

// sendTimeout bounds an admin send once it no longer follows the request.
const sendTimeout = 10 * time.Second

// Authenticator logs admins in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Conversations serves history and admin-authored messages.
type Conversations interface {
	History(ctx context.Context, userID string, limit int) (usecases.History, error)
	SendAsAdmin(ctx context.Context, userID, adminID, text string) (entities.Turn, error)
}

// Handoff is the ownership command surface.
type Handoff interface {
	Get(ctx context.Context, userID string) (entities.OwnershipState, error)
	TakeOver(ctx context.Context, userID, adminID string) (entities.OwnershipState, error)
	Release(ctx context.Context, userID, adminID string) (entities.OwnershipState, error)
	SetBotEnabled(ctx context.Context, userID string, enabled bool, actor string) (entities.OwnershipState, error)
}

// Stats reads the aggregate counters.
type Stats interface {
	Snapshot(ctx context.Context) (entities.StatsSnapshot, error)
}

// BotSettings is the bot_config and menus store.
type BotSettings interface {
	GetAllConfigs(ctx context.Context) ([]entities.BotConfig, error)
	SetConfig(ctx context.Context, key, value string) error
	GetAllMenus(ctx context.Context) ([]entities.Menu, error)
	GetMenu(ctx context.Context, slug string) (*entities.Menu, error)
	SaveMenu(ctx context.Context, m *entities.Menu) error
	DeleteMenu(ctx context.Context, slug string) error
}

type Handler struct {
	auth          Authenticator
	conversations Conversations
	stats         Stats
	settings      BotSettings
	log           zerolog.Logger
}

func NewHandler(auth Authenticator, conversations Conversations, stats Stats, settings BotSettings, log zerolog.Logger) *Handler {
	return &Handler{
		auth:          auth,
		conversations: conversations,
		stats:         stats,
		settings:      settings,
		log:           log,
	}
}

// SetupRoutes wires the admin backend. ws is the socket gateway endpoint; it
// authenticates on its own because browsers cannot set headers on upgrades.
func SetupRoutes(r *gin.Engine, h *Handler, admin *AdminHandler, middleware *Middleware, ws gin.HandlerFunc) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(middleware.CORSMiddleware())
	r.Use(RequestLogger(h.log))

	r.GET("/ws", ws)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.POST("/api/auth/login", h.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerAdmin())
	{
		api.GET("/stats", h.GetStats)

		conv := api.Group("/conversations/:userId")
		conv.GET("/history", h.GetHistory)
		conv.POST("/messages", h.SendMessage)
		admin.RegisterRoutes(conv)

		api.GET("/config", h.GetAllConfigs)
		api.POST("/config", h.SetConfig)

		api.GET("/menus", h.GetAllMenus)
		api.GET("/menus/:slug", h.GetMenu)
		api.POST("/menus", h.CreateMenu)
		api.PUT("/menus/:slug", h.UpdateMenu)
		api.DELETE("/menus/:slug", h.DeleteMenu)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
	if err != nil {
		if errors.Is(err, usecases.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	history, err := h.conversations.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// SendMessage commits an admin message. Viewers receive it over the socket;
// the response carries the committed turn for the sender's own view.
func (h *Handler) SendMessage(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// A client that disconnects must not abort a commit in flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), sendTimeout)
	defer cancel()
	turn, err := h.conversations.SendAsAdmin(ctx, userID, c.GetString(ctxAdminID), payload.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"turn": turn, "events": timeline.Split(turn)})
}

func (h *Handler) GetStats(c *gin.Context) {
	snap, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func userIDParam(c *gin.Context) (string, bool) {
	userID := c.Param("userId")
	if !ValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return "", false
	}
	return userID, true
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	writeError(c, h.log, err)
}

func writeError(c *gin.Context, log zerolog.Logger, err error) {
	var conflict *entities.ConflictError
	var persistence *entities.PersistenceError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "heldBy": conflict.HeldBy})
	case errors.Is(err, entities.ErrEmptyMessage), errors.Is(err, entities.ErrMessageTooLong), errors.Is(err, entities.ErrMissingUserID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, entities.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.As(err, &persistence):
		log.Error().Err(err).Str("path", c.FullPath()).Msg("persistence failure")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

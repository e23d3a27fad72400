package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"project_handoff/internal/entities"
	"project_handoff/internal/gateway"
)

// QRSource is a channel that pairs by scanning a QR code.
type QRSource interface {
	QR() string
	IsConnected() bool
}

// PendingCounter reports frames not yet acknowledged by the gateway.
type PendingCounter interface {
	Pending() int
}

// MetricsSource reads the worker's counters.
type MetricsSource interface {
	Snapshot() entities.WorkerMetrics
}

// WorkerHandler serves the worker's small operational surface.
type WorkerHandler struct {
	serviceToken string
	channels     []string
	whatsapp     QRSource
	gateway      PendingCounter
	metrics      MetricsSource
}

// NewWorkerHandler builds the handler. whatsapp may be nil when the channel
// is disabled.
func NewWorkerHandler(serviceToken string, channels []string, whatsapp QRSource, gw PendingCounter, metrics MetricsSource) *WorkerHandler {
	return &WorkerHandler{
		serviceToken: serviceToken,
		channels:     channels,
		whatsapp:     whatsapp,
		gateway:      gw,
		metrics:      metrics,
	}
}

func (h *WorkerHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	ops := r.Group("/")
	ops.Use(h.serviceAuth())
	ops.GET("/metrics", h.Metrics)
	ops.GET("/whatsapp/qr", h.WhatsAppQR)
	ops.GET("/whatsapp/status", h.WhatsAppStatus)
}

func (h *WorkerHandler) serviceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !gateway.TokensEqual(h.serviceToken, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *WorkerHandler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok", "channels": h.channels}
	if h.gateway != nil {
		resp["gatewayPending"] = h.gateway.Pending()
	}
	if h.whatsapp != nil {
		resp["whatsappConnected"] = h.whatsapp.IsConnected()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WorkerHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, entities.WorkerMetrics{})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// WhatsAppQR returns the pairing QR code as a PNG.
func (h *WorkerHandler) WhatsAppQR(c *gin.Context) {
	if h.whatsapp == nil {
		c.String(http.StatusServiceUnavailable, "WhatsApp not configured")
		return
	}

	code := h.whatsapp.QR()
	if code == "" {
		if h.whatsapp.IsConnected() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *WorkerHandler) WhatsAppStatus(c *gin.Context) {
	if h.whatsapp == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "connected": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "connected": h.whatsapp.IsConnected()})
}

package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"project_handoff/internal/entities"
)

type stubQR struct {
	code      string
	connected bool
}

func (s stubQR) QR() string        { return s.code }
func (s stubQR) IsConnected() bool { return s.connected }

type stubPending int

func (p stubPending) Pending() int { return int(p) }

type stubMetrics struct{}

func (stubMetrics) Snapshot() entities.WorkerMetrics { return entities.WorkerMetrics{AutoReplies: 4} }

func serveWorker(h *WorkerHandler, path, token string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWorkerHealth(t *testing.T) {
	h := NewWorkerHandler("svc", []string{"telegram"}, stubQR{connected: true}, stubPending(3), stubMetrics{})
	w := serveWorker(h, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, want := range []string{`"gatewayPending":3`, `"whatsappConnected":true`, `"telegram"`} {
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("body %s missing %s", w.Body.String(), want)
		}
	}
}

func TestWorkerOpsRequireServiceToken(t *testing.T) {
	h := NewWorkerHandler("svc", nil, nil, nil, stubMetrics{})
	if w := serveWorker(h, "/metrics", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	w := serveWorker(h, "/metrics", "svc")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"autoReplies":4`) {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}

func TestWhatsAppQR(t *testing.T) {
	tests := []struct {
		name        string
		source      QRSource
		want        int
		contentType string
	}{
		{"disabled", nil, http.StatusServiceUnavailable, "text/plain"},
		{"waiting", stubQR{}, http.StatusAccepted, "text/plain"},
		{"paired", stubQR{connected: true}, http.StatusOK, "text/plain"},
		{"pending code", stubQR{code: "2@abc,def,ghi"}, http.StatusOK, "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWorkerHandler("svc", nil, tt.source, nil, nil)
			w := serveWorker(h, "/whatsapp/qr", "svc")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Fatalf("content type = %q", ct)
			}
		})
	}
}

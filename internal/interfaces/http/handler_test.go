package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"project_handoff/internal/entities"
	"project_handoff/internal/infrastructure"
	"project_handoff/internal/usecases"
)

type fakeTokens map[string]string

func (f fakeTokens) ParseToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", entities.ErrUnauthorized
}

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, username, password string) (string, error) {
	if username == "root" && password == "secret" {
		return "tok-root", nil
	}
	return "", usecases.ErrInvalidCredentials
}

type fakeConversations struct {
	mu     sync.Mutex
	sent   []string
	fail   error
	ctxErr error
}

func (f *fakeConversations) History(_ context.Context, userID string, limit int) (usecases.History, error) {
	return usecases.History{Ownership: entities.DefaultOwnership(userID)}, nil
}

func (f *fakeConversations) SendAsAdmin(ctx context.Context, userID, adminID, text string) (entities.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if f.fail != nil {
		return entities.Turn{}, f.fail
	}
	f.sent = append(f.sent, adminID+":"+text)
	turn := entities.NewAdminTurn(userID, adminID, text, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	turn.ID = 7
	return turn, nil
}

type fakeHandoff struct {
	state entities.OwnershipState
	err   error
}

func (f *fakeHandoff) Get(_ context.Context, userID string) (entities.OwnershipState, error) {
	return entities.DefaultOwnership(userID), nil
}

func (f *fakeHandoff) TakeOver(_ context.Context, userID, adminID string) (entities.OwnershipState, error) {
	if f.err != nil {
		return entities.OwnershipState{}, f.err
	}
	s := entities.DefaultOwnership(userID)
	s.AdminTakeover = true
	s.AdminTakeoverBy = &adminID
	return s, nil
}

func (f *fakeHandoff) Release(_ context.Context, userID, _ string) (entities.OwnershipState, error) {
	return entities.DefaultOwnership(userID), f.err
}

func (f *fakeHandoff) SetBotEnabled(_ context.Context, userID string, enabled bool, _ string) (entities.OwnershipState, error) {
	s := entities.DefaultOwnership(userID)
	s.BotEnabled = enabled
	return s, f.err
}

type fakeStats struct{}

func (fakeStats) Snapshot(context.Context) (entities.StatsSnapshot, error) {
	return entities.StatsSnapshot{Day: "2024-03-01", MessagesToday: 3}, nil
}

type fakeSettings struct {
	mu      sync.Mutex
	configs map[string]string
	menus   map[string]entities.Menu
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{configs: map[string]string{}, menus: map[string]entities.Menu{}}
}

func (f *fakeSettings) GetAllConfigs(context.Context) ([]entities.BotConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.BotConfig
	for k, v := range f.configs {
		out = append(out, entities.BotConfig{Key: k, Value: v})
	}
	return out, nil
}

func (f *fakeSettings) SetConfig(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[key] = value
	return nil
}

func (f *fakeSettings) GetAllMenus(context.Context) ([]entities.Menu, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Menu
	for _, m := range f.menus {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeSettings) GetMenu(_ context.Context, slug string) (*entities.Menu, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.menus[slug]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeSettings) SaveMenu(_ context.Context, m *entities.Menu) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus[m.Slug] = *m
	return nil
}

func (f *fakeSettings) DeleteMenu(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.menus, slug)
	return nil
}

type fixture struct {
	router   *gin.Engine
	conv     *fakeConversations
	handoff  *fakeHandoff
	settings *fakeSettings
}

func newFixture(limit rate.Limit, burst int) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		conv:     &fakeConversations{},
		handoff:  &fakeHandoff{},
		settings: newFakeSettings(),
	}
	log := zerolog.Nop()
	h := NewHandler(fakeAuth{}, f.conv, fakeStats{}, f.settings, log)
	admin := NewAdminHandler(f.handoff, log)
	mw := NewMiddleware(fakeTokens{"tok-alice": "alice"}, infrastructure.NewMessageRateLimiter(limit, burst))

	f.router = gin.New()
	SetupRoutes(f.router, h, admin, mw, func(c *gin.Context) { c.Status(http.StatusTeapot) })
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"username":"root","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"root","password":"nope"}`, http.StatusUnauthorized},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/auth/login", "", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	if w := f.do(http.MethodGet, "/api/stats", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/stats", "tok-mallory", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/api/stats", "tok-alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap entities.StatsSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil || snap.MessagesToday != 3 {
		t.Fatalf("snapshot = %+v, %v", snap, err)
	}
}

func TestWebSocketRouteIsPublic(t *testing.T) {
	f := newFixture(rate.Inf, 1)
	if w := f.do(http.MethodGet, "/ws", "", ""); w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want the gateway handler", w.Code)
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	w := f.do(http.MethodPost, "/api/conversations/telegram:42/messages", "tok-alice", `{"message":"hello there"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Turn   entities.Turn    `json:"turn"`
		Events []entities.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Turn.ID != 7 || len(resp.Events) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := f.conv.sent; len(got) != 1 || got[0] != "alice:hello there" {
		t.Fatalf("sent = %v", got)
	}
}

func TestSendMessageOutlivesClientDisconnect(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/telegram:42/messages", strings.NewReader(`{"message":"hello"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	f.conv.mu.Lock()
	defer f.conv.mu.Unlock()
	if f.conv.ctxErr != nil {
		t.Fatalf("send ran with a cancelled context: %v", f.conv.ctxErr)
	}
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		fail error
		want int
	}{
		{"bad user id", "/api/conversations/nope/messages", `{"message":"x"}`, nil, http.StatusBadRequest},
		{"empty", "/api/conversations/telegram:42/messages", `{"message":""}`, entities.ErrEmptyMessage, http.StatusBadRequest},
		{"too long", "/api/conversations/telegram:42/messages", `{"message":"` + strings.Repeat("a", entities.MaxMessageLength+1) + `"}`, entities.ErrMessageTooLong, http.StatusBadRequest},
		{"blank after trim", "/api/conversations/telegram:42/messages", `{"message":"  "}`, entities.ErrEmptyMessage, http.StatusBadRequest},
		{"store down", "/api/conversations/telegram:42/messages", `{"message":"x"}`, &entities.PersistenceError{Op: "insert_turn", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{"unexpected", "/api/conversations/telegram:42/messages", `{"message":"x"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(rate.Inf, 1)
			f.conv.fail = tt.fail
			w := f.do(http.MethodPost, tt.path, "tok-alice", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(rate.Inf, 1)
	w := f.do(http.MethodGet, "/api/conversations/whatsapp:628123/history?limit=20", "tok-alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var h usecases.History
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Ownership.UserID != "whatsapp:628123" || !h.Ownership.BotEnabled {
		t.Fatalf("ownership = %+v", h.Ownership)
	}
}

func TestOwnershipRoutes(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	w := f.do(http.MethodPost, "/api/conversations/telegram:42/takeover", "tok-alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("takeover status = %d", w.Code)
	}
	var state entities.OwnershipState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.HeldBy() != "alice" {
		t.Fatalf("held by %q", state.HeldBy())
	}

	if w := f.do(http.MethodPut, "/api/conversations/telegram:42/bot-enabled", "tok-alice", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing enabled: status = %d", w.Code)
	}
	w = f.do(http.MethodPut, "/api/conversations/telegram:42/bot-enabled", "tok-alice", `{"enabled":false}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"botEnabled":false`) {
		t.Fatalf("bot-enabled: %d %s", w.Code, w.Body.String())
	}

	f.handoff.err = &entities.ConflictError{UserID: "telegram:42", HeldBy: "bob"}
	w = f.do(http.MethodPost, "/api/conversations/telegram:42/takeover", "tok-alice", "")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), `"heldBy":"bob"`) {
		t.Fatalf("conflict: %d %s", w.Code, w.Body.String())
	}
}

func TestConfigAndMenus(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	if w := f.do(http.MethodPost, "/api/config", "tok-alice", `{"key":"Bad Key","value":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad key: status = %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/config", "tok-alice", `{"key":"welcome_message","value":"Hi!"}`); w.Code != http.StatusOK {
		t.Fatalf("set config: status = %d", w.Code)
	}
	if f.settings.configs["welcome_message"] != "Hi!" {
		t.Fatalf("configs = %v", f.settings.configs)
	}

	body := `{"slug":"prices","title":"Prices","items":[{"label":"Basic","action":"reply","payload":"10k"}]}`
	if w := f.do(http.MethodPost, "/api/menus", "tok-alice", body); w.Code != http.StatusCreated {
		t.Fatalf("create menu: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodPost, "/api/menus", "tok-alice", `{"slug":"x","title":"X","items":{"a":1}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad items: status = %d", w.Code)
	}

	w := f.do(http.MethodGet, "/api/menus/prices", "tok-alice", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Basic") {
		t.Fatalf("get menu: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(http.MethodPut, "/api/menus/prices", "tok-alice", `{"title":"All prices"}`); w.Code != http.StatusOK {
		t.Fatalf("update menu: status = %d", w.Code)
	}
	if got := f.settings.menus["prices"]; got.Title != "All prices" || string(got.Items) != "[]" {
		t.Fatalf("menu = %+v", got)
	}

	if w := f.do(http.MethodDelete, "/api/menus/prices", "tok-alice", ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/menus/prices", "tok-alice", ""); w.Code != http.StatusNotFound {
		t.Fatalf("after delete: status = %d", w.Code)
	}
}

func TestRateLimitPerAdmin(t *testing.T) {
	f := newFixture(rate.Every(time.Hour), 2)

	for i := 0; i < 2; i++ {
		if w := f.do(http.MethodGet, "/api/stats", "tok-alice", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if w := f.do(http.MethodGet, "/api/stats", "tok-alice", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	f := newFixture(rate.Inf, 1)

	w := f.do(http.MethodOptions, "/api/stats", "", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("headers = %v", w.Header())
	}
}

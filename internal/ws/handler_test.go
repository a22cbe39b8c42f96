package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

type stubAuth struct {
	user *domain.User
	err  error
}

func (s *stubAuth) VerifyAccessToken(ctx context.Context, token string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.user != nil {
		return s.user, nil
	}
	return nil, domain.ErrInvalidToken
}

type wsTestServer struct {
	srv      *httptest.Server
	registry *Registry
}

func newWSTestServer(t *testing.T, chat *stubChat, auth *stubAuth) *wsTestServer {
	return newWSTestServerLimit(t, chat, auth, 16)
}

func newWSTestServerLimit(t *testing.T, chat *stubChat, auth *stubAuth, maxConns int) *wsTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.WebSocket = config.WebSocketConfig{
		HeartbeatInterval: 30,
		HeartbeatTimeout:  60,
		WriteWait:         1,
		MaxMessageBytes:   65536,
		MaxConnections:    maxConns,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	}

	logger := zap.NewNop()
	registry := NewRegistry(cfg.WebSocket, logger)
	router := NewRouter(context.Background(), registry, chat, &stubRoles{}, logger)
	handler := NewHandler(cfg, registry, router, auth, chat, logger)

	engine := gin.New()
	handler.RegisterRoutes(engine.Group("/ws"))

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &wsTestServer{srv: srv, registry: registry}
}

func (ts *wsTestServer) url(path string) string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + path
}

func (ts *wsTestServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.url(path), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestConnectGreetsGuest(t *testing.T) {
	ts := newWSTestServer(t, &stubChat{}, &stubAuth{})
	conn := ts.dial(t, "/ws/chat")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)
	require.Equal(t, KindConnectionEstablished, greeting.Type)
	require.NotEmpty(t, greeting.ConnectionID)
	require.Equal(t, "guest", greeting.ConnectionType)
	require.Empty(t, greeting.SessionID)
	require.Equal(t, 1, ts.registry.Count())
}

func TestConnectAnswersPing(t *testing.T) {
	ts := newWSTestServer(t, &stubChat{}, &stubAuth{})
	conn := ts.dial(t, "/ws/chat")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	var pong Signal
	readEvent(t, conn, &pong)
	require.Equal(t, KindPong, pong.Type)
}

func TestConnectRejectsUnknownSession(t *testing.T) {
	chat := &stubChat{getErr: domain.ErrSessionNotFound}
	ts := newWSTestServer(t, chat, &stubAuth{})

	// The upgrade itself succeeds; the refusal arrives as a close frame.
	conn, resp, err := websocket.DefaultDialer.Dial(ts.url("/ws/chat/sess-missing"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, CloseSessionNotFound))
	require.Equal(t, 0, ts.registry.Count())
}

func TestConnectRejectsBadToken(t *testing.T) {
	ts := newWSTestServer(t, &stubChat{}, &stubAuth{err: domain.ErrInvalidToken})

	conn, resp, err := websocket.DefaultDialer.Dial(ts.url("/ws/chat?token=garbage"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, CloseAuthFailed))
	require.Equal(t, 0, ts.registry.Count())
}

func TestConnectAuthenticatedUser(t *testing.T) {
	auth := &stubAuth{user: &domain.User{ID: "user-1", Username: "ann", IsActive: true}}
	ts := newWSTestServer(t, &stubChat{}, auth)
	conn := ts.dial(t, "/ws/chat?token=valid-token")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)
	require.Equal(t, "user", greeting.ConnectionType)
	require.Equal(t, []string{greeting.ConnectionID}, ts.registry.ConnectionsForUser("user-1"))
}

func TestConnectSessionBindsSubscription(t *testing.T) {
	ts := newWSTestServer(t, &stubChat{}, &stubAuth{})
	conn := ts.dial(t, "/ws/chat/sess-1")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)
	require.Equal(t, "sess-1", greeting.SessionID)
	require.Equal(t, []string{greeting.ConnectionID}, ts.registry.ConnectionsForSession("sess-1"))
}

func TestChatRoundTripOverSocket(t *testing.T) {
	chat := &stubChat{resp: &domain.ChatResponse{
		SessionID:  "sess-1",
		MessageID:  "msg-ai",
		RoleName:   "Smart Assistant",
		Content:    "hello back",
		TokensUsed: 3,
	}}
	ts := newWSTestServer(t, chat, &stubAuth{})
	conn := ts.dial(t, "/ws/chat/sess-1")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)

	frame := `{"type":"chat_message","data":{"session_id":"sess-1","role_id":"r1","message":"hi"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	var event ChatResponseEvent
	readEvent(t, conn, &event)
	require.Equal(t, KindChatResponse, event.Type)
	require.Equal(t, "hello back", event.Data.Content)
	require.Equal(t, "msg-ai", event.Data.AIMessageID)
	require.Equal(t, 3, event.Data.TokensUsed)
}

func TestClientCloseUnregisters(t *testing.T) {
	ts := newWSTestServer(t, &stubChat{}, &stubAuth{})
	conn := ts.dial(t, "/ws/chat")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)
	require.Equal(t, 1, ts.registry.Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return ts.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestConnectionLimitRefusesBeforeUpgrade(t *testing.T) {
	ts := newWSTestServerLimit(t, &stubChat{}, &stubAuth{}, 1)
	conn := ts.dial(t, "/ws/chat")

	var greeting ConnectionEstablished
	readEvent(t, conn, &greeting)

	_, resp, err := websocket.DefaultDialer.Dial(ts.url("/ws/chat"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, 1, ts.registry.Count())
}

func newAdminTestHandler(t *testing.T) (*Registry, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.WebSocket = testConfig()

	logger := zap.NewNop()
	registry := NewRegistry(cfg.WebSocket, logger)
	router := NewRouter(context.Background(), registry, &stubChat{}, &stubRoles{}, logger)
	h := NewHandler(cfg, registry, router, &stubAuth{}, &stubChat{}, logger)

	engine := gin.New()
	engine.GET("/stats", h.Stats)
	engine.GET("/connections/:connection_id", h.ConnectionInfo)
	engine.DELETE("/connections/:connection_id", h.Disconnect)
	engine.POST("/broadcast", h.Broadcast)
	return registry, engine
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAdminStats(t *testing.T) {
	registry, engine := newAdminTestHandler(t)
	mustRegister(t, registry, "user-1", "sess-1")
	mustRegister(t, registry, "", "sess-1")

	rec := do(engine, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.TotalConnections)
	require.Equal(t, 1, stats.AuthenticatedConnections)
	require.Equal(t, 1, stats.GuestConnections)
	require.Equal(t, 1, stats.ActiveSessions)
	require.Equal(t, 1, stats.UniqueUsers)
}

func TestAdminConnectionInfo(t *testing.T) {
	registry, engine := newAdminTestHandler(t)
	conn, _ := mustRegister(t, registry, "user-1", "sess-1")

	rec := do(engine, http.MethodGet, "/connections/"+conn.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info ConnectionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, conn.ID, info.ID)
	require.Equal(t, "user", info.Type)
	require.Equal(t, "sess-1", info.SessionID)

	rec = do(engine, http.MethodGet, "/connections/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDisconnect(t *testing.T) {
	registry, engine := newAdminTestHandler(t)
	conn, sock := mustRegister(t, registry, "", "")

	rec := do(engine, http.MethodDelete, "/connections/"+conn.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, registry.Count())
	require.True(t, sock.isClosed())

	rec = do(engine, http.MethodDelete, "/connections/"+conn.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBroadcast(t *testing.T) {
	registry, engine := newAdminTestHandler(t)
	_, s1 := mustRegister(t, registry, "", "sess-1")
	_, s2 := mustRegister(t, registry, "", "sess-2")

	rec := do(engine, http.MethodPost, "/broadcast",
		`{"target":"session","session_id":"sess-1","message":"maintenance at noon"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Delivered int `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 1, out.Delivered)

	var msg SystemMessage
	s1.lastFrame(t, &msg)
	require.Equal(t, KindSystemMessage, msg.Type)
	require.Equal(t, "maintenance at noon", msg.Message)
	require.Equal(t, 1, s2.frameCount())

	rec = do(engine, http.MethodPost, "/broadcast", `{"target":"all","message":"heads up"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 2, out.Delivered)
}

func TestAdminBroadcastValidation(t *testing.T) {
	_, engine := newAdminTestHandler(t)

	rec := do(engine, http.MethodPost, "/broadcast", `{"target":"moon","message":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(engine, http.MethodPost, "/broadcast", `{"target":"user","message":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

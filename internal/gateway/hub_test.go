package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"crm-backend/internal/relay"
	"crm-backend/internal/shared/auth"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startGateway(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", Handler(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID, tenantID string) *websocket.Conn {
	t.Helper()
	token, err := auth.SignJWT(auth.Claims{
		Sub:      userID,
		TenantID: tenantID,
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame: %s", raw)
	}
}

func waitForRoom(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.roomCount(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members", room, want)
}

func TestGatewayRejectsUnauthenticated(t *testing.T) {
	_, srv := startGateway(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial without token must fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("resp = %+v", resp)
	}
}

// Events for tenant A's room must never reach tenant B's sessions.
func TestGatewayTenantIsolation(t *testing.T) {
	hub, srv := startGateway(t)

	connA := dial(t, srv, "user-a", "tenant-a")
	connB := dial(t, srv, "user-b", "tenant-b")
	waitForRoom(t, hub, relay.TenantRoom("tenant-a"), 1)
	waitForRoom(t, hub, relay.TenantRoom("tenant-b"), 1)

	env, err := relay.NewAIUpdateEnvelope(relay.AIUpdate{
		TenantID:       "tenant-a",
		ConversationID: "c1",
		Summary:        "s",
		Priority:       "HIGH",
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("NewAIUpdateEnvelope: %v", err)
	}
	hub.HandleEnvelope(env)

	frame := readFrame(t, connA)
	if frame.Event != relay.EventConversationAIUpdate {
		t.Fatalf("event = %q", frame.Event)
	}
	var payload relay.AIUpdate
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TenantID != "tenant-a" {
		t.Fatalf("payload = %+v", payload)
	}

	expectNoFrame(t, connB)
}

// Typing indicators reach the conversation room's other members, never the
// typist.
func TestGatewayTypingExcludesSender(t *testing.T) {
	hub, srv := startGateway(t)

	conn1 := dial(t, srv, "agent-1", "tenant-a")
	conn2 := dial(t, srv, "agent-2", "tenant-a")
	waitForRoom(t, hub, relay.TenantRoom("tenant-a"), 2)

	join := []byte(`{"type":"conversation:join","conversationId":"c1"}`)
	if err := conn1.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("join conn1: %v", err)
	}
	if err := conn2.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("join conn2: %v", err)
	}
	waitForRoom(t, hub, relay.ConversationRoom("tenant-a", "c1"), 2)

	typing := []byte(`{"type":"typing:start","conversationId":"c1"}`)
	if err := conn1.WriteMessage(websocket.TextMessage, typing); err != nil {
		t.Fatalf("typing: %v", err)
	}

	frame := readFrame(t, conn2)
	if frame.Event != relay.EventTypingStart {
		t.Fatalf("event = %q", frame.Event)
	}
	var payload struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != "agent-1" || payload.ConversationID != "c1" {
		t.Fatalf("payload = %+v", payload)
	}

	expectNoFrame(t, conn1)
}

// A broadcast can snapshot a room member just before that member
// disconnects. The late enqueue must be a dropped no-op, not a send on the
// closed channel that panics the process.
func TestGatewayBroadcastAfterDisconnectIsNoOp(t *testing.T) {
	hub, srv := startGateway(t)

	conn := dial(t, srv, "agent-1", "tenant-a")
	waitForRoom(t, hub, relay.TenantRoom("tenant-a"), 1)

	hub.mu.RLock()
	var sess *Session
	for s := range hub.rooms[relay.TenantRoom("tenant-a")] {
		sess = s
	}
	hub.mu.RUnlock()
	if sess == nil {
		t.Fatalf("no session in tenant room")
	}

	conn.Close()
	waitForRoom(t, hub, relay.TenantRoom("tenant-a"), 0)
	deadline := time.Now().Add(2 * time.Second)
	for {
		sess.mu.Lock()
		closed := sess.closed
		sess.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session send channel never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The delivery a stale broadcast snapshot would perform.
	sess.enqueue([]byte(`{"event":"conversation:ai:update","data":{}}`))
}

// Leaving a conversation room stops fine-grained events without touching the
// tenant room.
func TestGatewayLeaveRoom(t *testing.T) {
	hub, srv := startGateway(t)

	conn := dial(t, srv, "agent-1", "tenant-a")
	waitForRoom(t, hub, relay.TenantRoom("tenant-a"), 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"conversation:join","conversationId":"c1"}`)); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoom(t, hub, relay.ConversationRoom("tenant-a", "c1"), 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"conversation:leave","conversationId":"c1"}`)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	waitForRoom(t, hub, relay.ConversationRoom("tenant-a", "c1"), 0)

	if hub.roomCount(relay.TenantRoom("tenant-a")) != 1 {
		t.Fatalf("tenant room membership must survive conversation leave")
	}
}

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crm-backend/internal/relay"
	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// clientMessage is the frame clients send: join or leave a conversation
// room, or signal typing.
type clientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// Client message types.
const (
	msgJoin        = "conversation:join"
	msgLeave       = "conversation:leave"
	msgTypingStart = "typing:start"
	msgTypingStop  = "typing:stop"
)

// typingPayload is broadcast to the conversation room's other members.
type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Email          string `json:"email,omitempty"`
}

// Session is one authenticated websocket connection. It belongs to exactly
// one tenant for its whole lifetime; room joins are derived from that tenant
// ID, never from client input alone.
type Session struct {
	hub  *Hub
	conn *websocket.Conn

	// mu guards send against closeSend: a broadcast may hold a member
	// snapshot taken just before this session disconnected.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	tenantID string
	userID   string
	email    string
}

func newSession(hub *Hub, conn *websocket.Conn, tenantID, userID, email string) *Session {
	return &Session{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		tenantID: tenantID,
		userID:   userID,
		email:    email,
	}
}

// enqueue hands a frame to the write pump. Frames for a closed session are
// dropped; a session that cannot keep up is disconnected rather than
// blocking the hub.
func (s *Session) enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- frame:
	default:
		telemetry.Error("gateway.session.backpressure", map[string]any{
			"tenant_id": s.tenantID,
			"user_id":   s.userID,
		})
		s.conn.Close()
	}
}

// closeSend shuts the write pump down exactly once, under the same mutex
// enqueue takes, so no late broadcast can send on the closed channel.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) run() {
	metrics.GatewayConnected()
	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	defer func() {
		s.hub.removeSession(s)
		s.closeSend()
		s.conn.Close()
		metrics.GatewayDisconnected()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
			continue
		}
		room := relay.ConversationRoom(s.tenantID, msg.ConversationID)
		switch msg.Type {
		case msgJoin:
			s.hub.join(room, s)
		case msgLeave:
			s.hub.leave(room, s)
		case msgTypingStart, msgTypingStop:
			payload, err := json.Marshal(typingPayload{
				ConversationID: msg.ConversationID,
				UserID:         s.userID,
				Email:          s.email,
			})
			if err != nil {
				continue
			}
			event := relay.EventTypingStart
			if msg.Type == msgTypingStop {
				event = relay.EventTypingStop
			}
			s.hub.broadcast(room, event, payload, s)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

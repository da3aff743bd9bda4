// Package gateway is the realtime websocket surface. Sessions join rooms,
// the hub fans relay envelopes and peer events out to them.
package gateway

import (
	"encoding/json"
	"sync"

	"crm-backend/internal/relay"
	"crm-backend/internal/shared/telemetry"
)

// serverMessage is the frame sent to clients.
type serverMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub tracks which sessions are in which rooms. Room membership is the only
// routing mechanism: an event for tenant A's room can never reach a session
// that was not allowed to join it.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Session]struct{})}
}

// HandleEnvelope fans a relay envelope out to its room. Wired as the relay
// subscriber callback.
func (h *Hub) HandleEnvelope(env relay.Envelope) {
	h.broadcast(env.Room, env.Event, env.Data, nil)
}

func (h *Hub) join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
}

func (h *Hub) leave(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// broadcast sends an event to every session in a room, skipping except when
// set (typing indicators go to peers, not back to the typist).
func (h *Hub) broadcast(room, event string, data json.RawMessage, except *Session) {
	frame, err := json.Marshal(serverMessage{Event: event, Data: data})
	if err != nil {
		telemetry.Error("gateway.broadcast.marshal_failed", map[string]any{"event": event, "error": err.Error()})
		return
	}

	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		if s != except {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range members {
		s.enqueue(frame)
	}
}

// roomCount reports a room's membership. Test helper.
func (h *Hub) roomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

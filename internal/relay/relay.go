// Package relay carries realtime events between processes. The worker
// publishes, the API's gateway subscribes and fans out to websocket rooms.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event names delivered to websocket clients.
const (
	EventConversationAIUpdate = "conversation:ai:update"
	EventMessageNew           = "message:new"
	EventTypingStart          = "typing:start"
	EventTypingStop           = "typing:stop"
)

// Envelope is the typed frame every relayed event travels in. Room carries
// the tenant prefix, so a subscriber can fan out without parsing Data.
type Envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Validate rejects envelopes a gateway must not fan out: unknown events and
// rooms without a tenant scope.
func (e Envelope) Validate() error {
	switch e.Event {
	case EventConversationAIUpdate, EventMessageNew, EventTypingStart, EventTypingStop:
	default:
		return fmt.Errorf("relay: unknown event %q", e.Event)
	}
	if !strings.HasPrefix(e.Room, "tenant:") {
		return fmt.Errorf("relay: room %q is not tenant scoped", e.Room)
	}
	return nil
}

// TenantRoom is the room every authenticated session of a tenant joins.
func TenantRoom(tenantID string) string {
	return "tenant:" + tenantID
}

// ConversationRoom is the opt-in room for one conversation's fine-grained
// events.
func ConversationRoom(tenantID, conversationID string) string {
	return "tenant:" + tenantID + ":conversation:" + conversationID
}

// AIUpdate is the payload of EventConversationAIUpdate.
type AIUpdate struct {
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Summary        string    `json:"summary"`
	Priority       string    `json:"priority"`
	Tags           []string  `json:"tags"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewMessage is the payload of EventMessageNew.
type NewMessage struct {
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderType     string    `json:"senderType"`
	ContentText    string    `json:"contentText"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewAIUpdateEnvelope wraps an AI update for the tenant room.
func NewAIUpdateEnvelope(u AIUpdate) (Envelope, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal ai update: %w", err)
	}
	return Envelope{Room: TenantRoom(u.TenantID), Event: EventConversationAIUpdate, Data: data}, nil
}

// NewMessageEnvelope wraps a new-message event for the tenant room.
func NewMessageEnvelope(m NewMessage) (Envelope, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal new message: %w", err)
	}
	return Envelope{Room: TenantRoom(m.TenantID), Event: EventMessageNew, Data: data}, nil
}

// Publisher sends envelopes to every subscribed process, including the
// publisher's own.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Subscriber delivers envelopes until ctx is done. fn runs on the relay's
// goroutine and must not block.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(Envelope)) error
}

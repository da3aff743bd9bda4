package messages

import (
	"errors"
	"time"
)

// Sender types.
const (
	SenderLead   = "LEAD"
	SenderAgent  = "AGENT"
	SenderSystem = "SYSTEM"
)

var ErrInvalidSender = errors.New("invalid sender type")

// Message is one entry in a conversation.
type Message struct {
	ID             string
	TenantID       string
	ConversationID string
	SenderType     string
	ContentText    string
	CreatedAt      time.Time
}

// ValidSender reports whether s is a known sender type.
func ValidSender(s string) bool {
	switch s {
	case SenderLead, SenderAgent, SenderSystem:
		return true
	default:
		return false
	}
}

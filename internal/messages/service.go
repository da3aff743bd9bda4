package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm-backend/internal/conversations"
	"crm-backend/internal/relay"
	"crm-backend/internal/shared/telemetry"
)

const maxContentLen = 10000

// Enqueuer is the slice of the job queue ingestion needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID, conversationID string, delay time.Duration) error
}

// Service handles message ingestion: persist, bump the policy counter,
// schedule a debounced analysis, announce the message on the relay.
type Service struct {
	Repo          Repo
	Conversations conversations.Repo
	Queue         Enqueuer
	Relay         relay.Publisher

	// Debounce is the sliding delay before an analysis job becomes ready.
	Debounce time.Duration

	now func() time.Time
}

func NewService(repo Repo, convs conversations.Repo, queue Enqueuer, pub relay.Publisher, debounce time.Duration) *Service {
	if debounce <= 0 {
		debounce = 10 * time.Second
	}
	return &Service{
		Repo:          repo,
		Conversations: convs,
		Queue:         queue,
		Relay:         pub,
		Debounce:      debounce,
		now:           time.Now,
	}
}

// Ingest stores one message and triggers the pipeline. The conversation must
// exist within the tenant; the counter bump doubles as that check.
func (s *Service) Ingest(ctx context.Context, tenantID, conversationID, senderType, contentText string) (Message, error) {
	contentText = strings.TrimSpace(contentText)
	if contentText == "" {
		return Message{}, fmt.Errorf("content is required")
	}
	if len(contentText) > maxContentLen {
		return Message{}, fmt.Errorf("content exceeds %d chars", maxContentLen)
	}
	if !ValidSender(senderType) {
		return Message{}, ErrInvalidSender
	}

	if err := s.Conversations.IncrementMessagesSinceAI(ctx, tenantID, conversationID); err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return Message{}, conversations.ErrNotFound
		}
		return Message{}, fmt.Errorf("bump message counter: %w", err)
	}

	msg := Message{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		SenderType:     senderType,
		ContentText:    contentText,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.Repo.Create(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("store message: %w", err)
	}

	// Scheduling is part of the ingestion contract: if the queue is down the
	// caller should see the failure even though the message is stored.
	if err := s.Queue.Enqueue(ctx, tenantID, conversationID, s.Debounce); err != nil {
		return Message{}, fmt.Errorf("schedule analysis: %w", err)
	}

	s.publishNew(ctx, msg)
	return msg, nil
}

// publishNew is best effort, same as the AI update event.
func (s *Service) publishNew(ctx context.Context, msg Message) {
	if s.Relay == nil {
		return
	}
	env, err := relay.NewMessageEnvelope(relay.NewMessage{
		TenantID:       msg.TenantID,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderType:     msg.SenderType,
		ContentText:    msg.ContentText,
		CreatedAt:      msg.CreatedAt,
	})
	if err == nil {
		err = s.Relay.Publish(ctx, env)
	}
	if err != nil {
		telemetry.Error("messages.event.publish_failed", map[string]any{
			"tenant_id":       msg.TenantID,
			"conversation_id": msg.ConversationID,
			"error":           err.Error(),
		})
	}
}

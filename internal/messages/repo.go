package messages

import "context"

// Repo stores messages. Reads are tenant scoped like every other repo.
type Repo interface {
	Create(ctx context.Context, message Message) error

	// RecentByConversation returns up to limit messages in chronological
	// order. The query walks the newest rows first, then the slice is
	// reversed, so the window always ends at the latest message.
	RecentByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error)

	// ListByConversation pages messages oldest-first for the REST API.
	ListByConversation(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error)
}

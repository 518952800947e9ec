// Package chat implements the client-side streaming chat session: the
// transcript store, chunk folding, history merging and the controller that
// drives submit -> send -> stream -> finalize.
package chat

import (
	"context"

	"github.com/diogo/agentchat/internal/models"
)

// Sender persists a user prompt and returns the server's view of the turn.
// conversationID is empty for a conversation the server has not created yet.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) (models.SendResult, error)
}

// StreamRequest identifies the turn whose reply is streamed
type StreamRequest struct {
	ConversationID string
	Prompt         string
}

// StreamCallbacks receive the events of one stream. Implementations must
// deliver them sequentially, in arrival order, and signal at most one of
// a done chunk, OnComplete or OnError.
type StreamCallbacks struct {
	OnChunk    func(models.Chunk)
	OnComplete func()
	OnError    func(error)
}

// CancelFunc closes a stream. It must be idempotent and safe to call after
// the stream has terminated.
type CancelFunc func()

// Streamer opens the server-push connection for one turn
type Streamer interface {
	OpenStream(ctx context.Context, req StreamRequest, cb StreamCallbacks) (CancelFunc, error)
}

// HistoryFetcher returns one page of a conversation, oldest first
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, conversationID string, cursor models.Cursor, pageSize int) ([]models.HistoryMessage, error)
}

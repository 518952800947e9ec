package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole maps any wire role onto the two roles the transcript knows.
// Everything that is not "user" is treated as the assistant.
func NormalizeRole(role string) Role {
	if strings.EqualFold(strings.TrimSpace(role), string(RoleUser)) {
		return RoleUser
	}
	return RoleAssistant
}

// Message is one entry of a conversation transcript
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Error marks a synthetic message produced by a failed send
	Error bool `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewUserMessage creates a user message with a client-generated id
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant message waiting for chunks
func NewAssistantMessage() Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

// NewErrorMessage creates the visible message appended when a send fails
func NewErrorMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
		Error:     true,
	}
}

// SendResult is the answer of the send collaborator
type SendResult struct {
	ConversationID string
	MessageID      string
	// Answer is the complete, non-streamed reply. It is used when the
	// stream finishes without producing any content.
	Answer string
}

// HistoryMessage is a message as returned by the history endpoint
type HistoryMessage struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ToMessage converts a history entry to a transcript message
func (h HistoryMessage) ToMessage() Message {
	return Message{
		ID:        h.ID,
		Role:      NormalizeRole(h.Role),
		Content:   h.Content,
		Timestamp: h.CreatedAt,
	}
}

// ConversationSummary is one row of the server-side conversation list
type ConversationSummary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cursor addresses a history page. The zero cursor ("" or "0") requests the
// first page; any other value is the id after which the next page starts.
type Cursor string

// InitialCursor requests the first page of a conversation
const InitialCursor Cursor = ""

// IsInitial reports whether c requests the first page
func (c Cursor) IsInitial() bool {
	s := strings.TrimSpace(string(c))
	return s == "" || s == "0"
}

// String returns the wire form of the cursor
func (c Cursor) String() string {
	if c.IsInitial() {
		return "0"
	}
	return strings.TrimSpace(string(c))
}

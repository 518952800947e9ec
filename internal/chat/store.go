package chat

import (
	"errors"
	"sync"

	"github.com/diogo/agentchat/internal/models"
)

// ErrPendingExists is returned when a second message would start streaming
// while another one is still pending.
var ErrPendingExists = errors.New("a message is already receiving stream chunks")

// Store is the ordered transcript of the active conversation.
//
// Messages are kept in insertion order; no operation sorts. At most one
// message is pending (receiving chunks) at a time, and only the pending
// message can change after it was added.
type Store struct {
	mu             sync.RWMutex
	conversationID string
	messages       []models.Message
	pendingID      string
}

// NewStore creates an empty store bound to conversationID ("" for a new
// conversation).
func NewStore(conversationID string) *Store {
	return &Store{conversationID: conversationID}
}

// ConversationID returns the conversation the transcript belongs to
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// AdoptConversationID binds a server-assigned id to a conversation that has
// none yet. It returns false if the store already has an id or id is empty.
func (s *Store) AdoptConversationID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != "" || id == "" {
		return false
	}
	s.conversationID = id
	return true
}

// Reset clears the transcript and rebinds it to conversationID
func (s *Store) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
	s.messages = nil
	s.pendingID = ""
}

// Append adds msg at the end of the transcript
func (s *Store) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Prepend splices an older page before the existing messages, keeping the
// order inside the page.
func (s *Store) Prepend(older []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prependLocked(older)
}

func (s *Store) prependLocked(older []models.Message) {
	if len(older) == 0 {
		return
	}
	merged := make([]models.Message, 0, len(older)+len(s.messages))
	merged = append(merged, older...)
	merged = append(merged, s.messages...)
	s.messages = merged
}

// ReplaceAll swaps the whole transcript for msgs
func (s *Store) ReplaceAll(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceAllLocked(msgs)
}

func (s *Store) replaceAllLocked(msgs []models.Message) {
	s.messages = append([]models.Message(nil), msgs...)
	s.pendingID = ""
}

// Clear empties the transcript but keeps the conversation binding
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.pendingID = ""
}

// MergePage applies a history page for conversationID: the initial page
// replaces the transcript, later pages are prepended. Nothing happens, and
// false is returned, when the store has been rebound to another
// conversation in the meantime.
func (s *Store) MergePage(conversationID string, page []models.Message, initial bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != conversationID {
		return false
	}
	if initial {
		s.replaceAllLocked(page)
	} else {
		s.prependLocked(page)
	}
	return true
}

// Messages returns a copy of the transcript
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// BeginPending appends msg and marks it as the message receiving chunks
func (s *Store) BeginPending(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingID != "" {
		return ErrPendingExists
	}
	s.messages = append(s.messages, msg)
	s.pendingID = msg.ID
	return nil
}

// Pending returns the pending message, if any
func (s *Store) Pending() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.pendingIndexLocked()
	if idx < 0 {
		return models.Message{}, false
	}
	return s.messages[idx], true
}

// UpdatePending rewrites the pending message's content with fn. It returns
// false when no message is pending.
func (s *Store) UpdatePending(fn func(content string) string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.pendingIndexLocked()
	if idx < 0 {
		return false
	}
	s.messages[idx].Content = fn(s.messages[idx].Content)
	return true
}

// FinalizePending freezes the pending message and returns it
func (s *Store) FinalizePending() (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.pendingIndexLocked()
	s.pendingID = ""
	if idx < 0 {
		return models.Message{}, false
	}
	return s.messages[idx], true
}

// pendingIndexLocked searches from the end since the pending message is
// almost always the last one.
func (s *Store) pendingIndexLocked() int {
	if s.pendingID == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == s.pendingID {
			return i
		}
	}
	return -1
}

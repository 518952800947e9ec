// Package history keeps a local archive of finished conversation transcripts.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/diogo/agentchat/internal/models"
)

// ErrNotFound is returned when no archived conversation has the given id
var ErrNotFound = errors.New("conversation not found")

const titleMaxLen = 50

// Conversation is an archived transcript keyed by the server conversation id
type Conversation struct {
	ID        string           `json:"id" yaml:"id"`
	Title     string           `json:"title" yaml:"title"`
	BaseURL   string           `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
	Messages  []models.Message `json:"messages" yaml:"messages"`
}

// Store manages archive persistence under <baseDir>/history
type Store struct {
	baseDir string
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates the history directory if needed
func NewStore(baseDir string) (*Store, error) {
	historyDir := filepath.Join(baseDir, "history")
	if err := os.MkdirAll(historyDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create history directory")
	}

	return &Store{
		baseDir: historyDir,
		now:     time.Now,
	}, nil
}

// Dir returns the directory holding the archive files
func (s *Store) Dir() string {
	return s.baseDir
}

// SaveTranscript replaces the archived messages of a conversation with a
// snapshot of the live transcript. The title is kept once set; a new entry
// takes it from the first user message.
func (s *Store) SaveTranscript(id, baseURL string, msgs []models.Message) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv, err := s.loadConversation(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		conv = &Conversation{ID: id, CreatedAt: now}
	}

	conv.Messages = append([]models.Message(nil), msgs...)
	conv.UpdatedAt = now
	if baseURL != "" {
		conv.BaseURL = baseURL
	}
	if conv.Title == "" {
		conv.Title = titleFrom(conv.Messages, now)
	}

	if err := s.saveConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID
func (s *Store) GetConversation(id string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadConversation(id)
}

// ListConversations returns all conversations, sorted by most recent
func (s *Store) ListConversations() ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history directory")
	}

	var conversations []*Conversation
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := s.loadConversation(id)
		if err != nil {
			continue // Skip corrupted files
		}
		conversations = append(conversations, conv)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

// DeleteConversation removes a conversation
func (s *Store) DeleteConversation(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.conversationPath(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(ErrNotFound, id)
		}
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}

// UpdateTitle updates the title of a conversation
func (s *Store) UpdateTitle(id, title string) error {
	if err := validateID(id); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.loadConversation(id)
	if err != nil {
		return err
	}

	conv.Title = title
	conv.UpdatedAt = s.now()

	return s.saveConversation(conv)
}

// ClearAll deletes all conversations
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return errors.Wrap(err, "failed to read history directory")
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return errors.Wrapf(err, "failed to delete %s", entry.Name())
		}
	}

	return nil
}

func (s *Store) conversationPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *Store) loadConversation(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.conversationPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, errors.Wrap(err, "failed to read conversation")
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrapf(err, "failed to parse conversation %s", id)
	}

	return &conv, nil
}

func (s *Store) saveConversation(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation")
	}

	// Written to a temp file and renamed into place
	path := s.conversationPath(conv.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write conversation")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to write conversation")
	}

	return nil
}

// validateID rejects ids that cannot be used as a file name
func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("conversation id is empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.Errorf("invalid conversation id %q", id)
	}
	return nil
}

func titleFrom(msgs []models.Message, now time.Time) string {
	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if title == "" {
			continue
		}
		if runes := []rune(title); len(runes) > titleMaxLen {
			title = string(runes[:titleMaxLen]) + "..."
		}
		return title
	}
	return "Chat " + now.Format("2006-01-02 15:04")
}

package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Resolver turns user references into archived conversation ids
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over the given store
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve converts a reference to a conversation id.
// Supported forms, checked in order:
//   - @last / @first: most recent / oldest archived conversation
//   - #N: the N-th conversation in the list (1-based, most recent first)
//   - an exact conversation id
//   - a case-insensitive title substring that matches exactly one entry
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty reference")
	}

	conversations, err := r.store.ListConversations()
	if err != nil {
		return "", err
	}
	if len(conversations) == 0 {
		return "", errors.New("no archived conversations")
	}

	switch strings.ToLower(ref) {
	case "@last":
		return conversations[0].ID, nil
	case "@first":
		return conversations[len(conversations)-1].ID, nil
	}

	// Server ids are numeric, so list positions need the # prefix
	if strings.HasPrefix(ref, "#") {
		index, err := strconv.Atoi(ref[1:])
		if err != nil {
			return "", errors.Errorf("invalid index %q", ref)
		}
		if index < 1 || index > len(conversations) {
			return "", errors.Errorf("index %d out of range (1-%d)", index, len(conversations))
		}
		return conversations[index-1].ID, nil
	}

	for _, conv := range conversations {
		if conv.ID == ref {
			return conv.ID, nil
		}
	}

	refLower := strings.ToLower(ref)
	var matches []*Conversation
	for _, conv := range conversations {
		if strings.Contains(strings.ToLower(conv.Title), refLower) {
			matches = append(matches, conv)
		}
	}

	switch len(matches) {
	case 0:
		return "", errors.Wrapf(ErrNotFound, "no conversation matching '%s'", ref)
	case 1:
		return matches[0].ID, nil
	default:
		titles := make([]string, 0, len(matches))
		for _, m := range matches {
			titles = append(titles, fmt.Sprintf("'%s'", m.Title))
		}
		return "", errors.Errorf("multiple conversations match '%s': %s. Use ID or be more specific",
			ref, strings.Join(titles, ", "))
	}
}

// ResolveWithInfo resolves a reference and loads the conversation
func (r *Resolver) ResolveWithInfo(ref string) (*Conversation, error) {
	id, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return r.store.GetConversation(id)
}

// ListAliases returns information about supported aliases
func ListAliases() string {
	return `Supported references:
  @last          Most recently updated conversation
  @first         Oldest archived conversation
  #1, #2, #3     By position (1-based, from most recent)
  42             Direct conversation ID
  "text"         Search by title substring`
}

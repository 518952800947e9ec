package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/diogo/agentchat/internal/models"
)

// ExportFormat represents the format for exporting conversations
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatYAML     ExportFormat = "yaml"
)

// ParseExportFormat maps a format name or file extension to an ExportFormat
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "md", "markdown":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	case "yaml", "yml":
		return ExportFormatYAML, nil
	default:
		return "", errors.Errorf("unknown export format %q (use markdown, json or yaml)", s)
	}
}

// ExportOptions configures how conversations are exported
type ExportOptions struct {
	Format ExportFormat
	// IncludeErrors keeps the synthetic messages left by failed sends
	IncludeErrors bool
}

// DefaultExportOptions returns the defaults used by the CLI
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:        ExportFormatMarkdown,
		IncludeErrors: true,
	}
}

// Export renders an archived conversation in the requested format
func (s *Store) Export(id string, opts ExportOptions) ([]byte, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if !opts.IncludeErrors {
		conv.Messages = withoutErrors(conv.Messages)
	}

	switch opts.Format {
	case ExportFormatMarkdown, "":
		return []byte(ToMarkdown(conv)), nil
	case ExportFormatJSON:
		data, err := json.MarshalIndent(conv, "", "  ")
		return data, errors.Wrap(err, "failed to encode conversation")
	case ExportFormatYAML:
		data, err := yaml.Marshal(conv)
		return data, errors.Wrap(err, "failed to encode conversation")
	default:
		return nil, errors.Errorf("unknown export format %q", opts.Format)
	}
}

// ToMarkdown renders a conversation as a Markdown document
func ToMarkdown(conv *Conversation) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(conv.Title)
	sb.WriteString("\n\n")

	sb.WriteString("**Conversation:** ")
	sb.WriteString(conv.ID)
	sb.WriteString("\n")
	if conv.BaseURL != "" {
		sb.WriteString("**Server:** ")
		sb.WriteString(conv.BaseURL)
		sb.WriteString("\n")
	}
	sb.WriteString("**Created:** ")
	sb.WriteString(conv.CreatedAt.Format("2006-01-02 15:04:05"))
	sb.WriteString("\n")
	sb.WriteString("**Updated:** ")
	sb.WriteString(conv.UpdatedAt.Format("2006-01-02 15:04:05"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "**Messages:** %d\n\n---\n\n", len(conv.Messages))

	for i, msg := range conv.Messages {
		role := "User"
		if msg.Role == models.RoleAssistant {
			role = "Assistant"
		}

		sb.WriteString("## ")
		sb.WriteString(role)
		if !msg.Timestamp.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(msg.Timestamp.Format("15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")

		if msg.Error {
			sb.WriteString("> ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if i < len(conv.Messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

func withoutErrors(msgs []models.Message) []models.Message {
	kept := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Error {
			kept = append(kept, m)
		}
	}
	return kept
}

// SearchResult represents a search match in conversations
type SearchResult struct {
	Conversation *Conversation
	MatchSnippet string // Snippet where the term was found
	MatchField   string // "title" or "content"
	MatchIndex   int    // Message index if MatchField is "content", -1 for title
}

// SearchConversations searches for a query in conversation titles and optionally content
func (s *Store) SearchConversations(query string, searchContent bool) ([]*SearchResult, error) {
	conversations, err := s.ListConversations()
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var results []*SearchResult

	for _, conv := range conversations {
		if strings.Contains(strings.ToLower(conv.Title), queryLower) {
			results = append(results, &SearchResult{
				Conversation: conv,
				MatchSnippet: conv.Title,
				MatchField:   "title",
				MatchIndex:   -1,
			})
			continue
		}

		if !searchContent {
			continue
		}
		for i, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), queryLower) {
				results = append(results, &SearchResult{
					Conversation: conv,
					MatchSnippet: extractSnippet(msg.Content, query, 100),
					MatchField:   "content",
					MatchIndex:   i,
				})
				break // Only one match per conversation
			}
		}
	}

	return results, nil
}

// extractSnippet extracts a snippet around the first occurrence of query.
// Positions are counted in runes.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	idx := runeIndexFold(runes, []rune(query))
	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	half := maxLen / 2
	start := idx - half
	end := idx + len([]rune(query)) + half

	if start < 0 {
		start = 0
		end = maxLen
	}
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func runeIndexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if strings.EqualFold(string(haystack[i:i+len(needle)]), string(needle)) {
			return i
		}
	}
	return -1
}

// FormatRelativeTime formats a time as a relative string like "2h ago" or "yesterday"
func FormatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "min")
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 48*time.Hour:
		return "yesterday"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	default:
		months := int(diff.Hours() / 24 / 30)
		if months < 12 {
			return plural(months, "month")
		}
		return t.Format("2006-01-02")
	}
}

func plural(n int, unit string) string {
	if n == 1 || unit == "min" {
		return fmt.Sprintf("%d %s ago", n, unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

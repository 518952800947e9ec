package chat

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

// HistoryLoader fetches history pages and merges them into a Store
type HistoryLoader struct {
	fetcher  HistoryFetcher
	store    *Store
	pageSize int
	logger   zerolog.Logger
	loading  atomic.Int32
}

// HistoryOption configures a HistoryLoader
type HistoryOption func(*HistoryLoader)

// WithPageSize sets the number of messages requested per page
func WithPageSize(n int) HistoryOption {
	return func(l *HistoryLoader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithHistoryLogger sets the logger used to report failed loads
func WithHistoryLogger(logger zerolog.Logger) HistoryOption {
	return func(l *HistoryLoader) {
		l.logger = logger
	}
}

// NewHistoryLoader creates a loader merging into store
func NewHistoryLoader(fetcher HistoryFetcher, store *Store, opts ...HistoryOption) *HistoryLoader {
	l := &HistoryLoader{
		fetcher:  fetcher,
		store:    store,
		pageSize: models.DefaultHistoryPage,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Loading reports whether a page is being fetched
func (l *HistoryLoader) Loading() bool {
	return l.loading.Load() > 0
}

// Load fetches one page of conversationID and merges it: the initial cursor
// replaces the transcript, any other cursor prepends an older page.
//
// A failed fetch leaves the store untouched. The error is logged and
// returned as a *errors.HistoryError. A page that arrives after the store
// was rebound to another conversation is dropped.
func (l *HistoryLoader) Load(ctx context.Context, conversationID string, cursor models.Cursor) error {
	if conversationID == "" {
		return apierrors.NewHistoryError(conversationID, apierrors.ErrNoConversation)
	}

	l.loading.Add(1)
	defer l.loading.Add(-1)

	page, err := l.fetcher.FetchMessages(ctx, conversationID, cursor, l.pageSize)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("conversation_id", conversationID).
			Str("cursor", cursor.String()).
			Msg("history load failed")
		return apierrors.NewHistoryError(conversationID, err)
	}

	msgs := make([]models.Message, 0, len(page))
	for _, h := range page {
		msgs = append(msgs, h.ToMessage())
	}

	if !l.store.MergePage(conversationID, msgs, cursor.IsInitial()) {
		l.logger.Debug().
			Str("conversation_id", conversationID).
			Msg("discarding history page for inactive conversation")
		return nil
	}

	l.logger.Debug().
		Str("conversation_id", conversationID).
		Str("cursor", cursor.String()).
		Int("messages", len(msgs)).
		Msg("history page merged")
	return nil
}

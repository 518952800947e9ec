package commands

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/diogo/agentchat/internal/chat"
	"github.com/diogo/agentchat/internal/config"
	"github.com/diogo/agentchat/internal/history"
	"github.com/diogo/agentchat/internal/models"
)

// syncBuffer is a bytes.Buffer safe for the writers of a running turn
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type sendCall struct {
	conversationID string
	text           string
}

type fakeBackend struct {
	mu       sync.Mutex
	result   models.SendResult
	sendErr  error
	sent     []sendCall
	pages    map[string][]models.HistoryMessage
	convs    []models.ConversationSummary
	created  []string
	deleted  []string
	fetchErr error
}

func (f *fakeBackend) Send(ctx context.Context, conversationID, text string) (models.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sendCall{conversationID: conversationID, text: text})
	if f.sendErr != nil {
		return models.SendResult{}, f.sendErr
	}
	res := f.result
	if res.ConversationID == "" {
		res.ConversationID = conversationID
	}
	return res, nil
}

func (f *fakeBackend) FetchMessages(ctx context.Context, conversationID string, cursor models.Cursor, pageSize int) ([]models.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if !cursor.IsInitial() {
		return nil, nil
	}
	return f.pages[conversationID], nil
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, title string) (models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	return models.ConversationSummary{ID: "99", Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) BaseURL() string { return "http://backend.test" }

func (f *fakeBackend) Sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sent...)
}

// fakeStreamer replies to every turn with deltas followed by a done chunk
type fakeStreamer struct {
	deltas []string
}

func (f *fakeStreamer) OpenStream(ctx context.Context, req chat.StreamRequest, cb chat.StreamCallbacks) (chat.CancelFunc, error) {
	go func() {
		cb.OnChunk(models.StartChunk())
		for _, d := range f.deltas {
			cb.OnChunk(models.DeltaChunk(d))
		}
		cb.OnChunk(models.DoneChunk())
	}()
	return func() {}, nil
}

type harness struct {
	deps       *Dependencies
	stdout     *syncBuffer
	stderr     *syncBuffer
	backend    *fakeBackend
	streamer   *fakeStreamer
	archiveDir string
	clipboard  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.EnvHome, t.TempDir())
	t.Setenv(config.EnvToken, "")

	h := &harness{
		stdout:     &syncBuffer{},
		stderr:     &syncBuffer{},
		backend:    &fakeBackend{result: models.SendResult{ConversationID: "42", MessageID: "7"}},
		streamer:   &fakeStreamer{deltas: []string{"Hi", " there"}},
		archiveDir: t.TempDir(),
	}
	h.deps = &Dependencies{
		Stdout: h.stdout,
		Stderr: h.stderr,
		Connect: func(cfg config.Config, logger zerolog.Logger) (*Connection, error) {
			return &Connection{Backend: h.backend, Streamer: h.streamer}, nil
		},
		OpenArchive: func(cfg config.Config) (*history.Store, error) {
			return history.NewStore(h.archiveDir)
		},
		CopyToClipboard: func(text string) error {
			h.clipboard = text
			return nil
		},
		IsTerminal: func() bool { return false },
	}
	return h
}

func (h *harness) run(stdin string, args ...string) error {
	h.deps.Stdin = strings.NewReader(stdin)
	cmd := NewRootCmd(h.deps)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (h *harness) archive(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.NewStore(h.archiveDir)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return store
}

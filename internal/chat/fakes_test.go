package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diogo/agentchat/internal/models"
)

type sendCall struct {
	conversationID string
	text           string
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sendCall
	result models.SendResult
	err    error
	gate   chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, conversationID, text string) (models.SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{conversationID: conversationID, text: text})
	gate, res, err := f.gate, f.result, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.SendResult{}, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeSender) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type fakeStream struct {
	req     StreamRequest
	cb      StreamCallbacks
	cancels atomic.Int32
}

type fakeStreamer struct {
	opened chan *fakeStream
	err    error
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{opened: make(chan *fakeStream, 8)}
}

func (f *fakeStreamer) OpenStream(ctx context.Context, req StreamRequest, cb StreamCallbacks) (CancelFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeStream{req: req, cb: cb}
	f.opened <- s
	return func() { s.cancels.Add(1) }, nil
}

func (f *fakeStreamer) wait(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("stream was never opened")
		return nil
	}
}

type fetchCall struct {
	conversationID string
	cursor         models.Cursor
	pageSize       int
}

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string][]models.HistoryMessage
	err    error
	calls  []fetchCall
	before func()
}

func pageKey(conversationID string, cursor models.Cursor) string {
	return conversationID + "|" + cursor.String()
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, conversationID string, cursor models.Cursor, pageSize int) ([]models.HistoryMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{conversationID: conversationID, cursor: cursor, pageSize: pageSize})
	page, err, before := f.pages[pageKey(conversationID, cursor)], f.err, f.before
	f.mu.Unlock()

	if before != nil {
		before()
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func history(conversationID string, contents ...string) []models.HistoryMessage {
	out := make([]models.HistoryMessage, 0, len(contents))
	for i, content := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out = append(out, models.HistoryMessage{
			ID:      conversationID + "-" + content,
			Role:    role,
			Content: content,
		})
	}
	return out
}

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

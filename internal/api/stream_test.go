package api

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/agentchat/internal/chat"
	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

type streamRecorder struct {
	mu        sync.Mutex
	chunks    []models.Chunk
	errs      []error
	completed int
	terminal  chan struct{}
	once      sync.Once
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{terminal: make(chan struct{})}
}

func (r *streamRecorder) callbacks() chat.StreamCallbacks {
	return chat.StreamCallbacks{
		OnChunk: func(chunk models.Chunk) {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
			if chunk.Kind == models.ChunkDone {
				r.signal()
			}
		},
		OnComplete: func() {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
			r.signal()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.signal()
		},
	}
}

func (r *streamRecorder) signal() {
	r.once.Do(func() { close(r.terminal) })
}

func (r *streamRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never reached a terminal signal")
	}
}

func (r *streamRecorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.chunks {
		out = append(out, c.Kind.String()+":"+c.Text)
	}
	return out
}

func TestOpenStream_DeliversChunksInOrder(t *testing.T) {
	body := sse(
		`event: message`+"\n"+`data: {"type":"start"}`,
		`data: {"type":"delta","content":"Hi"}`,
		`: keep-alive`,
		`id: 3`+"\n"+`data: {"type":"delta","text":" there"}`,
		`event: done`+"\n"+`data: done`,
		`data: {"type":"delta","content":"after done"}`,
	)
	mock := NewMockHttpClient(body, 200)
	client := newTestClient(t, mock)
	rec := newStreamRecorder()

	cancel, err := client.OpenStream(context.Background(),
		chat.StreamRequest{ConversationID: "42", Prompt: "hello world"}, rec.callbacks())
	require.NoError(t, err)
	require.NotNil(t, cancel)
	rec.wait(t)

	assert.Equal(t, []string{"start:", "delta:Hi", "delta: there", "done:"}, rec.texts())
	assert.Empty(t, rec.errs)
	assert.Zero(t, rec.completed)
	cancel()
	cancel()

	req := mock.LastRequest()
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, models.PathStreamDefault, req.URL.Path)
	assert.Equal(t, "42", req.URL.Query().Get("sessionId"))
	assert.Equal(t, "hello world", req.URL.Query().Get("prompt"))
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}

func TestOpenStream_RawDoneData(t *testing.T) {
	mock := NewMockHttpClient(sse(`data: plain text`, `data: done`), 200)
	rec := newStreamRecorder()

	_, err := newTestClient(t, mock, WithStreamPath("/sse")).
		OpenStream(context.Background(), chat.StreamRequest{ConversationID: "1", Prompt: "p"}, rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, []string{"delta:plain text", "done:"}, rec.texts())
	assert.Equal(t, "/sse", mock.LastRequest().URL.Path)
}

func TestOpenStream_WhitespaceTokens(t *testing.T) {
	body := sse(
		`data: Hello`,
		"data: \ndata: ",
		`data:  `,
		`data: world`,
		`event: done`+"\n"+`data: done`,
	)
	rec := newStreamRecorder()

	_, err := newTestClient(t, NewMockHttpClient(body, 200)).
		OpenStream(context.Background(), chat.StreamRequest{ConversationID: "1", Prompt: "p"}, rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, []string{"delta:Hello", "delta:\n", "delta: ", "delta:world", "done:"}, rec.texts())

	var content string
	rec.mu.Lock()
	for _, c := range rec.chunks {
		content = chat.Accumulate(content, c)
	}
	rec.mu.Unlock()
	assert.Equal(t, "Hello\n world", content)
}

func TestOpenStream_ErrorEvent(t *testing.T) {
	body := sse(
		`data: {"type":"delta","content":"half"}`,
		`data: {"type":"error","code":"1003","message":"boom"}`,
		`data: {"type":"delta","content":"ignored"}`,
	)
	rec := newStreamRecorder()
	_, err := newTestClient(t, NewMockHttpClient(body, 200)).
		OpenStream(context.Background(), chat.StreamRequest{ConversationID: "1", Prompt: "p"}, rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, []string{"delta:half"}, rec.texts())
	require.Len(t, rec.errs, 1)
	var streamErr *apierrors.StreamError
	require.ErrorAs(t, rec.errs[0], &streamErr)
	assert.Equal(t, "1003", streamErr.Code)
	assert.Equal(t, "boom", streamErr.Message)
}

func TestOpenStream_EOFWithoutDone(t *testing.T) {
	rec := newStreamRecorder()
	_, err := newTestClient(t, NewMockHttpClient(`data: {"type":"delta","content":"cut"}`, 200)).
		OpenStream(context.Background(), chat.StreamRequest{ConversationID: "1", Prompt: "p"}, rec.callbacks())
	require.NoError(t, err)
	rec.wait(t)

	assert.Equal(t, []string{"delta:cut"}, rec.texts())
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], apierrors.ErrStreamClosed)
}

func TestOpenStream_OpenFailures(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		_, err := newTestClient(t, NewMockHttpClient(`{"code":401}`, 401)).
			OpenStream(context.Background(), chat.StreamRequest{}, chat.StreamCallbacks{})
		assert.True(t, apierrors.IsAuthError(err))
	})

	t.Run("network", func(t *testing.T) {
		_, err := newTestClient(t, NewMockHttpClientWithError(errors.New("refused"))).
			OpenStream(context.Background(), chat.StreamRequest{}, chat.StreamCallbacks{})
		var streamErr *apierrors.StreamError
		assert.ErrorAs(t, err, &streamErr)
		assert.True(t, apierrors.IsNetworkError(err))
	})
}

func TestOpenStream_CancelSilencesStream(t *testing.T) {
	pr, pw := io.Pipe()
	mock := &MockHttpClient{Responses: []MockResponse{{Status: 200, Reader: pr}}}
	rec := newStreamRecorder()

	cancel, err := newTestClient(t, mock).
		OpenStream(context.Background(), chat.StreamRequest{ConversationID: "1", Prompt: "p"}, rec.callbacks())
	require.NoError(t, err)

	_, err = io.WriteString(pw, "data: {\"type\":\"delta\",\"content\":\"a\"}\n\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.texts()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		_, err := io.WriteString(pw, "data: more\n\n")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	select {
	case <-rec.terminal:
		t.Fatal("cancelled stream must not report a terminal signal")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []string{"delta:a"}, rec.texts())
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "multi-line data",
			input: "data: a\ndata: b\n\n",
			want:  []string{"message|a\nb"},
		},
		{
			name:  "crlf and named event",
			input: "event: done\r\ndata: done\r\n\r\n",
			want:  []string{"done|done"},
		},
		{
			name:  "event without data",
			input: "event: done\n\n",
			want:  []string{"done|"},
		},
		{
			name:  "comments and retry skipped",
			input: ": ping\nretry: 1000\n\ndata: x\n\n",
			want:  []string{"message|x"},
		},
		{
			name:  "no space after colon",
			input: "data:tight\n\n",
			want:  []string{"message|tight"},
		},
		{
			name:  "whitespace kept",
			input: "data:  two spaces\n\n",
			want:  []string{"message| two spaces"},
		},
		{
			name:  "trailing event without blank line",
			input: "data: tail",
			want:  []string{"message|tail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := readEvents(strings.NewReader(tt.input), func(event, data string) error {
				got = append(got, event+"|"+data)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadEvents_StopsOnCallbackError(t *testing.T) {
	calls := 0
	err := readEvents(strings.NewReader("data: 1\n\ndata: 2\n\n"), func(string, string) error {
		calls++
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, calls)
}

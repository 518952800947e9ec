package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	http "github.com/bogdanfinn/fhttp"
	"golang.org/x/sync/errgroup"

	"github.com/diogo/agentchat/internal/chat"
	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

const (
	eventMessage = "message"
	eventDone    = "done"

	maxEventLine = 1 << 20
)

// errStop ends the read loop after a terminal event
var errStop = errors.New("stream finished")

// OpenStream opens the server-sent event stream for req. It returns once the
// response headers arrived; events are delivered from a background goroutine,
// one at a time and in order.
func (c *Client) OpenStream(ctx context.Context, req chat.StreamRequest, cb chat.StreamCallbacks) (chat.CancelFunc, error) {
	if c.IsClosed() {
		return nil, errors.New("client is closed")
	}

	query := url.Values{}
	query.Set("sessionId", req.ConversationID)
	query.Set("prompt", req.Prompt)

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.endpoint(c.streamPath, query), nil)
	if err != nil {
		cancel()
		return nil, apierrors.WrapStreamError(err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", models.DefaultHeaders()["User-Agent"])
	if auth := c.authHeader(); auth != "" {
		httpReq.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, apierrors.WrapStreamError(classifyTransportError(streamCtx, "open stream", c.streamPath, err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		cancel()
		return nil, apierrors.WrapStreamError(apierrors.FromStatus(resp.StatusCode, c.streamPath, string(body)))
	}

	s := &eventStream{
		ctx:    streamCtx,
		cancel: cancel,
		body:   resp.Body,
		cb:     cb,
	}
	c.logger.Debug().Str("conversation_id", req.ConversationID).Msg("stream opened")
	go s.run()
	return s.Cancel, nil
}

// eventStream owns one open response body
type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	cb     chat.StreamCallbacks

	cancelled atomic.Bool
	terminal  sync.Once
}

// Cancel closes the stream. No callback fires after Cancel returns, except
// one that was already running.
func (s *eventStream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

func (s *eventStream) run() {
	var (
		g           errgroup.Group
		err         error
		interrupted bool
	)

	// a blocked Read only returns once the body is closed
	g.Go(func() error {
		<-s.ctx.Done()
		return s.body.Close()
	})
	g.Go(func() error {
		err = readEvents(s.body, s.dispatch)
		interrupted = s.ctx.Err() != nil
		s.cancel()
		return nil
	})
	_ = g.Wait()

	if s.cancelled.Load() || interrupted {
		return
	}
	switch {
	case errors.Is(err, errStop):
	case err != nil:
		s.fail(apierrors.WrapStreamError(apierrors.NewNetworkError("read stream", "", err)))
	default:
		s.fail(apierrors.WrapStreamError(apierrors.ErrStreamClosed))
	}
}

// dispatch maps one SSE event onto the callbacks
func (s *eventStream) dispatch(event, data string) error {
	if s.cancelled.Load() {
		return errStop
	}

	if event == eventDone {
		s.finish(func() { s.onChunk(models.DoneChunk()) })
		return errStop
	}

	chunk := models.ParseChunk(data)
	switch chunk.Kind {
	case models.ChunkDone:
		s.finish(func() { s.onChunk(chunk) })
		return errStop
	case models.ChunkError:
		s.fail(apierrors.NewStreamError(chunk.Code, chunk.Text))
		return errStop
	}
	s.onChunk(chunk)
	return nil
}

func (s *eventStream) onChunk(chunk models.Chunk) {
	if s.cb.OnChunk != nil {
		s.cb.OnChunk(chunk)
	}
}

func (s *eventStream) fail(err error) {
	s.finish(func() {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}

func (s *eventStream) finish(fn func()) {
	s.terminal.Do(fn)
}

// readEvents parses a text/event-stream body and calls fn for every
// complete event. Comment, id and retry lines are skipped; an event without
// a name is a "message" event. A trailing event without the closing blank
// line is still delivered.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var (
		event   string
		data    []string
		hasData bool
	)
	flush := func() error {
		defer func() {
			event, data, hasData = "", data[:0], false
		}()
		if !hasData && event == "" {
			return nil
		}
		name := event
		if name == "" {
			name = eventMessage
		}
		return fn(name, strings.Join(data, "\n"))
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

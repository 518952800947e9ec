package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/diogo/agentchat/internal/chat"
	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

// WebSocketStreamer delivers the assistant stream over a WebSocket. Each
// text frame carries one chunk payload in the same shape as an SSE data line.
type WebSocketStreamer struct {
	dialer *websocket.Dialer
	url    string
	auth   func() string
	logger zerolog.Logger
}

// streamOpen is the first frame written after the handshake
type streamOpen struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// NewWebSocketStreamer creates a streamer for the backend behind client,
// reachable at path (e.g. /ws/chat).
func NewWebSocketStreamer(client *Client, path string) (*WebSocketStreamer, error) {
	if path == "" {
		path = models.PathWebSocketDefault
	}
	wsURL, err := websocketURL(client.BaseURL(), path)
	if err != nil {
		return nil, err
	}
	return &WebSocketStreamer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: client.timeout,
		},
		url:    wsURL,
		auth:   client.authHeader,
		logger: client.logger,
	}, nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// OpenStream dials the socket and sends the prompt. A normal close from the
// server without a done frame completes the stream.
func (w *WebSocketStreamer) OpenStream(ctx context.Context, req chat.StreamRequest, cb chat.StreamCallbacks) (chat.CancelFunc, error) {
	header := http.Header{}
	if auth := w.auth(); auth != "" {
		header.Set("Authorization", auth)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, apierrors.WrapStreamError(apierrors.FromStatus(resp.StatusCode, w.url, ""))
		}
		return nil, apierrors.WrapStreamError(apierrors.NewNetworkError("dial websocket", w.url, err))
	}

	if err := conn.WriteJSON(streamOpen{SessionID: req.ConversationID, Prompt: req.Prompt}); err != nil {
		_ = conn.Close()
		return nil, apierrors.WrapStreamError(apierrors.NewNetworkError("send prompt", w.url, err))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &socketStream{ctx: streamCtx, cancel: cancel, conn: conn, cb: cb}
	w.logger.Debug().Str("conversation_id", req.ConversationID).Msg("websocket stream opened")
	go s.run()
	return s.Cancel, nil
}

type socketStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	cb     chat.StreamCallbacks

	cancelled atomic.Bool
	terminal  sync.Once
}

// Cancel closes the socket
func (s *socketStream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

func (s *socketStream) run() {
	var (
		g           errgroup.Group
		err         error
		interrupted bool
	)

	g.Go(func() error {
		<-s.ctx.Done()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return s.conn.Close()
	})
	g.Go(func() error {
		err = s.read()
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
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.finish(func() {
			if s.cb.OnComplete != nil {
				s.cb.OnComplete()
			}
		})
	default:
		s.fail(apierrors.WrapStreamError(apierrors.NewNetworkError("read websocket", "", err)))
	}
}

func (s *socketStream) read() error {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage || s.cancelled.Load() {
			continue
		}

		chunk := models.ParseChunk(string(data))
		switch chunk.Kind {
		case models.ChunkDone:
			s.finish(func() {
				if s.cb.OnChunk != nil {
					s.cb.OnChunk(chunk)
				}
			})
			return errStop
		case models.ChunkError:
			s.fail(apierrors.NewStreamError(chunk.Code, chunk.Text))
			return errStop
		}
		if s.cb.OnChunk != nil {
			s.cb.OnChunk(chunk)
		}
	}
}

func (s *socketStream) fail(err error) {
	s.finish(func() {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}

func (s *socketStream) finish(fn func()) {
	s.terminal.Do(fn)
}

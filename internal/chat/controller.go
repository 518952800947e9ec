package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

// State is the controller's position in the turn lifecycle
type State int

const (
	StateIdle State = iota
	StateAwaitingSend
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateAwaitingSend:
		return "awaiting-send"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// FinishReason says why a stream was finalized
type FinishReason int

const (
	FinishDone FinishReason = iota
	FinishComplete
	FinishError
	FinishCancelled
)

func (r FinishReason) String() string {
	switch r {
	case FinishComplete:
		return "complete"
	case FinishError:
		return "error"
	case FinishCancelled:
		return "cancelled"
	default:
		return "done"
	}
}

// EventKind tags controller events
type EventKind int

const (
	EventMessageAppended EventKind = iota
	EventContentAppended
	EventMessageFinalized
	EventSendFailed
	EventConversationChanged
)

// Event reports one change of the session. Events are delivered in the
// order the changes were applied.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        models.Message
	Delta          string
	Reason         FinishReason
	Err            error
}

// Controller drives one chat surface: it owns the transcript, the draft and
// at most one live stream.
//
// The observer runs while the controller's lock is held, so it must not call
// back into the controller's mutating methods.
type Controller struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sender   Sender
	streamer Streamer
	store    *Store
	history  *HistoryLoader
	logger   zerolog.Logger
	observer func(Event)

	pageSize       int
	conversationID string

	mu      sync.Mutex
	draft   string
	state   State
	turn    *turn
	stream  *StreamHandle
	binding uint64
	closed  bool
	wg      sync.WaitGroup
}

// turn is one accepted submit, identified by pointer
type turn struct {
	text string
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithObserver registers a callback receiving every Event
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithHistoryPageSize sets the page size used by the history loader
func WithHistoryPageSize(n int) Option {
	return func(c *Controller) {
		c.pageSize = n
	}
}

// WithConversation binds the controller to an existing conversation without
// loading its history.
func WithConversation(id string) Option {
	return func(c *Controller) {
		c.conversationID = id
	}
}

// WithContext sets the parent context of every send and stream
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.ctx = ctx
	}
}

// NewController creates an idle controller
func NewController(sender Sender, streamer Streamer, fetcher HistoryFetcher, opts ...Option) *Controller {
	c := &Controller{
		ctx:      context.Background(),
		sender:   sender,
		streamer: streamer,
		logger:   zerolog.Nop(),
		pageSize: models.DefaultHistoryPage,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctx, c.cancel = context.WithCancel(c.ctx)
	c.store = NewStore(c.conversationID)
	c.history = NewHistoryLoader(fetcher, c.store,
		WithPageSize(c.pageSize),
		WithHistoryLogger(c.logger),
	)
	return c
}

// Draft returns the unsent input text
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the unsent input text
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsStreaming reports whether an assistant message is receiving chunks
func (c *Controller) IsStreaming() bool {
	return c.State() == StateStreaming
}

// IsLoadingHistory reports whether a history page is being fetched
func (c *Controller) IsLoadingHistory() bool {
	return c.history.Loading()
}

// ConversationID returns the active conversation id, "" until the server
// assigned one.
func (c *Controller) ConversationID() string {
	return c.store.ConversationID()
}

// Messages returns a snapshot of the transcript
func (c *Controller) Messages() []models.Message {
	return c.store.Messages()
}

// SubmitDraft submits the current draft
func (c *Controller) SubmitDraft() bool {
	return c.Submit(c.Draft())
}

// Submit starts a turn with text. It returns false, without changing
// anything, when text is blank or a turn is already in flight.
//
// On acceptance the user message is appended and the draft cleared before
// Submit returns; sending and streaming continue in the background.
func (c *Controller) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.closed || c.state != StateIdle {
		c.mu.Unlock()
		return false
	}

	msg := models.NewUserMessage(text)
	c.store.Append(msg)
	c.draft = ""
	c.state = StateAwaitingSend
	t := &turn{text: text}
	c.turn = t
	binding := c.binding
	conversationID := c.store.ConversationID()
	c.emitLocked(Event{Kind: EventMessageAppended, ConversationID: conversationID, Message: msg})

	c.wg.Add(1)
	c.mu.Unlock()

	go c.runTurn(t, binding, conversationID)
	return true
}

func (c *Controller) runTurn(t *turn, binding uint64, conversationID string) {
	defer c.wg.Done()

	res, err := c.sender.Send(c.ctx, conversationID, t.text)

	c.mu.Lock()
	if c.binding != binding {
		c.mu.Unlock()
		c.logger.Debug().Str("conversation_id", conversationID).Msg("dropping send result for replaced conversation")
		return
	}
	if err == nil && c.store.AdoptConversationID(res.ConversationID) {
		c.emitLocked(Event{Kind: EventConversationChanged, ConversationID: res.ConversationID})
	}
	if c.turn != t {
		c.mu.Unlock()
		c.logger.Debug().Str("conversation_id", conversationID).Msg("dropping send result for cancelled turn")
		return
	}
	c.turn = nil

	if err != nil {
		sendErr := apierrors.NewSendError(err)
		c.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("send failed")
		msg := models.NewErrorMessage(fmt.Sprintf("Failed to send message: %v", err))
		c.store.Append(msg)
		c.state = StateIdle
		c.emitLocked(Event{Kind: EventSendFailed, ConversationID: conversationID, Message: msg, Err: sendErr})
		c.mu.Unlock()
		return
	}

	assistant := models.NewAssistantMessage()
	if err := c.store.BeginPending(assistant); err != nil {
		c.logger.Error().Err(err).Msg("cannot start assistant message")
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	h := newStreamHandle(assistant.ID, res.Answer)
	c.stream = h
	c.state = StateStreaming
	conversationID = c.store.ConversationID()
	c.emitLocked(Event{Kind: EventMessageAppended, ConversationID: conversationID, Message: assistant})
	c.mu.Unlock()

	req := StreamRequest{ConversationID: conversationID, Prompt: t.text}
	cancel, err := c.streamer.OpenStream(c.ctx, req, StreamCallbacks{
		OnChunk:    func(chunk models.Chunk) { c.onChunk(h, chunk) },
		OnComplete: func() { c.finish(h, FinishComplete, nil) },
		OnError:    func(err error) { c.finish(h, FinishError, err) },
	})
	if err != nil {
		c.finish(h, FinishError, err)
		if cancel != nil {
			cancel()
		}
		return
	}
	h.bind(cancel)
}

func (c *Controller) onChunk(h *StreamHandle, chunk models.Chunk) {
	switch chunk.Kind {
	case models.ChunkDone:
		c.finish(h, FinishDone, nil)
		return
	case models.ChunkError:
		c.finish(h, FinishError, apierrors.NewStreamError(chunk.Code, chunk.Text))
		return
	case models.ChunkDelta:
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != h {
		return
	}

	var changed bool
	c.store.UpdatePending(func(content string) string {
		next := Accumulate(content, chunk)
		changed = next != content
		return next
	})
	if changed {
		c.emitLocked(Event{
			Kind:           EventContentAppended,
			ConversationID: c.store.ConversationID(),
			Message:        models.Message{ID: h.MessageID(), Role: models.RoleAssistant},
			Delta:          chunk.Text,
		})
	}
}

// finish ends the stream owned by h. Calls for a handle that is no longer
// the active one only make sure its transport is closed.
func (c *Controller) finish(h *StreamHandle, reason FinishReason, err error) {
	c.mu.Lock()
	c.finishLocked(h, reason, err)
	c.mu.Unlock()
	h.Cancel()
}

func (c *Controller) finishLocked(h *StreamHandle, reason FinishReason, err error) {
	if h == nil || c.stream != h {
		return
	}
	c.stream = nil
	c.state = StateIdle

	conversationID := c.store.ConversationID()
	if reason == FinishError {
		c.logger.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Str("message_id", h.MessageID()).
			Msg("stream failed")
	}

	if reason != FinishCancelled && h.fallback != "" {
		c.store.UpdatePending(func(content string) string {
			if content == "" {
				return h.fallback
			}
			return content
		})
	}

	msg, _ := c.store.FinalizePending()
	c.emitLocked(Event{
		Kind:           EventMessageFinalized,
		ConversationID: conversationID,
		Message:        msg,
		Reason:         reason,
		Err:            err,
	})
}

// Cancel stops the turn in flight. A live stream is closed and its message
// frozen as-is; a turn still waiting for the send response is abandoned.
// Cancel without a turn in flight does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	h := c.stream
	switch c.state {
	case StateStreaming:
		c.finishLocked(h, FinishCancelled, nil)
	case StateAwaitingSend:
		c.turn = nil
		c.state = StateIdle
	}
	c.mu.Unlock()
	h.Cancel()
}

// SwitchConversation closes any live stream, clears the transcript and the
// draft, binds the controller to id and loads its first history page.
// The switch itself always happens; the returned error only concerns the
// history load.
func (c *Controller) SwitchConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	h := c.resetLocked(id)
	c.mu.Unlock()
	h.Cancel()

	if id == "" {
		return nil
	}
	return c.history.Load(ctx, id, models.InitialCursor)
}

// StartNewConversation closes any live stream and starts an empty
// conversation that the server will name on the first send.
func (c *Controller) StartNewConversation() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	h := c.resetLocked("")
	c.mu.Unlock()
	h.Cancel()
}

// LoadOlderMessages merges the history page at cursor into the transcript
func (c *Controller) LoadOlderMessages(ctx context.Context, cursor models.Cursor) error {
	id := c.store.ConversationID()
	if id == "" {
		return apierrors.NewHistoryError(id, apierrors.ErrNoConversation)
	}
	return c.history.Load(ctx, id, cursor)
}

func (c *Controller) resetLocked(conversationID string) *StreamHandle {
	h := c.stream
	c.stream = nil
	c.turn = nil
	c.state = StateIdle
	c.draft = ""
	c.binding++
	c.store.Reset(conversationID)
	c.emitLocked(Event{Kind: EventConversationChanged, ConversationID: conversationID})
	return h
}

// Close tears the session down: the live stream is cancelled and Close
// waits for background sends to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.stream
	c.finishLocked(h, FinishCancelled, nil)
	c.turn = nil
	c.state = StateIdle
	c.mu.Unlock()

	h.Cancel()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) emitLocked(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

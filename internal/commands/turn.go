package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/diogo/agentchat/internal/chat"
	"github.com/diogo/agentchat/internal/history"
	"github.com/diogo/agentchat/internal/models"
	"github.com/diogo/agentchat/internal/render"
)

// turnResult is how a turn ended
type turnResult struct {
	Message models.Message
	Reason  chat.FinishReason
	Err     error
	// SendFailed is set when the turn never reached the stream
	SendFailed bool
}

// Failed reports whether the turn produced nothing usable
func (r turnResult) Failed() bool {
	if r.SendFailed {
		return true
	}
	return r.Reason == chat.FinishError && r.Message.Content == ""
}

// streamPrinter is the controller observer of the CLI. It writes reply
// deltas as they arrive and reports finished turns on results.
//
// It runs under the controller lock and never calls back into it.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	styles  render.Styles
	labels  bool
	quiet   bool
	printed map[string]bool
	// onReply runs when the assistant message of a turn appears or the
	// send fails
	onReply func()
	results chan turnResult
}

func newStreamPrinter(out io.Writer, styles render.Styles, labels bool) *streamPrinter {
	return &streamPrinter{
		out:     out,
		styles:  styles,
		labels:  labels,
		printed: make(map[string]bool),
		results: make(chan turnResult, 8),
	}
}

// Observe handles one controller event
func (p *streamPrinter) Observe(ev chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case chat.EventMessageAppended:
		if ev.Message.Role != models.RoleAssistant {
			return
		}
		p.replyStarted()
		if p.labels && !p.quiet {
			fmt.Fprintln(p.out, p.styles.Assistant.Render("✦ Assistant"))
		}

	case chat.EventContentAppended:
		if p.quiet || ev.Delta == "" {
			return
		}
		p.printed[ev.Message.ID] = true
		fmt.Fprint(p.out, ev.Delta)

	case chat.EventMessageFinalized:
		if !p.quiet {
			// A fallback answer arrives whole at finalization
			if !p.printed[ev.Message.ID] && ev.Message.Content != "" {
				fmt.Fprint(p.out, ev.Message.Content)
			}
			fmt.Fprintln(p.out)
			switch ev.Reason {
			case chat.FinishCancelled:
				fmt.Fprintln(p.out, p.styles.Status.Render("[cancelled]"))
			case chat.FinishError:
				fmt.Fprintln(p.out, p.styles.Error.Render(fmt.Sprintf("[stream error: %v]", ev.Err)))
			}
		}
		delete(p.printed, ev.Message.ID)
		p.deliver(turnResult{Message: ev.Message, Reason: ev.Reason, Err: ev.Err})

	case chat.EventSendFailed:
		p.replyStarted()
		if !p.quiet {
			fmt.Fprintln(p.out, p.styles.Error.Render(ev.Message.Content))
		}
		p.deliver(turnResult{Message: ev.Message, Err: ev.Err, SendFailed: true})
	}
}

func (p *streamPrinter) replyStarted() {
	if p.onReply != nil {
		p.onReply()
	}
}

func (p *streamPrinter) deliver(res turnResult) {
	select {
	case p.results <- res:
	default:
	}
}

// archiver snapshots finished turns into the local archive
type archiver struct {
	store   *history.Store
	baseURL string
	logger  zerolog.Logger
}

// Save stores the transcript of conversationID. Failures are logged; the
// archive never fails a chat.
func (a *archiver) Save(conversationID string, msgs []models.Message) {
	if a == nil || a.store == nil || conversationID == "" || len(msgs) == 0 {
		return
	}
	if _, err := a.store.SaveTranscript(conversationID, a.baseURL, msgs); err != nil {
		a.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to archive transcript")
	}
}

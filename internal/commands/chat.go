package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diogo/agentchat/internal/chat"
	"github.com/diogo/agentchat/internal/logging"
	"github.com/diogo/agentchat/internal/models"
	"github.com/diogo/agentchat/internal/render"
)

const chatHelp = `Commands:
  /new             Start a new conversation
  /switch <id>     Switch to a server conversation and load its history
  /older <cursor>  Load the history page before message <cursor>
  /cancel          Stop the reply being streamed
  /history         Print the current transcript
  /quit            Leave the chat`

func newChatCmd(a *app) *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

Each line is sent as a prompt and the reply is streamed as it arrives.
Lines starting with / are commands; type /help to list them.
Type /quit or press Ctrl+C to end the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), conversation)
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Resume a server conversation")
	return cmd
}

// chatSession is one interactive run
type chatSession struct {
	a       *app
	ctrl    *chat.Controller
	printer *streamPrinter
	styles  render.Styles
	archive *archiver
	// settled receives a value after each finished turn has been archived
	settled chan struct{}
	// interactive sessions keep reading while a reply streams
	interactive bool
	// inFlight is set from Submit until the turn has settled
	inFlight bool
}

func (a *app) runChat(ctx context.Context, conversation string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	conn, err := a.connect()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer conn.Close()

	styles := a.styles()
	s := &chatSession{
		a:           a,
		printer:     newStreamPrinter(a.deps.Stdout, styles, true),
		styles:      styles,
		archive:     a.archive(conn.Backend.BaseURL()),
		settled:     make(chan struct{}, 1),
		interactive: a.deps.IsTerminal(),
	}
	s.ctrl = chat.NewController(conn.Backend, conn.Streamer, conn.Backend,
		chat.WithContext(ctx),
		chat.WithLogger(logging.Component(a.logger, "controller")),
		chat.WithObserver(s.printer.Observe),
		chat.WithHistoryPageSize(a.cfg.PageSize),
	)
	defer s.ctrl.Close()

	go s.archiveTurns(ctx)

	out := a.deps.Stdout
	fmt.Fprintln(out, styles.Hint.Render("Connected to "+conn.Backend.BaseURL()+". Type /help for commands."))
	if conversation != "" {
		s.switchTo(ctx, conversation)
	}

	lines := readLines(ctx, a.deps.Stdin)
	for {
		if s.interactive {
			fmt.Fprint(out, styles.User.Render("> "))
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				s.waitIdle(ctx)
				return nil
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle processes one input line and reports whether to quit
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	out := s.a.deps.Stdout

	if !strings.HasPrefix(line, "/") {
		s.collectSettled()
		if !s.ctrl.Submit(line) {
			fmt.Fprintln(out, s.styles.Status.Render("A reply is still streaming. Use /cancel to stop it."))
			return false
		}
		s.inFlight = true
		if !s.interactive {
			s.waitIdle(ctx)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/new":
		s.inFlight = false
		s.ctrl.StartNewConversation()
		fmt.Fprintln(out, s.styles.Status.Render("Started a new conversation."))
	case "/switch":
		if arg == "" {
			fmt.Fprintln(out, s.styles.Error.Render("usage: /switch <id>"))
			return false
		}
		s.inFlight = false
		s.switchTo(ctx, arg)
	case "/older":
		s.loadOlder(ctx, arg)
	case "/cancel":
		switch s.ctrl.State() {
		case chat.StateIdle:
			fmt.Fprintln(out, s.styles.Hint.Render("Nothing to cancel."))
		case chat.StateAwaitingSend:
			// An abandoned send reports nothing
			s.inFlight = false
			s.ctrl.Cancel()
			fmt.Fprintln(out, s.styles.Status.Render("[cancelled]"))
		default:
			s.ctrl.Cancel()
		}
	case "/history":
		s.printTranscript(s.ctrl.Messages())
	default:
		fmt.Fprintln(out, s.styles.Error.Render("unknown command "+cmd+". Type /help for commands."))
	}
	return false
}

func (s *chatSession) switchTo(ctx context.Context, id string) {
	out := s.a.deps.Stdout
	err := s.ctrl.SwitchConversation(ctx, id)
	fmt.Fprintln(out, s.styles.Status.Render("Switched to conversation "+id+"."))
	if err != nil {
		fmt.Fprintln(out, formatErrorMessage(err, "Failed to load history"))
		return
	}
	s.printTranscript(s.ctrl.Messages())
}

func (s *chatSession) loadOlder(ctx context.Context, arg string) {
	out := s.a.deps.Stdout
	cursor := models.Cursor(arg)
	if cursor.IsInitial() {
		// Default to the oldest message shown
		msgs := s.ctrl.Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(out, s.styles.Hint.Render("No messages loaded yet."))
			return
		}
		cursor = models.Cursor(msgs[0].ID)
	}

	before := s.ctrl.Messages()
	if err := s.ctrl.LoadOlderMessages(ctx, cursor); err != nil {
		fmt.Fprintln(out, formatErrorMessage(err, "Failed to load older messages"))
		return
	}
	after := s.ctrl.Messages()
	added := len(after) - len(before)
	if added <= 0 {
		fmt.Fprintln(out, s.styles.Hint.Render("No older messages."))
		return
	}
	s.printTranscript(after[:added])
}

func (s *chatSession) printTranscript(msgs []models.Message) {
	out := s.a.deps.Stdout
	for _, msg := range msgs {
		switch {
		case msg.Error:
			fmt.Fprintln(out, s.styles.Error.Render(msg.Content))
		case msg.Role == models.RoleUser:
			fmt.Fprintln(out, s.styles.User.Render("You: ")+msg.Content)
		default:
			fmt.Fprintln(out, s.styles.Assistant.Render("Assistant: ")+msg.Content)
		}
	}
}

// archiveTurns snapshots the transcript after each finished turn
func (s *chatSession) archiveTurns(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.printer.results:
			s.archive.Save(s.ctrl.ConversationID(), s.ctrl.Messages())
			select {
			case s.settled <- struct{}{}:
			default:
			}
		}
	}
}

func (s *chatSession) collectSettled() {
	select {
	case <-s.settled:
		s.inFlight = false
	default:
	}
}

// waitIdle blocks until the turn in flight has finished and been archived
func (s *chatSession) waitIdle(ctx context.Context) {
	if !s.inFlight {
		return
	}
	select {
	case <-s.settled:
		s.inFlight = false
	case <-ctx.Done():
	}
}

// readLines feeds the lines of r to a channel closed at EOF
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diogo/agentchat/internal/chat"
	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/logging"
	"github.com/diogo/agentchat/internal/render"
)

// askOptions are the flags of a one-shot prompt
type askOptions struct {
	conversation string
	output       string
	file         string
	copy         bool
	raw          bool
}

func (o *askOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.conversation, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Save response to file")
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "Read prompt from file")
	cmd.Flags().BoolVar(&o.copy, "copy", false, "Copy the response to the clipboard")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "Print only the response text")
}

func newAskCmd(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and stream the reply",
		Long: `Send a single prompt and stream the reply to stdout.

Without --conversation a new conversation is started; its id is printed
so it can be continued later. The prompt may also come from --file or
from piped stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := a.readPrompt(args, opts.file)
			if err != nil {
				return err
			}
			return a.runAsk(cmd.Context(), prompt, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

// runAsk sends prompt and waits for the reply to finish
func (a *app) runAsk(ctx context.Context, prompt string, opts askOptions) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return apierrors.ErrEmptyPrompt
	}
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

	decorated := a.deps.IsTerminal() && !opts.raw
	toFile := opts.output != ""

	printer := newStreamPrinter(a.deps.Stdout, a.styles(), decorated)
	printer.quiet = toFile

	if decorated {
		spin := newSpinner(a.deps.Stderr, "Waiting for reply")
		spin.start()
		printer.onReply = spin.stopWithError
		defer spin.stopWithError()
	}

	ctrl := chat.NewController(conn.Backend, conn.Streamer, conn.Backend,
		chat.WithContext(ctx),
		chat.WithLogger(logging.Component(a.logger, "controller")),
		chat.WithObserver(printer.Observe),
		chat.WithHistoryPageSize(a.cfg.PageSize),
		chat.WithConversation(opts.conversation),
	)
	defer ctrl.Close()

	if !ctrl.Submit(prompt) {
		return apierrors.ErrEmptyPrompt
	}

	var res turnResult
	select {
	case res = <-printer.results:
	case <-ctx.Done():
		ctrl.Cancel()
		return ctx.Err()
	}

	conversationID := ctrl.ConversationID()
	a.archive(conn.Backend.BaseURL()).Save(conversationID, ctrl.Messages())

	if res.Failed() {
		return res.Err
	}
	text := res.Message.Content

	if toFile {
		if err := os.WriteFile(opts.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintln(a.deps.Stderr, render.NewStyles(a.renderOptions()).Hint.Render(
			fmt.Sprintf("✓ Response saved to %s", opts.output)))
	}

	if opts.copy || a.cfg.CopyToClipboard {
		if err := a.deps.CopyToClipboard(text); err != nil {
			a.logger.Warn().Err(err).Msg("failed to copy to clipboard")
		} else if decorated {
			fmt.Fprintln(a.deps.Stderr, "✓ Copied to clipboard")
		}
	}

	if decorated && conversationID != "" && opts.conversation == "" {
		fmt.Fprintln(a.deps.Stderr, a.styles().Hint.Render(
			fmt.Sprintf("conversation %s (continue with: agentchat ask -c %s ...)", conversationID, conversationID)))
	}
	return nil
}

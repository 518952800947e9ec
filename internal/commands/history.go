package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diogo/agentchat/internal/history"
	"github.com/diogo/agentchat/internal/models"
	"github.com/diogo/agentchat/internal/render"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the local transcript archive",
		Long: `View and manage transcripts archived after each finished turn.

` + history.ListAliases(),
	}

	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistoryExportCmd(a),
		newHistorySearchCmd(a),
		newHistoryRenameCmd(a),
		newHistoryDeleteCmd(a),
		newHistoryClearCmd(a),
	)
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			conversations, err := store.ListConversations()
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}

			out := a.deps.Stdout
			if len(conversations) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tID\tTITLE\tMESSAGES\tUPDATED")
			for i, conv := range conversations {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					i+1, conv.ID, truncate(conv.Title, 40), len(conv.Messages), history.FormatRelativeTime(conv.UpdatedAt))
			}
			return w.Flush()
		},
	}
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var rendered bool
	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			conv, err := history.NewResolver(store).ResolveWithInfo(args[0])
			if err != nil {
				return err
			}

			out := a.deps.Stdout
			if rendered {
				opts := a.renderOptions()
				if a.deps.IsTerminal() {
					opts = opts.WithWidth(min(getTerminalWidth(), 120))
				}
				fmt.Fprint(out, render.MarkdownOrPlain(history.ToMarkdown(conv), opts))
				return nil
			}

			fmt.Fprintf(out, "ID: %s\n", conv.ID)
			fmt.Fprintf(out, "Title: %s\n", conv.Title)
			if conv.BaseURL != "" {
				fmt.Fprintf(out, "Server: %s\n", conv.BaseURL)
			}
			fmt.Fprintf(out, "Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated: %s\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Messages: %d\n\n", len(conv.Messages))

			for i, msg := range conv.Messages {
				role := "You"
				if msg.Role == models.RoleAssistant {
					role = "Assistant"
				}
				if msg.Error {
					role = "Error"
				}
				stamp := ""
				if !msg.Timestamp.IsZero() {
					stamp = " (" + msg.Timestamp.Format("15:04") + ")"
				}
				fmt.Fprintf(out, "[%d] %s%s:\n  %s\n\n", i+1, role, stamp, msg.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&rendered, "render", "r", false, "Render the transcript as markdown")
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var (
		format   string
		output   string
		noErrors bool
	)
	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Export a conversation as markdown, json or yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}

			// The output extension decides the format when none is given
			if format == "" && output != "" {
				format = filepath.Ext(output)
			}
			f, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}

			data, err := store.Export(id, history.ExportOptions{Format: f, IncludeErrors: !noErrors})
			if err != nil {
				return err
			}

			if output == "" {
				_, err = a.deps.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(a.deps.Stderr, "Exported conversation %s to %s\n", id, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format (markdown, json, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&noErrors, "no-errors", false, "Leave out failed-send messages")
	return cmd
}

func newHistorySearchCmd(a *app) *cobra.Command {
	var content bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search archived conversations by title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			results, err := store.SearchConversations(args[0], content)
			if err != nil {
				return err
			}

			out := a.deps.Stdout
			if len(results) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%s\t%s\n", r.Conversation.ID, r.Conversation.Title)
				if r.MatchField == "content" {
					fmt.Fprintf(out, "  %s\n", r.MatchSnippet)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, "Also search message content")
	return cmd
}

func newHistoryRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <ref> <title>",
		Short: "Change the title of an archived conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := store.UpdateTitle(id, title); err != nil {
				return fmt.Errorf("failed to rename: %w", err)
			}
			fmt.Fprintf(a.deps.Stdout, "Renamed conversation %s to %q\n", id, strings.TrimSpace(title))
			return nil
		},
	}
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteConversation(id); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
			fmt.Fprintf(a.deps.Stdout, "Deleted conversation: %s\n", id)
			return nil
		},
	}
}

func newHistoryClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all archived conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			if err := store.ClearAll(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintln(a.deps.Stdout, "All conversations deleted.")
			return nil
		},
	}
}

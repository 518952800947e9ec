package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConversationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage server-side conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the most recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			convs, err := conn.Backend.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			out := a.deps.Stdout
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
			for _, c := range convs {
				updated := "-"
				if !c.UpdatedAt.IsZero() {
					updated = c.UpdatedAt.Format("2006-01-02 15:04")
				} else if !c.CreatedAt.IsZero() {
					updated = c.CreatedAt.Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, truncate(c.Title, 40), updated)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new [title]",
		Short: "Create an empty conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			conv, err := conn.Backend.CreateConversation(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.deps.Stdout, "Created conversation %s", conv.ID)
			if conv.Title != "" {
				fmt.Fprintf(a.deps.Stdout, " (%s)", conv.Title)
			}
			fmt.Fprintln(a.deps.Stdout)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.Backend.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.deps.Stdout, "Deleted conversation: %s\n", args[0])
			return nil
		},
	})

	return cmd
}

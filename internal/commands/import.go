package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/agentchat/internal/config"
)

func newImportTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-token <token-or-path>",
		Short: "Store the bearer token used for requests",
		Long: `Store the bearer token sent with every request.

The argument is either the token itself or a path to a file holding:
1. The bare token
2. {"token": "...", "refresh_token": "..."}
3. {"token": "...", "refreshToken": "..."} as kept by the web client

AGENTCHAT_TOKEN, when set, takes precedence over the stored token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.ImportCredentials(args[0]); err != nil {
				return fmt.Errorf("failed to import token: %w", err)
			}

			path, _ := config.GetCredentialsPath()
			fmt.Fprintf(a.deps.Stdout, "Token imported successfully to %s\n", path)
			return nil
		},
	}
}

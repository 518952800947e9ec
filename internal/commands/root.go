// Package commands provides the agentchat command line.
package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/diogo/agentchat/internal/config"
	"github.com/diogo/agentchat/internal/history"
	"github.com/diogo/agentchat/internal/logging"
	"github.com/diogo/agentchat/internal/render"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// app is the state shared by the commands of one invocation
type app struct {
	deps   *Dependencies
	cfg    config.Config
	logger zerolog.Logger

	configPath string
	baseURL    string
	transport  string
	logLevel   string
}

// NewRootCmd builds the command tree around deps
func NewRootCmd(deps *Dependencies) *cobra.Command {
	a := &app{deps: deps, cfg: config.DefaultConfig(), logger: zerolog.Nop()}

	var opts askOptions
	rootCmd := &cobra.Command{
		Use:   "agentchat [prompt]",
		Short: "Streaming chat client for the agent backend",
		Long: `agentchat talks to a chat backend that streams replies as server-sent
events. It keeps one conversation at a time, streams the reply as it is
produced and archives finished transcripts locally.

Examples:
  agentchat chat                        Start interactive chat
  agentchat "What is Go?"               Send a single prompt
  agentchat ask -c 42 "And then?"       Continue conversation 42
  cat prompt.md | agentchat             Read prompt from stdin
  agentchat import-token <token>        Store the bearer token
  agentchat history show @last          Show the last archived chat`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(a.deps.Stdout, "agentchat %s (built %s)\n", Version, BuildTime)
				return nil
			}
			prompt, err := a.readPrompt(args, opts.file)
			if err != nil {
				return err
			}
			if prompt == "" {
				return cmd.Help()
			}
			return a.runAsk(cmd.Context(), prompt, opts)
		},
	}

	rootCmd.SetIn(deps.Stdin)
	rootCmd.SetOut(deps.Stdout)
	rootCmd.SetErr(deps.Stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.agentchat/config.json)")
	flags.StringVar(&a.baseURL, "base-url", "", "Backend base URL")
	flags.StringVar(&a.transport, "transport", "", "Stream transport (sse, websocket)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		newAskCmd(a),
		newChatCmd(a),
		newConversationsCmd(a),
		newHistoryCmd(a),
		newImportTokenCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	deps := NewDependencies()
	if err := NewRootCmd(deps).Execute(); err != nil {
		fmt.Fprintln(deps.Stderr, formatErrorMessage(err, "Error"))
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger. Flags win over the
// config file and the environment.
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(a.baseURL, "/")
	}
	if a.transport != "" {
		cfg.Transport = strings.ToLower(a.transport)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Log, a.deps.Stderr)
	return nil
}

// readPrompt takes the prompt from a file, the arguments or piped stdin,
// in that order.
func (a *app) readPrompt(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if f, ok := a.deps.Stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	if a.deps.Stdin == nil {
		return "", nil
	}
	data, err := io.ReadAll(a.deps.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (a *app) connect() (*Connection, error) {
	return a.deps.Connect(a.cfg, a.logger)
}

// archive returns the transcript archiver, or nil when archiving is off
func (a *app) archive(baseURL string) *archiver {
	if !a.cfg.Archive.Enabled {
		return nil
	}
	store, err := a.deps.OpenArchive(a.cfg)
	if err != nil {
		a.logger.Warn().Err(err).Msg("archive unavailable")
		return nil
	}
	return &archiver{store: store, baseURL: baseURL, logger: a.logger}
}

func (a *app) openArchive() (*history.Store, error) {
	store, err := a.deps.OpenArchive(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func (a *app) renderOptions() render.Options {
	return render.OptionsFromConfig(a.cfg.Markdown)
}

func (a *app) styles() render.Styles {
	opts := a.renderOptions()
	if !a.deps.IsTerminal() {
		opts = opts.WithStyle("notty")
	}
	return render.NewStyles(opts)
}

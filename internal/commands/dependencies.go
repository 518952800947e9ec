package commands

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/diogo/agentchat/internal/api"
	"github.com/diogo/agentchat/internal/chat"
	"github.com/diogo/agentchat/internal/config"
	"github.com/diogo/agentchat/internal/history"
	"github.com/diogo/agentchat/internal/logging"
	"github.com/diogo/agentchat/internal/models"
)

// Backend is the server surface the commands talk to. api.Client is the
// production implementation.
type Backend interface {
	chat.Sender
	chat.HistoryFetcher
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	CreateConversation(ctx context.Context, title string) (models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
	BaseURL() string
}

// Connection bundles the collaborators of one command run
type Connection struct {
	Backend  Backend
	Streamer chat.Streamer
	closer   func()
}

// Close releases the underlying client
func (c *Connection) Close() {
	if c != nil && c.closer != nil {
		c.closer()
	}
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Connect builds the server collaborators for cfg
	Connect func(cfg config.Config, logger zerolog.Logger) (*Connection, error)

	// OpenArchive opens the local transcript archive
	OpenArchive func(cfg config.Config) (*history.Store, error)

	// CopyToClipboard writes text to the system clipboard
	CopyToClipboard func(text string) error

	// IsTerminal reports whether stdout is an interactive terminal
	IsTerminal func() bool
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Connect:         connect,
		OpenArchive:     openArchive,
		CopyToClipboard: clipboard.WriteAll,
		IsTerminal:      isStdoutTTY,
	}
}

// connect creates the HTTP client and the configured stream transport
func connect(cfg config.Config, logger zerolog.Logger) (*Connection, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		if !errors.Is(err, config.ErrNoCredentials) {
			return nil, err
		}
		logger.Warn().Msg("no token configured, requests are sent unauthenticated")
		creds = nil
	}

	client, err := api.NewClient(
		api.WithBaseURL(cfg.BaseURL),
		api.WithStreamPath(cfg.StreamPath),
		api.WithTimeout(cfg.Timeout()),
		api.WithConversationLimit(cfg.ConversationLimit),
		api.WithCredentials(creds),
		api.WithLogger(logging.Component(logger, "api")),
	)
	if err != nil {
		return nil, err
	}

	conn := &Connection{Backend: client, Streamer: client, closer: client.Close}
	if cfg.Transport == config.TransportWebSocket {
		ws, err := api.NewWebSocketStreamer(client, cfg.WebSocketPath)
		if err != nil {
			client.Close()
			return nil, err
		}
		conn.Streamer = ws
	}
	return conn, nil
}

func openArchive(cfg config.Config) (*history.Store, error) {
	dir, err := config.GetArchiveDir(cfg)
	if err != nil {
		return nil, err
	}
	return history.NewStore(dir)
}

// isStdoutTTY returns true if stdout is connected to a terminal
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

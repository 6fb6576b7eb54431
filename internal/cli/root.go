// Package cli provides the command-line interface for agentdesk.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/agentdesk/internal/client"
	"github.com/raphaelgruber/agentdesk/internal/config"
	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and backend client
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	collector  *metrics.Collector
	apiClient  *client.Client
	identities store.IdentityStore
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agentdesk",
	Short: "Live-chat console for support agents",
	Long: `Agentdesk is a terminal console for support agents. It watches the queue of
waiting customers, accepts conversations up to a concurrency limit and keeps a
live channel open for each of them.

Sign in once with 'agentdesk login', then start 'agentdesk console'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Load config
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		// The console owns the terminal; its logs go to the file only.
		if cmd.Name() == "console" {
			logger, logCleanup = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		}
		slog.SetDefault(logger)

		collector = metrics.NewCollector()
		apiClient = client.New(cfg.APIBaseURL,
			client.WithTimeout(cfg.RequestTimeout),
			client.WithMetrics(collector),
			client.WithLogger(logger),
		)

		identities, err = openIdentityStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open identity store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if identities != nil {
			if err := identities.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close identity store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// openIdentityStore picks the configured identity backend.
func openIdentityStore(ctx context.Context, c config.Config) (store.IdentityStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch c.IdentityStore {
	case config.IdentityStoreRedis:
		return store.NewRedisStore(ctx, c.RedisURL, c.RedisKey)
	default:
		path := c.IdentityFile
		if path == "" {
			path = store.DefaultIdentityPath()
		}
		return store.NewFileStore(path), nil
	}
}

// signedIn returns the saved identity or a hint to log in first.
func signedIn(ctx context.Context) (models.AgentIdentity, error) {
	identity, err := identities.Load(ctx)
	if errors.Is(err, store.ErrNoIdentity) {
		return models.AgentIdentity{}, errors.New("not signed in, run 'agentdesk login' first")
	}
	if err != nil {
		return models.AgentIdentity{}, fmt.Errorf("load identity: %w", err)
	}
	return identity, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(consoleCmd)
}

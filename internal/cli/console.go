package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/agentdesk/internal/events"
	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
	"github.com/raphaelgruber/agentdesk/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	consoleRestore  bool
	consoleLineMode bool
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the live chat console",
	Long: `Open the live chat console. Waiting customers are listed at the top; accept
one with /accept N and type to reply. Type /help for all commands.

When stdout is not a terminal, or with --line, the console reads commands line
by line and prints chat activity as it happens.

Examples:
  agentdesk console
  agentdesk console --restore=false
  agentdesk console --line < script.txt`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleRestore, "restore", true, "reopen conversations already assigned to you")
	consoleCmd.Flags().BoolVar(&consoleLineMode, "line", false, "plain line-by-line mode instead of the full-screen UI")
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity, err := signedIn(ctx)
	if err != nil {
		return err
	}

	publisher := openPublisher(ctx)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "error", err)
		}
	}()

	coord := session.NewCoordinator(apiClient, session.Options{
		MaxConcurrentChats: cfg.MaxConcurrentChats,
		HistoryLimit:       cfg.HistoryLimit,
		QueuePageSize:      cfg.QueuePageSize,
		Socket: realtime.Options{
			URL:              cfg.SocketURL,
			Path:             cfg.SocketPath,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
			Metrics:          collector,
		},
		Publisher: publisher,
		Logger:    logger,
	})

	d := newDesk(coord, identity, cfg.RequestTimeout)
	d.start(ctx, consoleRestore)

	if consoleLineMode || !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		err = runLineConsole(ctx, d, os.Stdin, cmd.OutOrStdout())
	} else {
		err = runTUI(ctx, d)
	}

	coord.Shutdown()
	printMetrics(cmd.ErrOrStderr(), collector.Snapshot())
	return err
}

// openPublisher connects to the event broker when one is configured.
// A broker that cannot be reached disables events rather than the console.
func openPublisher(ctx context.Context) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	p, err := events.NewAMQPPublisher(ctx, events.AMQPConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		AppID:    "agentdesk",
	}, logger)
	if err != nil {
		logger.Warn("event publishing disabled", "error", err)
		return events.Nop{}
	}
	return p
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// runTUI runs the full-screen console until the agent quits.
func runTUI(ctx context.Context, d *desk) error {
	p := tea.NewProgram(newConsoleModel(ctx, d), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console UI error: %w", err)
	}
	return nil
}

// printMetrics summarizes backend calls made during the run.
func printMetrics(w io.Writer, snap metrics.Snapshot) {
	if len(snap.Operations) == 0 {
		return
	}
	fmt.Fprintf(w, "\nBackend calls (%.0fs)\n", snap.UptimeSeconds)
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "  %-24s %5d calls  %3d failed  avg %6.1fms  p95 %5dms  max %5dms\n",
			op.Name, op.Count, op.Failures, op.AvgTimeMs, op.P95TimeMs, op.MaxTimeMs)
	}
}

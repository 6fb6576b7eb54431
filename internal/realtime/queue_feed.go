package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/agentdesk/internal/models"
)

// QueueFeed streams full snapshots of the waiting queue for one agent.
type QueueFeed struct {
	logger    *slog.Logger
	sock      *link
	snapshots chan []models.QueueEntry
	dialErr   error // written before Disconnected is closed
}

// OpenQueueFeed subscribes to queue snapshots and returns immediately.
// The feed never reconnects: once Disconnected() is closed it is spent.
func OpenQueueFeed(ctx context.Context, opts Options) (*QueueFeed, error) {
	endpoint, err := opts.endpoint(url.Values{"scope": {"queue"}})
	if err != nil {
		return nil, fmt.Errorf("open queue feed: %w", err)
	}

	logger := opts.logger().With("channel", "queue")
	f := &QueueFeed{
		logger:    logger,
		sock:      newLink(ctx, logger),
		snapshots: make(chan []models.QueueEntry, 1),
	}
	go f.run(opts.dialer(), endpoint)
	return f, nil
}

// Snapshots delivers queue snapshots. Each one replaces the previous
// entirely; a slow reader only ever sees the latest.
func (f *QueueFeed) Snapshots() <-chan []models.QueueEntry {
	return f.snapshots
}

// Errors delivers informational error text pushed by the backend.
func (f *QueueFeed) Errors() <-chan string {
	return f.sock.errors
}

// Disconnected is closed once the feed has terminated for any reason.
func (f *QueueFeed) Disconnected() <-chan struct{} {
	return f.sock.disconnected
}

// DialErr returns the error that kept the feed from ever connecting, or nil
// if it connected. Only meaningful once Disconnected is closed.
func (f *QueueFeed) DialErr() error {
	select {
	case <-f.sock.disconnected:
		return f.dialErr
	default:
		return nil
	}
}

// Close detaches the feed. No snapshots are delivered after it returns.
func (f *QueueFeed) Close() {
	f.sock.close()
}

func (f *QueueFeed) run(dialer *websocket.Dialer, endpoint string) {
	defer f.sock.finish()

	if err := f.sock.dial(dialer, endpoint); err != nil {
		f.logger.Warn("queue feed connect failed", "error", err)
		f.dialErr = err
		return
	}
	f.logger.Debug("subscribed to queue updates")

	if err := f.sock.readLoop(f.handle); err != nil {
		f.logger.Info("queue feed lost", "error", err)
	}
}

func (f *QueueFeed) handle(fr Frame) {
	switch fr.Event {
	case EventQueueSnapshot:
		var entries []models.QueueEntry
		if err := fr.Decode(&entries); err != nil {
			f.logger.Warn("ignoring queue snapshot", "error", err)
			return
		}
		if entries == nil {
			entries = []models.QueueEntry{}
		}
		f.publish(entries)

	case EventError:
		var p ErrorPayload
		if err := fr.Decode(&p); err != nil {
			f.logger.Warn("ignoring error frame", "error", err)
			return
		}
		f.sock.emitError(p.Text())

	default:
		f.logger.Debug("ignoring frame", "event", fr.Event)
	}
}

// publish replaces any unread snapshot with entries.
func (f *QueueFeed) publish(entries []models.QueueEntry) {
	for {
		select {
		case f.snapshots <- entries:
			return
		default:
		}
		select {
		case <-f.snapshots:
		default:
		}
		if f.sock.closing() {
			return
		}
	}
}

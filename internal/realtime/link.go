package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/models"
)

// DefaultPath is the websocket endpoint path on the backend.
const DefaultPath = "/ws"

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Options configures how a channel reaches the backend.
type Options struct {
	// URL is the backend base URL. http(s) schemes are mapped to ws(s).
	URL  string
	Path string

	Identity         models.AgentIdentity
	HandshakeTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Dialer  *websocket.Dialer
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout > 0 {
		return o.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (o Options) dialer() *websocket.Dialer {
	if o.Dialer != nil {
		return o.Dialer
	}
	return &websocket.Dialer{HandshakeTimeout: o.handshakeTimeout()}
}

// endpoint builds the websocket URL with the agent's identity and extra params.
func (o Options) endpoint(params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(o.URL))
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("parse socket url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse socket url: missing host in %q", o.URL)
	}

	path := o.Path
	if path == "" {
		path = DefaultPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	q := u.Query()
	q.Set("role", "agent")
	q.Set("token", o.Identity.AgentID)
	if o.Identity.DisplayName != "" {
		q.Set("displayName", o.Identity.DisplayName)
	}
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// link owns one websocket and its read loop.
// It is shared plumbing for Connection and QueueFeed.
type link struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	errors       chan string
	disconnected chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// newLink detaches from the caller's cancellation: only close ends the link.
func newLink(ctx context.Context, logger *slog.Logger) *link {
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &link{
		logger:       logger,
		ctx:          lctx,
		cancel:       cancel,
		errors:       make(chan string, 16),
		disconnected: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (l *link) dial(dialer *websocket.Dialer, endpoint string) error {
	conn, resp, err := dialer.DialContext(l.ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	cancelled := l.ctx.Err() != nil
	l.mu.Unlock()

	if cancelled {
		conn.Close()
		return ErrClosed
	}
	return nil
}

// readLoop dispatches frames until the socket fails or is closed.
// It returns nil when the link was closed locally.
func (l *link) readLoop(handle func(Frame)) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if l.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		handle(f)
	}
}

func (l *link) write(f Frame) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// emitError forwards informational error text unless the link is closing.
func (l *link) emitError(text string) {
	select {
	case l.errors <- text:
	case <-l.ctx.Done():
	}
}

// drop closes the socket without marking the link as locally closed.
func (l *link) drop() {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}
	deadline := time.Now().Add(closeGracePeriod)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.Close()
}

// close stops the link and waits for the read loop to exit.
func (l *link) close() {
	l.closeOnce.Do(func() {
		l.cancel()
		l.drop()
	})
	<-l.done
}

func (l *link) closing() bool {
	return l.ctx.Err() != nil
}

// finish is called exactly once by the owner's run goroutine.
func (l *link) finish() {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	close(l.disconnected)
	l.cancel()
	close(l.done)
}

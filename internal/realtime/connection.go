package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/models"
)

// State is the lifecycle position of a Connection.
type State string

// Connection states. A Connection moves
// DISCONNECTED → CONNECTING → HANDSHAKED → (ACTIVE ⇄ ERROR) → DISCONNECTED
// and is never reused after reaching DISCONNECTED again.
const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateHandshaked   State = "HANDSHAKED"
	StateActive       State = "ACTIVE"
	StateError        State = "ERROR"
)

// HandshakeResult is the single outcome of a join attempt.
type HandshakeResult struct {
	Handshake models.Handshake
	Err       error
}

type ackResult struct {
	message models.Message
	err     error
}

// Connection is the agent's real-time channel for one conversation.
type Connection struct {
	conversationID string
	logger         *slog.Logger
	metrics        *metrics.Collector
	sock           *link

	mu            sync.Mutex
	state         State
	handshakeSent bool
	lastError     string
	pending       map[string]chan ackResult

	handshake chan HandshakeResult
	messages  chan models.Message
}

// Open starts joining conversationID and returns immediately.
// The outcome of the join is delivered on Handshake(). Cancelling ctx
// after Open returns does not affect the Connection; use Close.
func Open(ctx context.Context, conversationID string, opts Options) (*Connection, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("open connection: empty conversation id")
	}
	endpoint, err := opts.endpoint(url.Values{"conversationId": {conversationID}})
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	logger := opts.logger().With("conversation_id", conversationID)
	c := &Connection{
		conversationID: conversationID,
		logger:         logger,
		metrics:        opts.Metrics,
		sock:           newLink(ctx, logger),
		state:          StateDisconnected,
		pending:        make(map[string]chan ackResult),
		handshake:      make(chan HandshakeResult, 1),
		messages:       make(chan models.Message, 64),
	}

	go c.run(opts.dialer(), endpoint, opts.handshakeTimeout())
	return c, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handshake delivers exactly one result: the handshake or the reason it failed.
func (c *Connection) Handshake() <-chan HandshakeResult {
	return c.handshake
}

// Messages delivers inbound messages in arrival order.
// Delivery is at-least-once; duplicates are passed through.
func (c *Connection) Messages() <-chan models.Message {
	return c.messages
}

// Errors delivers informational error text pushed by the backend.
func (c *Connection) Errors() <-chan string {
	return c.sock.errors
}

// Disconnected is closed once the Connection has terminated for any reason.
func (c *Connection) Disconnected() <-chan struct{} {
	return c.sock.disconnected
}

// Close terminates the Connection. No events are delivered after it returns.
func (c *Connection) Close() {
	c.sock.close()
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// deliverHandshake reports whether r was the first result for this attempt.
func (c *Connection) deliverHandshake(r HandshakeResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handshakeSent {
		return false
	}
	c.handshakeSent = true
	if r.Err == nil {
		c.state = StateHandshaked
	}
	c.handshake <- r
	return true
}

func (c *Connection) connectError(err error) *ConnectError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &ConnectError{Reason: c.lastError, Err: err}
}

func (c *Connection) run(dialer *websocket.Dialer, endpoint string, timeout time.Duration) {
	defer c.finish()

	c.setState(StateConnecting)
	start := time.Now()

	timer := time.AfterFunc(timeout, func() {
		if c.deliverHandshake(HandshakeResult{Err: c.connectError(ErrHandshakeTimeout)}) {
			c.metrics.RecordFailure(metrics.OpHandshake, time.Since(start))
			c.logger.Warn("handshake timed out", "timeout", timeout)
			c.sock.drop()
		}
	})
	defer timer.Stop()

	if err := c.sock.dial(dialer, endpoint); err != nil {
		if c.deliverHandshake(HandshakeResult{Err: c.connectError(err)}) {
			c.metrics.RecordFailure(metrics.OpHandshake, time.Since(start))
			c.logger.Warn("connect failed", "error", err)
		}
		return
	}

	c.mu.Lock()
	expired := c.handshakeSent
	c.mu.Unlock()
	if expired {
		return
	}

	err := c.sock.readLoop(func(f Frame) { c.handle(f, start, timer) })
	if err != nil {
		c.logger.Info("connection lost", "error", err)
	}
}

func (c *Connection) handle(f Frame, start time.Time, timer *time.Timer) {
	switch f.Event {
	case EventSystem:
		var hs models.Handshake
		if err := f.Decode(&hs); err != nil {
			c.logger.Warn("ignoring handshake", "error", err)
			return
		}
		if c.deliverHandshake(HandshakeResult{Handshake: hs}) {
			timer.Stop()
			c.metrics.RecordTiming(metrics.OpHandshake, time.Since(start))
			c.logger.Debug("handshake complete")
		}

	case EventMessage:
		var m models.Message
		if err := f.Decode(&m); err != nil {
			c.logger.Warn("ignoring message", "error", err)
			return
		}
		if m.ConversationID == "" {
			m.ConversationID = c.conversationID
		}
		c.markActive()
		select {
		case c.messages <- m:
		case <-c.sock.ctx.Done():
		}

	case EventError:
		var p ErrorPayload
		if err := f.Decode(&p); err != nil {
			c.logger.Warn("ignoring error frame", "error", err)
			return
		}
		text := p.Text()
		c.mu.Lock()
		c.lastError = text
		if c.state == StateHandshaked || c.state == StateActive {
			c.state = StateError
		}
		c.mu.Unlock()
		c.sock.emitError(text)

	case EventAck:
		c.resolve(f)

	default:
		c.logger.Debug("ignoring frame", "event", f.Event)
	}
}

func (c *Connection) markActive() {
	c.mu.Lock()
	if c.state == StateHandshaked || c.state == StateError {
		c.state = StateActive
	}
	c.mu.Unlock()
}

func (c *Connection) resolve(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.AckID]
	delete(c.pending, f.AckID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ack without pending send", "ack_id", f.AckID)
		return
	}

	var p ErrorPayload
	if err := f.Decode(&p); err == nil && p.Error != "" {
		ch <- ackResult{err: &SendError{Reason: p.Error}}
		return
	}
	var m models.Message
	if err := f.Decode(&m); err != nil {
		ch <- ackResult{err: err}
		return
	}
	ch <- ackResult{message: m}
}

// finish runs once when the read loop is over.
func (c *Connection) finish() {
	c.deliverHandshake(HandshakeResult{Err: c.connectError(ErrClosed)})

	c.mu.Lock()
	for id, ch := range c.pending {
		ch <- ackResult{err: ErrClosed}
		delete(c.pending, id)
	}
	c.pending = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.sock.finish()
}

// Send posts a text message and waits for the backend's acknowledgement.
// A rejection is returned as *SendError; the message is not retried.
func (c *Connection) Send(ctx context.Context, content string) (models.Message, error) {
	start := time.Now()
	m, err := c.send(ctx, content)
	c.metrics.Observe(metrics.OpSend, start, err)
	return m, err
}

func (c *Connection) send(ctx context.Context, content string) (models.Message, error) {
	ackID := uuid.NewString()
	ch := make(chan ackResult, 1)

	c.mu.Lock()
	switch c.state {
	case StateHandshaked, StateActive, StateError:
	default:
		c.mu.Unlock()
		return models.Message{}, ErrNotConnected
	}
	c.pending[ackID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending != nil {
			delete(c.pending, ackID)
		}
		c.mu.Unlock()
	}()

	frame, err := NewFrame(EventMessage, ackID, OutboundMessage{
		ConversationID: c.conversationID,
		Content:        content,
		Type:           string(models.MessageText),
	})
	if err != nil {
		return models.Message{}, err
	}
	if err := c.sock.write(frame); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return models.Message{}, fmt.Errorf("send message: %w", res.err)
		}
		c.markActive()
		return res.message, nil
	case <-ctx.Done():
		return models.Message{}, fmt.Errorf("send message: %w", ctx.Err())
	}
}

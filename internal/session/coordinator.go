package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/agentdesk/internal/client"
	"github.com/raphaelgruber/agentdesk/internal/events"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/queue"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
	"github.com/raphaelgruber/agentdesk/internal/timeline"
)

// DefaultMaxConcurrentChats is the session cap when none is configured.
const DefaultMaxConcurrentChats = 3

const publishTimeout = 5 * time.Second

// API is the REST boundary the coordinator depends on. *client.Client implements it.
type API interface {
	ListQueue(ctx context.Context) ([]models.QueueEntry, error)
	ListConversations(ctx context.Context, agentID string, statuses []models.ConversationStatus) ([]models.ConversationMetadata, error)
	Accept(ctx context.Context, conversationID string, identity models.AgentIdentity) (*models.ConversationMetadata, error)
	History(ctx context.Context, conversationID, agentID string, limit int) ([]models.Message, error)
	CloseConversation(ctx context.Context, conversationID string, identity models.AgentIdentity) (*models.ConversationMetadata, error)
}

// Options configures a Coordinator.
type Options struct {
	MaxConcurrentChats int
	HistoryLimit       int
	QueuePageSize      int

	// Socket is the template for every real-time channel; Identity is filled in per call.
	Socket realtime.Options

	Publisher events.Publisher
	Logger    *slog.Logger
}

// record is the coordinator's private state for one session.
type record struct {
	id       string
	identity models.AgentIdentity
	conn     *realtime.Connection
	ctx      context.Context
	cancel   context.CancelFunc

	conversation *models.ConversationMetadata
	stage        Stage
	messages     []models.Message
	sending      bool
	errorText    string
	statusText   string
	statusLabel  string
}

// Coordinator owns every session of one agent and the queue view.
// All state lives behind one mutex; connections report into it from
// one pump goroutine per session.
type Coordinator struct {
	api       API
	opts      Options
	logger    *slog.Logger
	publisher events.Publisher

	mu       sync.Mutex
	records  map[string]*record
	order    []string
	pending  map[string]uint64
	nextSlot uint64
	view     *queue.View
	feed     *realtime.QueueFeed
	notice   string

	changes chan struct{}
	outbox  chan events.Envelope
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewCoordinator creates a coordinator. Call Shutdown when done with it.
func NewCoordinator(api API, opts Options) *Coordinator {
	if opts.MaxConcurrentChats <= 0 {
		opts.MaxConcurrentChats = DefaultMaxConcurrentChats
	}
	opts.HistoryLimit = client.ClampHistoryLimit(opts.HistoryLimit)
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		api:       api,
		opts:      opts,
		logger:    logger,
		publisher: opts.Publisher,
		records:   make(map[string]*record),
		pending:   make(map[string]uint64),
		view:      queue.NewView(opts.QueuePageSize),
		changes:   make(chan struct{}, 1),
		outbox:    make(chan events.Envelope, 64),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go c.runPublisher()
	return c
}

// Shutdown tears down every session and stops publishing events.
func (c *Coordinator) Shutdown() {
	c.TeardownAll()
	c.once.Do(func() { close(c.stop) })
	<-c.stopped
}

// Capacity returns the maximum number of concurrent sessions.
func (c *Coordinator) Capacity() int {
	return c.opts.MaxConcurrentChats
}

// Changes signals that some observable state changed. Signals coalesce;
// readers should re-read snapshots after each one.
func (c *Coordinator) Changes() <-chan struct{} {
	return c.changes
}

func (c *Coordinator) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// =============================================================================
// ADMISSION
// =============================================================================

// Admit accepts a queued conversation and opens a session for it.
// Capacity and duplicate checks happen before any network call; slots are
// reserved in call order. A conversation already taken by another agent
// fails with an error matching client.ErrConflict and is pruned from the queue view.
func (c *Coordinator) Admit(ctx context.Context, entry models.QueueEntry, identity models.AgentIdentity) (string, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return "", err
	}
	id := strings.TrimSpace(entry.ConversationID)
	if id == "" {
		return "", fmt.Errorf("admit: empty conversation id")
	}

	slot, err := c.reserve(id)
	if err != nil {
		return "", err
	}

	conv, err := c.api.Accept(ctx, id, identity)
	if err != nil {
		c.mu.Lock()
		c.releaseLocked(id, slot)
		if errors.Is(err, client.ErrConflict) {
			c.view.Remove(id)
		}
		c.mu.Unlock()
		c.notify()

		if errors.Is(err, client.ErrConflict) {
			c.logger.Info("conversation taken by another agent", "conversation_id", id)
			c.publish(events.AdmitConflict, id, identity.AgentID, "")
		} else {
			c.logger.Warn("accept failed", "conversation_id", id, "error", err)
		}
		return "", fmt.Errorf("admit %s: %w", id, err)
	}

	c.mu.Lock()
	if c.pending[id] != slot {
		c.mu.Unlock()
		return "", fmt.Errorf("admit %s: %w", id, ErrAdmissionCancelled)
	}
	c.releaseLocked(id, slot)
	if _, err := c.startLocked(id, identity, conv); err != nil {
		c.mu.Unlock()
		c.notify()
		return "", fmt.Errorf("admit %s: %w", id, err)
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Info("session admitted", "conversation_id", id)
	c.publish(events.SessionAdmitted, id, identity.AgentID, "")
	return id, nil
}

// reserve claims a capacity slot for id.
func (c *Coordinator) reserve(id string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; ok {
		return 0, ErrAlreadyPresent
	}
	if _, ok := c.pending[id]; ok {
		return 0, ErrAlreadyPresent
	}
	if len(c.records)+len(c.pending) >= c.opts.MaxConcurrentChats {
		return 0, ErrCapacityExceeded
	}
	c.nextSlot++
	c.pending[id] = c.nextSlot
	return c.nextSlot, nil
}

// releaseLocked drops the reservation for id if it is still slot's.
// Caller must hold c.mu.
func (c *Coordinator) releaseLocked(id string, slot uint64) {
	if c.pending[id] == slot {
		delete(c.pending, id)
	}
}

// startLocked creates the session record and starts joining.
// Caller must hold c.mu.
func (c *Coordinator) startLocked(id string, identity models.AgentIdentity, conv *models.ConversationMetadata) (*record, error) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := realtime.Open(ctx, id, c.socketOptions(identity))
	if err != nil {
		cancel()
		return nil, err
	}

	rec := &record{
		id:           id,
		identity:     identity,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		conversation: conv,
		stage:        StageConnecting,
		statusText:   TextConnecting,
		statusLabel:  LabelConnecting,
	}
	c.records[id] = rec
	c.order = append(c.order, id)
	go c.pump(rec)
	return rec, nil
}

func (c *Coordinator) socketOptions(identity models.AgentIdentity) realtime.Options {
	opts := c.opts.Socket
	opts.Identity = identity
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return opts
}

// Restore reopens sessions for conversations already assigned to the agent,
// up to the remaining capacity. It returns how many sessions were opened.
func (c *Coordinator) Restore(ctx context.Context, identity models.AgentIdentity, statuses []models.ConversationStatus) (int, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		statuses = []models.ConversationStatus{models.StatusAssigned}
	}

	convs, err := c.api.ListConversations(ctx, identity.AgentID, statuses)
	if err != nil {
		c.setNotice(client.Describe(err, "Unable to restore conversations."))
		return 0, fmt.Errorf("restore: %w", err)
	}

	var restored []string
	c.mu.Lock()
	for i := range convs {
		conv := convs[i]
		if conv.ID == "" || conv.Status == models.StatusClosed {
			continue
		}
		if _, ok := c.records[conv.ID]; ok {
			continue
		}
		if _, ok := c.pending[conv.ID]; ok {
			continue
		}
		if len(c.records)+len(c.pending) >= c.opts.MaxConcurrentChats {
			break
		}
		if _, err := c.startLocked(conv.ID, identity, &conv); err != nil {
			c.logger.Warn("restore failed", "conversation_id", conv.ID, "error", err)
			continue
		}
		restored = append(restored, conv.ID)
	}
	c.mu.Unlock()
	c.notify()

	for _, id := range restored {
		c.publish(events.SessionRestored, id, identity.AgentID, "")
	}
	c.logger.Info("sessions restored", "count", len(restored), "available", len(convs))
	return len(restored), nil
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Dismiss removes a session and releases its connection. Once it returns,
// nothing about the session is observable anymore. Unknown ids are ignored.
func (c *Coordinator) Dismiss(id string) {
	c.mu.Lock()
	rec := c.removeLocked(id)
	c.mu.Unlock()
	if rec == nil {
		return
	}

	rec.conn.Close()
	c.notify()
	c.logger.Info("session dismissed", "conversation_id", id)
	c.publish(events.SessionDismissed, id, rec.identity.AgentID, "")
}

// removeLocked unlinks the record and stops its pump. Caller must hold c.mu.
func (c *Coordinator) removeLocked(id string) *record {
	rec, ok := c.records[id]
	if !ok {
		return nil
	}
	delete(c.records, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	rec.cancel()
	return rec
}

// TeardownAll dismisses every session, cancels pending admissions and
// detaches the queue feed.
func (c *Coordinator) TeardownAll() {
	c.mu.Lock()
	ids := append([]string(nil), c.order...)
	recs := make([]*record, 0, len(ids))
	for _, id := range ids {
		if rec := c.removeLocked(id); rec != nil {
			recs = append(recs, rec)
		}
	}
	c.pending = make(map[string]uint64)
	feed := c.feed
	c.feed = nil
	c.view.Clear()
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.conn.Close()
		}()
	}
	if feed != nil {
		feed.Close()
	}
	wg.Wait()
	c.notify()

	for _, rec := range recs {
		c.publish(events.SessionDismissed, rec.id, rec.identity.AgentID, "teardown")
	}
}

// =============================================================================
// SEND / CLOSE
// =============================================================================

// Send posts content to the session's conversation and waits for the ack.
// The timeline only changes when the message comes back over the connection.
func (c *Coordinator) Send(ctx context.Context, id, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}

	c.mu.Lock()
	rec, ok := c.records[id]
	switch {
	case !ok:
		c.mu.Unlock()
		return ErrSessionNotFound
	case rec.stage.Terminal():
		c.mu.Unlock()
		return ErrSessionEnded
	case rec.stage == StageConnecting:
		c.mu.Unlock()
		return ErrNotConnected
	case rec.sending:
		c.mu.Unlock()
		return ErrSendInProgress
	}
	rec.sending = true
	rec.errorText = ""
	conn := rec.conn
	c.mu.Unlock()
	c.notify()

	_, err := conn.Send(ctx, content)

	c.mu.Lock()
	if c.records[id] == rec {
		rec.sending = false
		if err != nil && !rec.stage.Terminal() {
			rec.errorText = sendErrorText(err)
		}
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Warn("send failed", "conversation_id", id, "error", err)
		return fmt.Errorf("send %s: %w", id, err)
	}
	return nil
}

func sendErrorText(err error) string {
	var sendErr *realtime.SendError
	if errors.As(err, &sendErr) && sendErr.Reason != "" {
		return sendErr.Reason
	}
	return TextSendFailed
}

// Close ends the conversation. The session is ENDED before the backend is
// asked; a failed close is reported on the session but never rolled back.
func (c *Coordinator) Close(ctx context.Context, id string, identity models.AgentIdentity) error {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return ErrSessionNotFound
	}
	if rec.stage.Terminal() {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	rec.messages = timeline.Append(rec.messages, localSystemMessage(id, TextAgentClosed))
	c.endLocked(rec, TextAgentClosed, LabelClosed)
	rec.errorText = ""
	conn := rec.conn
	c.mu.Unlock()

	conn.Close()
	c.notify()
	c.publish(events.SessionEnded, id, identity.AgentID, "agent")

	conv, err := c.api.CloseConversation(ctx, id, identity)

	c.mu.Lock()
	if c.records[id] == rec {
		if err != nil {
			rec.errorText = client.Describe(err, TextCloseFailed)
		} else if conv != nil {
			rec.conversation = conv
		}
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Warn("close failed", "conversation_id", id, "error", err)
		return fmt.Errorf("close %s: %w", id, err)
	}
	return nil
}

// endLocked moves rec to ENDED. The caller releases the connection after
// unlocking. Caller must hold c.mu.
func (c *Coordinator) endLocked(rec *record, statusText, label string) bool {
	if !rec.stage.CanAdvance(StageEnded) {
		return false
	}
	rec.stage = StageEnded
	rec.sending = false
	rec.statusText = statusText
	rec.statusLabel = label
	return true
}

func localSystemMessage(conversationID, content string) models.Message {
	return models.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: conversationID,
		Type:           models.MessageSystem,
		Sender:         &models.Participant{ID: "system", Type: models.ParticipantSystem, DisplayName: "System"},
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

// =============================================================================
// READ SIDE
// =============================================================================

// Sessions returns snapshots of every session in admission order.
func (c *Coordinator) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Session, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id].snapshot())
	}
	return out
}

// Session returns a snapshot of one session.
func (c *Coordinator) Session(id string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// Count returns the number of sessions, ended ones included.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Notice returns the current system-wide notice, if any.
func (c *Coordinator) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// ClearNotice dismisses the system-wide notice.
func (c *Coordinator) ClearNotice() {
	c.setNotice("")
}

func (c *Coordinator) setNotice(text string) {
	c.mu.Lock()
	c.notice = text
	c.mu.Unlock()
	c.notify()
}

// =============================================================================
// EVENTS
// =============================================================================

func (c *Coordinator) publish(t events.Type, conversationID, agentID, reason string) {
	env := events.New(t, conversationID, agentID, reason)
	select {
	case c.outbox <- env:
	case <-c.stop:
	default:
		c.logger.Warn("event outbox full, dropping event", "type", t, "conversation_id", conversationID)
	}
}

func (c *Coordinator) runPublisher() {
	defer close(c.stopped)
	for {
		select {
		case env := <-c.outbox:
			c.deliver(env)
		case <-c.stop:
			for {
				select {
				case env := <-c.outbox:
					c.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) deliver(env events.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, env); err != nil {
		c.logger.Warn("publish event failed", "type", env.Meta.Type, "conversation_id", env.Data.ConversationID, "error", err)
	}
}

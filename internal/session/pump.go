package session

import (
	"errors"

	"github.com/raphaelgruber/agentdesk/internal/events"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
	"github.com/raphaelgruber/agentdesk/internal/timeline"
)

// pump applies one connection's events to its record until the session is
// dismissed or the connection terminates.
func (c *Coordinator) pump(rec *record) {
	conn := rec.conn
	handshake := conn.Handshake()

	for {
		select {
		case <-rec.ctx.Done():
			return
		case res := <-handshake:
			handshake = nil
			c.onHandshake(rec, res)
		case m := <-conn.Messages():
			c.onMessage(rec, m)
		case text := <-conn.Errors():
			c.onError(rec, text)
		case <-conn.Disconnected():
			c.drain(rec, handshake)
			c.onDisconnect(rec)
			return
		}
	}
}

// drain applies whatever the connection buffered before it went away.
func (c *Coordinator) drain(rec *record, handshake <-chan realtime.HandshakeResult) {
	if handshake != nil {
		select {
		case res := <-handshake:
			c.onHandshake(rec, res)
		default:
		}
	}
	for {
		select {
		case m := <-rec.conn.Messages():
			c.onMessage(rec, m)
		default:
			return
		}
	}
}

// current reports whether rec is still the live record for its id.
// Caller must hold c.mu.
func (c *Coordinator) current(rec *record) bool {
	return c.records[rec.id] == rec
}

func (c *Coordinator) onHandshake(rec *record, res realtime.HandshakeResult) {
	c.mu.Lock()
	if !c.current(rec) || rec.stage.Terminal() {
		c.mu.Unlock()
		return
	}

	if res.Err != nil {
		c.endLocked(rec, TextConnectFailed, LabelFailed)
		rec.errorText = joinErrorText(res.Err)
		c.mu.Unlock()

		rec.conn.Close()
		c.notify()
		c.logger.Warn("join failed", "conversation_id", rec.id, "error", res.Err)
		c.publish(events.SessionEnded, rec.id, rec.identity.AgentID, "connect_failed")
		return
	}

	if rec.stage.CanAdvance(StageActive) {
		rec.stage = StageActive
		rec.statusText = TextConnected
		rec.statusLabel = LabelActive
	}
	if res.Handshake.Conversation.ID != "" {
		conv := res.Handshake.Conversation
		rec.conversation = &conv
	}
	c.mu.Unlock()
	c.notify()

	go c.loadHistory(rec)
}

func joinErrorText(err error) string {
	var cerr *realtime.ConnectError
	if errors.As(err, &cerr) && cerr.Reason != "" {
		return cerr.Reason
	}
	return TextJoinFailed
}

func (c *Coordinator) onMessage(rec *record, m models.Message) {
	c.mu.Lock()
	if !c.current(rec) || rec.stage.Terminal() {
		c.mu.Unlock()
		return
	}

	rec.messages = timeline.Append(rec.messages, m)

	reason, closed := ClassifyClose(m)
	if !closed {
		if m.SenderType() == models.ParticipantCustomer {
			rec.statusText = waitingText(m)
		}
		c.mu.Unlock()
		c.notify()
		return
	}

	c.endLocked(rec, reason.StatusText, reason.Label)
	c.mu.Unlock()

	rec.conn.Close()
	c.notify()
	c.logger.Info("conversation closed", "conversation_id", rec.id, "closed_by", reason.ClosedBy)
	c.publish(events.SessionEnded, rec.id, rec.identity.AgentID, string(reason.ClosedBy))
}

func (c *Coordinator) onError(rec *record, text string) {
	c.mu.Lock()
	if !c.current(rec) || rec.stage.Terminal() {
		c.mu.Unlock()
		return
	}
	rec.errorText = text
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) onDisconnect(rec *record) {
	c.mu.Lock()
	if !c.current(rec) || rec.stage.Terminal() {
		c.mu.Unlock()
		return
	}
	c.endLocked(rec, TextConnectionLost, LabelDisconnected)
	rec.errorText = TextConnectionLost
	c.mu.Unlock()

	c.notify()
	c.logger.Warn("connection lost", "conversation_id", rec.id)
	c.publish(events.SessionEnded, rec.id, rec.identity.AgentID, "disconnected")
}

// loadHistory merges prior messages into the timeline. A failure is
// reported on the session and does not end it.
func (c *Coordinator) loadHistory(rec *record) {
	history, err := c.api.History(rec.ctx, rec.id, rec.identity.AgentID, c.opts.HistoryLimit)

	c.mu.Lock()
	if !c.current(rec) {
		c.mu.Unlock()
		return
	}
	if err != nil {
		if !rec.stage.Terminal() {
			rec.errorText = TextHistoryFailed
		}
		c.mu.Unlock()
		c.notify()
		c.logger.Warn("history load failed", "conversation_id", rec.id, "error", err)
		return
	}
	rec.messages = timeline.Merge(rec.messages, history)
	c.mu.Unlock()
	c.notify()
}

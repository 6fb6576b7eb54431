package session

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/agentdesk/internal/client"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/queue"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
)

// Queue notices.
const (
	// NoticeQueueDisconnected is raised when the live queue feed goes away.
	NoticeQueueDisconnected = "Disconnected from queue updates."
	// NoticeQueueUnavailable is raised when the feed never connected. The
	// REST listing, if any, stays in place.
	NoticeQueueUnavailable = "Live queue updates are unavailable. Use /refresh to reload the list."
)

// ConnectQueue subscribes to live queue snapshots. It is a no-op while a
// feed is attached.
func (c *Coordinator) ConnectQueue(ctx context.Context, identity models.AgentIdentity) error {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.feed != nil {
		c.mu.Unlock()
		return nil
	}
	feed, err := realtime.OpenQueueFeed(ctx, c.socketOptions(identity))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect queue: %w", err)
	}
	c.feed = feed
	if c.notice == NoticeQueueDisconnected || c.notice == NoticeQueueUnavailable {
		c.notice = ""
	}
	c.mu.Unlock()
	c.notify()

	go c.pumpQueue(feed)
	return nil
}

// DisconnectQueue detaches the queue feed and clears the queue view.
func (c *Coordinator) DisconnectQueue() {
	c.mu.Lock()
	feed := c.feed
	c.feed = nil
	c.view.Clear()
	c.mu.Unlock()

	if feed != nil {
		feed.Close()
	}
	c.notify()
}

// QueueConnected reports whether a queue feed is attached.
func (c *Coordinator) QueueConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed != nil
}

func (c *Coordinator) pumpQueue(feed *realtime.QueueFeed) {
	for {
		select {
		case entries := <-feed.Snapshots():
			c.mu.Lock()
			if c.feed != feed {
				c.mu.Unlock()
				return
			}
			c.view.Replace(entries)
			c.mu.Unlock()
			c.notify()

		case text := <-feed.Errors():
			c.mu.Lock()
			if c.feed == feed {
				c.notice = text
			}
			c.mu.Unlock()
			c.notify()

		case <-feed.Disconnected():
			c.mu.Lock()
			if c.feed != feed {
				c.mu.Unlock()
				return
			}
			c.feed = nil
			dialErr := feed.DialErr()
			if dialErr != nil {
				c.notice = NoticeQueueUnavailable
			} else {
				c.view.Replace(nil)
				c.notice = NoticeQueueDisconnected
			}
			c.mu.Unlock()

			c.notify()
			c.logger.Warn("queue feed disconnected", "never_connected", dialErr != nil)
			return
		}
	}
}

// RefreshQueue replaces the queue view with a REST listing.
func (c *Coordinator) RefreshQueue(ctx context.Context) error {
	entries, err := c.api.ListQueue(ctx)
	if err != nil {
		c.setNotice(client.Describe(err, "Unable to refresh the queue."))
		return fmt.Errorf("refresh queue: %w", err)
	}

	c.mu.Lock()
	c.view.Replace(entries)
	c.mu.Unlock()
	c.notify()
	return nil
}

// QueuePage returns the current page of waiting conversations, leaving out
// those that already have a session.
func (c *Coordinator) QueuePage() queue.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Page(c.hasSessionLocked)
}

// SetQueuePage moves to page (0-based), clamped into range.
func (c *Coordinator) SetQueuePage(page int) int {
	c.mu.Lock()
	n := c.view.SetPage(page, c.hasSessionLocked)
	c.mu.Unlock()
	c.notify()
	return n
}

// hasSessionLocked reports whether id is open or being admitted.
// Caller must hold c.mu.
func (c *Coordinator) hasSessionLocked(id string) bool {
	if _, ok := c.records[id]; ok {
		return true
	}
	_, ok := c.pending[id]
	return ok
}

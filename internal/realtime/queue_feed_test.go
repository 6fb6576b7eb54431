package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/chattest"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSnapshot(t *testing.T, feed *realtime.QueueFeed) []models.QueueEntry {
	t.Helper()
	select {
	case s := <-feed.Snapshots():
		return s
	case <-time.After(waitFor):
		t.Fatal("no snapshot")
		return nil
	}
}

func ids(entries []models.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ConversationID)
	}
	return out
}

func TestQueueFeedSnapshots(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")

	feed, err := realtime.OpenQueueFeed(context.Background(), options(srv))
	require.NoError(t, err)
	defer feed.Close()

	assert.Equal(t, []string{"c1"}, ids(nextSnapshot(t, feed)))
	require.Eventually(t, func() bool { return srv.QueuePeers() == 1 }, waitFor, 10*time.Millisecond)

	srv.Enqueue("c2")
	require.Eventually(t, func() bool {
		select {
		case s := <-feed.Snapshots():
			return len(s) == 2
		default:
			return false
		}
	}, waitFor, 10*time.Millisecond)

	srv.SetQueue(nil)
	require.Eventually(t, func() bool {
		select {
		case s := <-feed.Snapshots():
			return s != nil && len(s) == 0
		default:
			return false
		}
	}, waitFor, 10*time.Millisecond)
}

func TestQueueFeedDisconnect(t *testing.T) {
	srv := chattest.NewServer(t)

	feed, err := realtime.OpenQueueFeed(context.Background(), options(srv))
	require.NoError(t, err)
	defer feed.Close()
	nextSnapshot(t, feed)
	require.Eventually(t, func() bool { return srv.QueuePeers() == 1 }, waitFor, 10*time.Millisecond)

	srv.DropQueue()
	select {
	case <-feed.Disconnected():
	case <-time.After(waitFor):
		t.Fatal("feed not disconnected")
	}
}

func TestQueueFeedDialErr(t *testing.T) {
	srv := chattest.NewServer(t)

	feed, err := realtime.OpenQueueFeed(context.Background(), options(srv))
	require.NoError(t, err)
	nextSnapshot(t, feed)
	assert.NoError(t, feed.DialErr(), "nil while connected")
	feed.Close()
	<-feed.Disconnected()
	assert.NoError(t, feed.DialErr(), "connected once, so no dial error")

	opts := options(srv)
	opts.Path = "/missing"
	unreachable, err := realtime.OpenQueueFeed(context.Background(), opts)
	require.NoError(t, err)
	defer unreachable.Close()
	select {
	case <-unreachable.Disconnected():
	case <-time.After(waitFor):
		t.Fatal("feed not disconnected")
	}
	assert.Error(t, unreachable.DialErr())
}

package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/chattest"
	"github.com/raphaelgruber/agentdesk/internal/client"
	"github.com/raphaelgruber/agentdesk/internal/events"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
	"github.com/raphaelgruber/agentdesk/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

var agent = models.AgentIdentity{AgentID: "agent-7", DisplayName: "Ada"}

func newCoordinator(t *testing.T, srv *chattest.Server, opts session.Options) *session.Coordinator {
	t.Helper()
	opts.Socket = realtime.Options{URL: srv.URL, HandshakeTimeout: time.Second}
	c := session.NewCoordinator(client.New(srv.URL), opts)
	t.Cleanup(c.Shutdown)
	return c
}

func entry(id string) models.QueueEntry {
	return models.QueueEntry{ConversationID: id}
}

func admit(t *testing.T, c *session.Coordinator, id string) {
	t.Helper()
	got, err := c.Admit(context.Background(), entry(id), agent)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func waitStage(t *testing.T, c *session.Coordinator, id string, stage session.Stage) session.Session {
	t.Helper()
	var s session.Session
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = c.Session(id)
		return ok && s.Stage == stage
	}, waitFor, tick, "session %s never reached %s", id, stage)
	return s
}

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestAdmitOpensSession(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})

	admit(t, c, "c1")

	s, ok := c.Session("c1")
	require.True(t, ok)
	assert.Contains(t, []session.Stage{session.StageConnecting, session.StageActive}, s.Stage)

	s = waitStage(t, c, "c1", session.StageActive)
	assert.Equal(t, session.TextConnected, s.StatusText)
	assert.Equal(t, session.LabelActive, s.StatusLabel)
	assert.True(t, s.ComposerEnabled())
	require.NotNil(t, s.Conversation)
	assert.Equal(t, models.StatusAssigned, s.Conversation.Status)
	assert.Equal(t, 1, c.Count())
}

func TestCapacityScenario(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2", "c3", "c4")
	c := newCoordinator(t, srv, session.Options{MaxConcurrentChats: 3})

	admit(t, c, "c1")
	admit(t, c, "c2")
	admit(t, c, "c3")

	_, err := c.Admit(context.Background(), entry("c4"), agent)
	require.ErrorIs(t, err, session.ErrCapacityExceeded)
	assert.Equal(t, 0, srv.AcceptCalls("c4"), "no network call past capacity")
	assert.Equal(t, 3, c.Count())

	c.Dismiss("c2")
	admit(t, c, "c4")

	var ids []string
	for _, s := range c.Sessions() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c1", "c3", "c4"}, ids)
}

func TestEndedSessionsCountTowardCapacity(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	c := newCoordinator(t, srv, session.Options{MaxConcurrentChats: 1})

	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)
	srv.CloseByCustomer("c1", "Jane")
	waitStage(t, c, "c1", session.StageEnded)

	_, err := c.Admit(context.Background(), entry("c2"), agent)
	assert.ErrorIs(t, err, session.ErrCapacityExceeded)

	c.Dismiss("c1")
	admit(t, c, "c2")
}

func TestConcurrentAdmitsNeverExceedCapacity(t *testing.T) {
	srv := chattest.NewServer(t)
	const n = 10
	var ids []string
	for i := range n {
		ids = append(ids, fmt.Sprintf("c%d", i))
	}
	srv.Enqueue(ids...)
	c := newCoordinator(t, srv, session.Options{MaxConcurrentChats: 3})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Admit(context.Background(), entry(id), agent)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, session.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	assert.Equal(t, n-3, rejected)
	assert.Equal(t, 3, c.Count())
}

func TestDoubleAdmitYieldsOneSession(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Admit(context.Background(), entry("c1"), agent)
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, session.ErrAlreadyPresent):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
	assert.Equal(t, 1, c.Count())
	assert.Equal(t, 1, srv.AcceptCalls("c1"))

	waitStage(t, c, "c1", session.StageActive)
	assert.Equal(t, 1, srv.Joins("c1"))

	_, err := c.Admit(context.Background(), entry("c1"), agent)
	assert.ErrorIs(t, err, session.ErrAlreadyPresent)
}

func TestAdmitRejectsInvalidInput(t *testing.T) {
	srv := chattest.NewServer(t)
	c := newCoordinator(t, srv, session.Options{})

	_, err := c.Admit(context.Background(), entry("c1"), models.AgentIdentity{AgentID: "x", DisplayName: "Ada"})
	assert.ErrorIs(t, err, session.ErrInvalidIdentity)

	_, err = c.Admit(context.Background(), entry("  "), agent)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Count())
}

func TestConflictPrunesQueue(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	rec := &events.Recorder{}
	c := newCoordinator(t, srv, session.Options{Publisher: rec})
	require.NoError(t, c.RefreshQueue(context.Background()))
	require.Equal(t, 2, c.QueuePage().Total)

	srv.AssignTo("c1", "someone-else")
	_, err := c.Admit(context.Background(), entry("c1"), agent)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrConflict)
	assert.Equal(t, chattest.ConflictMessage, client.Describe(err, ""))

	assert.Equal(t, 0, c.Count())
	page := c.QueuePage()
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "c2", page.Entries[0].ConversationID)
	assert.Equal(t, 0, srv.Joins("c1"))
	assert.Equal(t, 1, srv.AcceptCalls("c1"), "conflicts are not retried")

	require.Eventually(t, func() bool {
		return len(rec.Types("c1")) == 1
	}, waitFor, tick)
	assert.Equal(t, []events.Type{events.AdmitConflict}, rec.Types("c1"))
}

func TestAcceptFailureReleasesSlot(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	srv.Fail(chattest.EndpointAccept, 1)
	c := newCoordinator(t, srv, session.Options{MaxConcurrentChats: 1})

	_, err := c.Admit(context.Background(), entry("c1"), agent)
	require.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrConflict)
	assert.Equal(t, 0, c.Count())

	admit(t, c, "c1")
}

func TestCustomerCloseEndsSession(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	srv.CloseByCustomer("c1", "Jane")

	s := waitStage(t, c, "c1", session.StageEnded)
	assert.Equal(t, "Jane ended the chat.", s.StatusText)
	assert.Equal(t, session.LabelDisconnected, s.StatusLabel)
	assert.False(t, s.ComposerEnabled())
	require.NotEmpty(t, s.Messages)
	assert.True(t, s.Messages[len(s.Messages)-1].IsSystem())

	err := c.Send(context.Background(), "c1", "are you there?")
	assert.ErrorIs(t, err, session.ErrSessionEnded)
	require.Eventually(t, func() bool { return srv.Peers("c1") == 0 }, waitFor, tick, "connection released")
}

func TestCustomerMessageUpdatesStatus(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	srv.Push("c1", chattest.Message("c1", "Jane", "hello?", time.Now().UTC()))

	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return s.StatusText == "Jane is waiting for your reply."
	}, waitFor, tick)
}

func TestHistoryAndLiveRace(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	base := time.Now().UTC().Add(-time.Minute)
	m1 := chattest.Message("c1", "Jane", "m1", base)
	m2 := chattest.Message("c1", "Jane", "m2", base.Add(time.Second))
	srv.SetHistory("c1", m1)
	release := srv.HoldHistory("c1")

	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	srv.Broadcast("c1", m2)
	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return len(s.Messages) == 1
	}, waitFor, tick)

	release()
	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return len(s.Messages) == 2
	}, waitFor, tick)

	s, _ := c.Session("c1")
	assert.Equal(t, []string{"m1", "m2"}, contents(s.Messages))
	assert.Equal(t, []string{m1.ID, m2.ID}, []string{s.Messages[0].ID, s.Messages[1].ID})
}

func TestDuplicateLiveMessagesCollapse(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	m := chattest.Message("c1", "Jane", "once", time.Now().UTC())
	srv.Broadcast("c1", m)
	srv.Broadcast("c1", m)
	marker := chattest.Message("c1", "Jane", "marker", time.Now().UTC().Add(time.Second))
	srv.Broadcast("c1", marker)

	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return len(s.Messages) > 0 && s.Messages[len(s.Messages)-1].ID == marker.ID
	}, waitFor, tick)
	s, _ := c.Session("c1")
	assert.Equal(t, []string{"once", "marker"}, contents(s.Messages))
}

func TestHistoryFailureIsNotFatal(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	srv.Fail(chattest.EndpointHistory, 1)
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")

	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return s.ErrorText == session.TextHistoryFailed
	}, waitFor, tick)
	s, _ := c.Session("c1")
	assert.Equal(t, session.StageActive, s.Stage)
	assert.True(t, s.ComposerEnabled())
}

func TestSendRoundTrip(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	require.NoError(t, c.Send(context.Background(), "c1", "  hi there  "))

	require.Eventually(t, func() bool {
		s, _ := c.Session("c1")
		return len(s.Messages) == 1
	}, waitFor, tick)
	s, _ := c.Session("c1")
	assert.Equal(t, "hi there", s.Messages[0].Content)
	assert.Equal(t, models.ParticipantAgent, s.Messages[0].SenderType())
	assert.False(t, s.IsSending)
	assert.Empty(t, s.ErrorText)
}

func TestSendRejections(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	srv.HoldJoin("c2")
	c := newCoordinator(t, srv, session.Options{})
	ctx := context.Background()

	assert.ErrorIs(t, c.Send(ctx, "c1", "   "), session.ErrEmptyContent)
	assert.ErrorIs(t, c.Send(ctx, "missing", "hi"), session.ErrSessionNotFound)

	admit(t, c, "c2")
	assert.ErrorIs(t, c.Send(ctx, "c2", "hi"), session.ErrNotConnected)
}

func TestSendFailureLeavesTimeline(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)
	srv.RejectSends("Conversation is closed")

	err := c.Send(context.Background(), "c1", "hello")
	var sendErr *realtime.SendError
	require.ErrorAs(t, err, &sendErr)

	s, _ := c.Session("c1")
	assert.Equal(t, "Conversation is closed", s.ErrorText)
	assert.Empty(t, s.Messages)
	assert.Equal(t, session.StageActive, s.Stage)
	assert.False(t, s.IsSending)

	srv.RejectSends("")
	require.NoError(t, c.Send(context.Background(), "c1", "hello"))
	s, _ = c.Session("c1")
	assert.Empty(t, s.ErrorText, "a successful retry clears the error")
}

func TestCloseIsOptimistic(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	rec := &events.Recorder{}
	c := newCoordinator(t, srv, session.Options{Publisher: rec})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	require.NoError(t, c.Close(context.Background(), "c1", agent))

	s, _ := c.Session("c1")
	assert.Equal(t, session.StageEnded, s.Stage)
	assert.Equal(t, session.TextAgentClosed, s.StatusText)
	assert.Equal(t, session.LabelClosed, s.StatusLabel)
	require.NotNil(t, s.Conversation)
	assert.Equal(t, models.StatusClosed, s.Conversation.Status)
	var local *models.Message
	for i := range s.Messages {
		if strings.HasPrefix(s.Messages[i].ID, "local-") {
			local = &s.Messages[i]
		}
	}
	require.NotNil(t, local, "local close line")
	assert.Equal(t, session.TextAgentClosed, local.Content)
	assert.True(t, local.IsSystem())

	assert.ErrorIs(t, c.Close(context.Background(), "c1", agent), session.ErrSessionEnded)
	assert.ErrorIs(t, c.Send(context.Background(), "c1", "hi"), session.ErrSessionEnded)

	require.Eventually(t, func() bool {
		types := rec.Types("c1")
		return len(types) == 2
	}, waitFor, tick)
	assert.Equal(t, []events.Type{events.SessionAdmitted, events.SessionEnded}, rec.Types("c1"))
}

func TestCloseFailureIsNotRolledBack(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	srv.Fail(chattest.EndpointClose, 1)
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	err := c.Close(context.Background(), "c1", agent)
	require.Error(t, err)

	s, _ := c.Session("c1")
	assert.Equal(t, session.StageEnded, s.Stage)
	assert.Equal(t, "close failed", s.ErrorText)
	assert.False(t, s.ComposerEnabled())
}

func TestJoinFailureEndsSession(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	srv.RejectJoin("c1", "Conversation is already closed")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")

	s := waitStage(t, c, "c1", session.StageEnded)
	assert.Equal(t, session.TextConnectFailed, s.StatusText)
	assert.Equal(t, session.LabelFailed, s.StatusLabel)
	assert.Equal(t, "Conversation is already closed", s.ErrorText)
}

func TestUnsolicitedDisconnectEndsSession(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	admit(t, c, "c2")
	waitStage(t, c, "c1", session.StageActive)
	waitStage(t, c, "c2", session.StageActive)

	srv.Drop("c1")

	s := waitStage(t, c, "c1", session.StageEnded)
	assert.Equal(t, session.TextConnectionLost, s.ErrorText)
	assert.Equal(t, session.LabelDisconnected, s.StatusLabel)

	other, _ := c.Session("c2")
	assert.Equal(t, session.StageActive, other.Stage, "errors stay local to one session")
	assert.Empty(t, other.ErrorText)
	assert.Empty(t, c.Notice())
}

func TestNoEventsAfterDismiss(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	release := srv.HoldHistory("c1")
	c := newCoordinator(t, srv, session.Options{})
	admit(t, c, "c1")
	waitStage(t, c, "c1", session.StageActive)

	c.Dismiss("c1")
	c.Dismiss("c1")

	_, ok := c.Session("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Count())
	require.Eventually(t, func() bool { return srv.Peers("c1") == 0 }, waitFor, tick)

	select {
	case <-c.Changes():
	default:
	}
	release()
	srv.Broadcast("c1", chattest.Message("c1", "Jane", "late", time.Now()))

	select {
	case <-c.Changes():
		t.Fatal("change observed after dismiss")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Empty(t, c.Sessions())
}

func TestRestore(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2", "c3")
	api := client.New(srv.URL)
	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := api.Accept(context.Background(), id, agent)
		require.NoError(t, err)
	}
	c := newCoordinator(t, srv, session.Options{MaxConcurrentChats: 2})

	n, err := c.Restore(context.Background(), agent, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.Count())
	for _, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, 1, srv.AcceptCalls(id), "restore does not accept again")
	}

	n, err = c.Restore(context.Background(), agent, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRestoreFailureRaisesNotice(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Fail(chattest.EndpointConversations, 1)
	c := newCoordinator(t, srv, session.Options{})

	n, err := c.Restore(context.Background(), agent, nil)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "conversations unavailable", c.Notice())

	c.ClearNotice()
	assert.Empty(t, c.Notice())
}

func TestQueueFeedLifecycle(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	c := newCoordinator(t, srv, session.Options{})

	require.NoError(t, c.ConnectQueue(context.Background(), agent))
	require.NoError(t, c.ConnectQueue(context.Background(), agent))
	require.Eventually(t, func() bool { return c.QueuePage().Total == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return srv.QueuePeers() == 1 }, waitFor, tick)

	admit(t, c, "c1")
	page := c.QueuePage()
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "c2", page.Entries[0].ConversationID)

	srv.SetQueue(nil)
	require.Eventually(t, func() bool { return c.QueuePage().Total == 0 }, waitFor, tick)

	srv.Enqueue("c3")
	require.Eventually(t, func() bool { return c.QueuePage().Total == 1 }, waitFor, tick)

	srv.DropQueue()
	require.Eventually(t, func() bool { return c.Notice() == session.NoticeQueueDisconnected }, waitFor, tick)
	assert.Equal(t, 0, c.QueuePage().Total)
	assert.False(t, c.QueueConnected())

	s, _ := c.Session("c1")
	assert.NotEqual(t, session.StageEnded, s.Stage, "queue feed loss leaves sessions alone")
}

func TestDisconnectQueueIsSilent(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1")
	c := newCoordinator(t, srv, session.Options{})

	require.NoError(t, c.ConnectQueue(context.Background(), agent))
	require.Eventually(t, func() bool { return c.QueuePage().Total == 1 }, waitFor, tick)

	c.DisconnectQueue()
	assert.False(t, c.QueueConnected())
	assert.Equal(t, 0, c.QueuePage().Total)
	assert.Empty(t, c.Notice())
}

func TestQueuePagination(t *testing.T) {
	srv := chattest.NewServer(t)
	var ids []string
	for i := range 7 {
		ids = append(ids, fmt.Sprintf("c%d", i))
	}
	srv.Enqueue(ids...)
	c := newCoordinator(t, srv, session.Options{QueuePageSize: 5})
	require.NoError(t, c.RefreshQueue(context.Background()))

	page := c.QueuePage()
	assert.Len(t, page.Entries, 5)
	assert.Equal(t, 2, page.TotalPages)

	assert.Equal(t, 1, c.SetQueuePage(9))
	page = c.QueuePage()
	assert.Len(t, page.Entries, 2)
	assert.True(t, page.HasPrev())

	admit(t, c, "c0")
	admit(t, c, "c1")
	assert.Equal(t, 0, c.SetQueuePage(1), "open sessions are not counted as waiting")
	assert.Equal(t, 0, c.QueuePage().Index)
}

func TestTeardownAll(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	c := newCoordinator(t, srv, session.Options{})
	require.NoError(t, c.ConnectQueue(context.Background(), agent))
	admit(t, c, "c1")
	admit(t, c, "c2")
	waitStage(t, c, "c1", session.StageActive)

	c.TeardownAll()

	assert.Equal(t, 0, c.Count())
	assert.False(t, c.QueueConnected())
	assert.Equal(t, 0, c.QueuePage().Total)
	require.Eventually(t, func() bool {
		return srv.Peers("c1") == 0 && srv.Peers("c2") == 0 && srv.QueuePeers() == 0
	}, waitFor, tick)
	assert.Empty(t, c.Notice())
}

func TestQueueFeedThatNeverConnectsKeepsRESTListing(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.Enqueue("c1", "c2")
	c := session.NewCoordinator(client.New(srv.URL), session.Options{
		Socket: realtime.Options{URL: srv.URL, Path: "/missing", HandshakeTimeout: time.Second},
	})
	t.Cleanup(c.Shutdown)

	require.NoError(t, c.RefreshQueue(context.Background()))
	require.NoError(t, c.ConnectQueue(context.Background(), agent))

	require.Eventually(t, func() bool { return c.Notice() == session.NoticeQueueUnavailable }, waitFor, tick)
	assert.False(t, c.QueueConnected())
	assert.Equal(t, 2, c.QueuePage().Total)

	require.NoError(t, c.RefreshQueue(context.Background()))
	assert.Equal(t, session.NoticeQueueUnavailable, c.Notice(), "refresh does not pretend the feed is back")
}

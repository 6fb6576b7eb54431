package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/client"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/session"
)

// actionKind is what a line typed into the console asks for.
type actionKind int

const (
	actionSend actionKind = iota
	actionAccept
	actionClose
	actionDismiss
	actionNextPage
	actionPrevPage
	actionTab
	actionRefresh
	actionReconnect
	actionHelp
	actionQuit
)

// action is a parsed console line. Arg is 1-based for accept and tab.
type action struct {
	kind actionKind
	arg  int
	text string
}

var errUnknownCommand = errors.New("unknown command")

const helpText = `/accept N   accept the Nth waiting customer on this page
/close      close the focused chat
/dismiss    remove the focused chat from the console
/tab N      focus the Nth chat
/next /prev page through the queue
/refresh    reload the queue from the server
/reconnect  reattach live queue updates
/quit       leave the console
anything else is sent to the focused chat`

// parseInput turns a composer line into an action.
func parseInput(line string) (action, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return action{kind: actionSend, text: line}, nil
	}

	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/accept", "/a":
		n, err := indexArg(name, args)
		return action{kind: actionAccept, arg: n}, err
	case "/tab", "/t":
		n, err := indexArg(name, args)
		return action{kind: actionTab, arg: n}, err
	case "/close":
		return action{kind: actionClose}, nil
	case "/dismiss":
		return action{kind: actionDismiss}, nil
	case "/next", "/n":
		return action{kind: actionNextPage}, nil
	case "/prev", "/p":
		return action{kind: actionPrevPage}, nil
	case "/refresh":
		return action{kind: actionRefresh}, nil
	case "/reconnect":
		return action{kind: actionReconnect}, nil
	case "/help", "/?":
		return action{kind: actionHelp}, nil
	case "/quit", "/q", "/exit":
		return action{kind: actionQuit}, nil
	default:
		return action{}, fmt.Errorf("%w %s, try /help", errUnknownCommand, name)
	}
}

func indexArg(name string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s N", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("usage: %s N (N starts at 1)", name)
	}
	return n, nil
}

// outcome is what running an action produced. Focus is the session to show
// next; it is empty when no session is left.
type outcome struct {
	feedback string
	focus    string
	quit     bool
	err      error
}

// desk runs console actions against a coordinator on behalf of one agent.
type desk struct {
	coord    *session.Coordinator
	identity models.AgentIdentity
	timeout  time.Duration
}

func newDesk(coord *session.Coordinator, identity models.AgentIdentity, timeout time.Duration) *desk {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &desk{coord: coord, identity: identity, timeout: timeout}
}

// start loads the queue over REST, then attaches the live feed whose
// snapshots replace it, and reopens sessions still assigned to the agent.
// Either queue source failing leaves a notice and the other one in place.
func (d *desk) start(ctx context.Context, restore bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_ = d.coord.RefreshQueue(ctx)
	_ = d.coord.ConnectQueue(ctx, d.identity)
	if restore {
		_, _ = d.coord.Restore(ctx, d.identity, nil)
	}
}

// run executes a. focus is the currently focused session id.
func (d *desk) run(ctx context.Context, a action, focus string) outcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out := outcome{focus: d.validFocus(focus)}

	switch a.kind {
	case actionSend:
		if out.focus == "" {
			out.err = errors.New("no chat selected, accept a customer first")
			return out
		}
		if open, _ := d.composer(out.focus); !open {
			s, _ := d.coord.Session(out.focus)
			out.err = composerProblem(s)
			return out
		}
		if err := d.coord.Send(ctx, out.focus, a.text); err != nil {
			out.err = sendProblem(err)
		}

	case actionAccept:
		entries := d.coord.QueuePage().Entries
		if a.arg > len(entries) {
			out.err = fmt.Errorf("no waiting customer #%d on this page", a.arg)
			return out
		}
		id, err := d.coord.Admit(ctx, entries[a.arg-1], d.identity)
		if err != nil {
			out.err = d.admitProblem(err)
			return out
		}
		out.focus = id
		out.feedback = "Accepted " + id

	case actionClose:
		if out.focus == "" {
			out.err = errors.New("no chat selected")
			return out
		}
		// The session is ended locally even when the server call fails.
		if err := d.coord.Close(ctx, out.focus, d.identity); err != nil && !errors.Is(err, session.ErrSessionEnded) {
			out.err = errors.New(client.Describe(err, session.TextCloseFailed))
		}

	case actionDismiss:
		if out.focus == "" {
			out.err = errors.New("no chat selected")
			return out
		}
		d.coord.Dismiss(out.focus)
		out.focus = d.validFocus("")

	case actionTab:
		sessions := d.coord.Sessions()
		if a.arg > len(sessions) {
			out.err = fmt.Errorf("no chat #%d", a.arg)
			return out
		}
		out.focus = sessions[a.arg-1].ID

	case actionNextPage, actionPrevPage:
		page := d.coord.QueuePage().Index
		if a.kind == actionNextPage {
			page++
		} else {
			page--
		}
		d.coord.SetQueuePage(page)

	case actionRefresh:
		if err := d.coord.RefreshQueue(ctx); err != nil {
			out.err = errors.New(client.Describe(err, "Unable to refresh the queue."))
		}

	case actionReconnect:
		if err := d.coord.ConnectQueue(ctx, d.identity); err != nil {
			out.err = errors.New(client.Describe(err, "Unable to reconnect to the queue."))
			return out
		}
		d.coord.ClearNotice()
		out.feedback = "Listening for queue updates."

	case actionHelp:
		out.feedback = helpText

	case actionQuit:
		out.quit = true
	}
	return out
}

// validFocus keeps focus if it still names a session, otherwise picks the first one.
func (d *desk) validFocus(focus string) string {
	if focus != "" {
		if _, ok := d.coord.Session(focus); ok {
			return focus
		}
	}
	if sessions := d.coord.Sessions(); len(sessions) > 0 {
		return sessions[0].ID
	}
	return ""
}

// composer reports whether replies can be typed for the focused session and
// the placeholder the composer shows. Commands are always accepted.
func (d *desk) composer(focus string) (open bool, placeholder string) {
	s, ok := d.coord.Session(focus)
	if !ok {
		return true, "Accept a customer with /accept N, or /help"
	}
	switch {
	case s.ComposerEnabled():
		return true, "Type a reply or /help"
	case s.IsSending:
		return false, "Sending..."
	case s.Stage == session.StageConnecting:
		return false, "Connecting to " + s.CustomerName() + "..."
	default:
		return false, s.StatusLabel + ". /dismiss to remove this chat, /help for commands"
	}
}

// composerProblem explains why a reply to s was not sent.
func composerProblem(s session.Session) error {
	switch {
	case s.IsSending:
		return errors.New("previous message is still sending")
	case s.Stage == session.StageConnecting:
		return errors.New("still connecting, try again in a moment")
	default:
		return errors.New("this chat has ended, /dismiss to remove it")
	}
}

func (d *desk) admitProblem(err error) error {
	switch {
	case errors.Is(err, session.ErrCapacityExceeded):
		return fmt.Errorf("you are already handling %d chats", d.coord.Capacity())
	case errors.Is(err, session.ErrAlreadyPresent):
		return errors.New("that chat is already open")
	case errors.Is(err, client.ErrConflict):
		return errors.New(client.Describe(err, "Conversation already assigned to another agent."))
	default:
		return errors.New(client.Describe(err, "Unable to accept the conversation."))
	}
}

// sendProblem maps send rejections to console text. Failed sends are also
// shown on the session itself.
func sendProblem(err error) error {
	switch {
	case errors.Is(err, session.ErrEmptyContent):
		return nil
	case errors.Is(err, session.ErrNotConnected):
		return errors.New("still connecting, try again in a moment")
	case errors.Is(err, session.ErrSessionEnded):
		return errors.New("this chat has ended")
	case errors.Is(err, session.ErrSendInProgress):
		return errors.New("previous message is still sending")
	default:
		return nil
	}
}

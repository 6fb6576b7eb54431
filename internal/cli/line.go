package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/session"
)

// linePrinter writes coordinator changes as plain lines, each message once.
type linePrinter struct {
	w        io.Writer
	agentID  string
	theme    Theme
	printed  map[string]map[string]bool // session id -> message ids
	labels   map[string]string
	errors   map[string]string
	notice   string
	queueLen int
}

func newLinePrinter(w io.Writer, agentID string) *linePrinter {
	return &linePrinter{
		w:        w,
		agentID:  agentID,
		theme:    defaultTheme,
		printed:  make(map[string]map[string]bool),
		labels:   make(map[string]string),
		errors:   make(map[string]string),
		queueLen: -1,
	}
}

// update prints whatever changed since the last call.
func (p *linePrinter) update(coord *session.Coordinator) {
	if page := coord.QueuePage(); page.Total != p.queueLen {
		p.queueLen = page.Total
		fmt.Fprint(p.w, p.theme.renderQueue(page, coord.QueueConnected(), time.Now()))
	}

	seen := make(map[string]bool)
	for _, s := range coord.Sessions() {
		seen[s.ID] = true
		if s.StatusLabel != p.labels[s.ID] {
			p.labels[s.ID] = s.StatusLabel
			fmt.Fprintf(p.w, "[%s] %s: %s\n", s.ID, s.StatusLabel, s.StatusText)
		}
		p.printMessages(s)
		if s.ErrorText != p.errors[s.ID] {
			p.errors[s.ID] = s.ErrorText
			if s.ErrorText != "" {
				fmt.Fprintf(p.w, "[%s] error: %s\n", s.ID, s.ErrorText)
			}
		}
	}
	for id := range p.labels {
		if !seen[id] {
			delete(p.labels, id)
			delete(p.printed, id)
			delete(p.errors, id)
		}
	}

	if notice := coord.Notice(); notice != p.notice {
		p.notice = notice
		if notice != "" {
			fmt.Fprintf(p.w, "! %s\n", notice)
		}
	}
}

// printMessages prints messages of s not printed before. History can land
// behind live messages already shown, so printed ids are tracked rather than a count.
func (p *linePrinter) printMessages(s session.Session) {
	done := p.printed[s.ID]
	if done == nil {
		done = make(map[string]bool, len(s.Messages))
		p.printed[s.ID] = done
	}
	for _, m := range s.Messages {
		if done[m.ID] {
			continue
		}
		done[m.ID] = true
		fmt.Fprintf(p.w, "[%s]%s\n", s.ID, p.theme.renderMessage(m, p.agentID))
	}
}

// runLineConsole reads commands from in until EOF, /quit or ctx ends.
func runLineConsole(ctx context.Context, d *desk, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	printer := newLinePrinter(out, d.identity.AgentID)
	printer.update(d.coord)
	focus := d.validFocus("")

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read commands: %w", err)
			}
			return nil

		case <-d.coord.Changes():
			printer.update(d.coord)

		case line := <-lines:
			a, err := parseInput(line)
			if err != nil {
				fmt.Fprintf(out, "! %s\n", err)
				continue
			}
			if a.kind == actionSend && a.text == "" {
				continue
			}
			res := d.run(ctx, a, focus)
			focus = res.focus
			if res.err != nil {
				fmt.Fprintf(out, "! %s\n", res.err)
			}
			if res.feedback != "" {
				fmt.Fprintln(out, res.feedback)
			}
			printer.update(d.coord)
			if res.quit {
				return nil
			}
		}
	}
}

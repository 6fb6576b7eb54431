// Package queue holds the agent's view of the waiting list and the local,
// stateless pagination over it.
package queue

import (
	"sync"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// DefaultPageSize is used when a view is created with a non-positive size.
const DefaultPageSize = 5

// Page is one window over a queue snapshot.
type Page struct {
	Entries    []models.QueueEntry
	Index      int // zero-based, always within [0, TotalPages-1]
	TotalPages int // at least 1, even for an empty queue
	Total      int
}

// HasPrev reports whether there is an earlier page.
func (p Page) HasPrev() bool { return p.Index > 0 }

// HasNext reports whether there is a later page.
func (p Page) HasNext() bool { return p.Index < p.TotalPages-1 }

// Paginate returns the window of entries for the requested page, clamping the
// page index into range. It does not modify entries.
func Paginate(entries []models.QueueEntry, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(entries)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	page = clamp(page, 0, pages-1)

	start := page * size
	end := start + size
	if end > total {
		end = total
	}

	window := make([]models.QueueEntry, end-start)
	copy(window, entries[start:end])
	return Page{Entries: window, Index: page, TotalPages: pages, Total: total}
}

// View is the latest queue snapshot plus the selected page. Every snapshot is
// a full replacement. View is safe for concurrent use.
type View struct {
	mu       sync.Mutex
	entries  []models.QueueEntry
	page     int
	pageSize int
}

// NewView creates an empty view with the given page size.
func NewView(pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &View{pageSize: pageSize}
}

// Replace discards the previous view entirely and installs snapshot. A nil or
// empty snapshot empties the view. The page index is clamped to the new size.
func (v *View) Replace(snapshot []models.QueueEntry) {
	entries := make([]models.QueueEntry, len(snapshot))
	copy(entries, snapshot)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = entries
	v.page = v.clampLocked(v.page, len(entries))
}

// Remove drops the entry for conversationID, if present, and reports whether
// anything was removed.
func (v *View) Remove(conversationID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, e := range v.entries {
		if e.ConversationID == conversationID {
			v.entries = append(v.entries[:i:i], v.entries[i+1:]...)
			v.page = v.clampLocked(v.page, len(v.entries))
			return true
		}
	}
	return false
}

// Clear empties the view and resets the page.
func (v *View) Clear() {
	v.Replace(nil)
}

// SetPage selects a page of the entries Page would show for the same skip,
// clamped into range, and returns the effective index.
func (v *View) SetPage(page int, skip func(conversationID string) bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page = Paginate(v.visibleLocked(skip), page, v.pageSize).Index
	return v.page
}

// Page returns the selected window over the snapshot, excluding entries for
// which skip returns true. skip may be nil. When the filtered list has shrunk
// the selection is clamped and kept, so it does not jump back later.
func (v *View) Page(skip func(conversationID string) bool) Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := Paginate(v.visibleLocked(skip), v.page, v.pageSize)
	v.page = p.Index
	return p
}

func (v *View) visibleLocked(skip func(conversationID string) bool) []models.QueueEntry {
	if skip == nil {
		return v.entries
	}
	entries := make([]models.QueueEntry, 0, len(v.entries))
	for _, e := range v.entries {
		if !skip(e.ConversationID) {
			entries = append(entries, e)
		}
	}
	return entries
}

func (v *View) clampLocked(page, total int) int {
	pages := (total + v.pageSize - 1) / v.pageSize
	if pages == 0 {
		pages = 1
	}
	return clamp(page, 0, pages-1)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

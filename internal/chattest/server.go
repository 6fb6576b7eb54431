// Package chattest runs an in-process live-chat backend for tests.
// It serves the agent REST API and the websocket channels over httptest.
package chattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
)

// ConflictMessage is the error text returned for a conversation taken by someone else.
const ConflictMessage = "Conversation already assigned to another agent."

// Server is a fake live-chat backend.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu            sync.Mutex
	queue         []models.QueueEntry
	conversations map[string]*models.ConversationMetadata
	history       map[string][]models.Message
	peers         map[string][]*peer
	queuePeers    []*peer

	acceptCalls  map[string]int
	historyGates map[string]*gate
	holdJoin     map[string]bool
	rejectJoin   map[string]string
	rejectSends  string
	failures     map[string]int
	joins        map[string]int
}

// gate holds history responses until opened.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func (g *gate) open() { g.once.Do(func() { close(g.ch) }) }

// peer is one websocket client.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	query   map[string]string
}

func (p *peer) send(event, ackID string, data any) error {
	f, err := realtime.NewFrame(event, ackID, data)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(f)
}

// Endpoints that can be made to fail with Fail.
const (
	EndpointQueue         = "queue"
	EndpointConversations = "conversations"
	EndpointAccept        = "accept"
	EndpointHistory       = "history"
	EndpointClose         = "close"
)

// NewServer starts a fake backend. It is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conversations: make(map[string]*models.ConversationMetadata),
		history:       make(map[string][]models.Message),
		peers:         make(map[string][]*peer),
		acceptCalls:   make(map[string]int),
		historyGates:  make(map[string]*gate),
		holdJoin:      make(map[string]bool),
		rejectJoin:    make(map[string]string),
		failures:      make(map[string]int),
		joins:         make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agent/queue", s.handleQueue)
	mux.HandleFunc("GET /api/agent/conversations", s.handleConversations)
	mux.HandleFunc("POST /api/agent/conversations/{id}/accept", s.handleAccept)
	mux.HandleFunc("GET /api/agent/conversations/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /api/agent/conversations/{id}/close", s.handleClose)
	mux.HandleFunc("/ws", s.handleSocket)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Shutdown)
	return s
}

// Shutdown disconnects every peer and stops the server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	for _, g := range s.historyGates {
		g.open()
	}
	var all []*peer
	for _, ps := range s.peers {
		all = append(all, ps...)
	}
	all = append(all, s.queuePeers...)
	s.mu.Unlock()

	for _, p := range all {
		p.conn.Close()
	}
	s.Server.Close()
}

// Enqueue adds waiting conversations and broadcasts the new queue.
func (s *Server) Enqueue(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		now := time.Now().UTC()
		s.queue = append(s.queue, models.QueueEntry{ConversationID: id, EnqueuedAt: &now, CustomerID: "cust-" + id, Channel: "web"})
		if _, ok := s.conversations[id]; !ok {
			s.conversations[id] = &models.ConversationMetadata{
				ID:        id,
				Status:    models.StatusQueued,
				Customer:  &models.Participant{ID: "cust-" + id, Type: models.ParticipantCustomer, DisplayName: "Customer " + id},
				CreatedAt: &now,
			}
		}
	}
	s.mu.Unlock()
	s.broadcastQueue()
}

// SetQueue replaces the queue with entries and broadcasts it.
func (s *Server) SetQueue(entries []models.QueueEntry) {
	s.mu.Lock()
	s.queue = append([]models.QueueEntry(nil), entries...)
	s.mu.Unlock()
	s.broadcastQueue()
}

// AddConversation registers or replaces a conversation.
func (s *Server) AddConversation(c models.ConversationMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = &c
}

// Conversation returns a copy of the stored conversation.
func (s *Server) Conversation(id string) (models.ConversationMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.ConversationMetadata{}, false
	}
	return *c, true
}

// AssignTo marks a conversation as taken by another agent.
func (s *Server) AssignTo(id, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conversationLocked(id)
	c.Status = models.StatusAssigned
	c.Agent = &models.Participant{ID: agentID, Type: models.ParticipantAgent, DisplayName: agentID}
}

// SetHistory replaces a conversation's stored messages.
func (s *Server) SetHistory(id string, messages ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[id] = append([]models.Message(nil), messages...)
}

// HoldHistory blocks history responses for id until the returned func is called.
func (s *Server) HoldHistory(id string) (release func()) {
	g := &gate{ch: make(chan struct{})}
	s.mu.Lock()
	s.historyGates[id] = g
	s.mu.Unlock()
	return g.open
}

// HoldJoin suppresses the handshake for id so joins stay pending.
func (s *Server) HoldJoin(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdJoin[id] = true
}

// RejectJoin makes joins to id fail with reason, the way the backend
// rejects closed or unknown conversations.
func (s *Server) RejectJoin(id, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectJoin[id] = reason
}

// RejectSends makes every chat:message ack carry reason as an error.
// An empty reason accepts sends again.
func (s *Server) RejectSends(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSends = reason
}

// Fail makes the next n calls to endpoint answer 500.
func (s *Server) Fail(endpoint string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = n
}

// AcceptCalls returns how many accept requests reached the server for id.
func (s *Server) AcceptCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptCalls[id]
}

// Joins returns how many conversation sockets were opened for id.
func (s *Server) Joins(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins[id]
}

// Peers returns how many sockets are currently joined to id.
func (s *Server) Peers(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers[id])
}

// QueuePeers returns how many queue subscribers are connected.
func (s *Server) QueuePeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queuePeers)
}

// Push stores m in the conversation history and delivers it live.
func (s *Server) Push(id string, m models.Message) {
	m = s.normalize(id, m)
	s.mu.Lock()
	s.history[id] = append(s.history[id], m)
	s.mu.Unlock()
	s.Broadcast(id, m)
}

// Broadcast delivers m live without storing it.
func (s *Server) Broadcast(id string, m models.Message) {
	m = s.normalize(id, m)
	for _, p := range s.peersOf(id) {
		_ = p.send(realtime.EventMessage, "", m)
	}
}

// SendError pushes a system:error frame to every socket joined to id.
func (s *Server) SendError(id, message string) {
	for _, p := range s.peersOf(id) {
		_ = p.send(realtime.EventError, "", realtime.ErrorPayload{Message: message})
	}
}

// CloseByCustomer closes the conversation and pushes the system close message.
func (s *Server) CloseByCustomer(id, customerName string) models.Message {
	now := time.Now().UTC()
	s.mu.Lock()
	c := s.conversationLocked(id)
	c.Status = models.StatusClosed
	c.ClosedAt = &now
	s.mu.Unlock()

	m := models.Message{
		Type:    models.MessageSystem,
		Sender:  &models.Participant{ID: "system", Type: models.ParticipantSystem, DisplayName: "System"},
		Content: customerName + " left the chat.",
		Metadata: map[string]any{
			models.MetaEvent:               models.EventChatClosed,
			models.MetaClosedByType:        string(models.ParticipantCustomer),
			models.MetaClosedByDisplayName: customerName,
		},
		Timestamp: now,
	}
	s.Push(id, m)
	return m
}

// Drop disconnects every socket joined to id without a close message.
func (s *Server) Drop(id string) {
	s.mu.Lock()
	ps := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()
	for _, p := range ps {
		p.conn.Close()
	}
}

// DropQueue disconnects every queue subscriber.
func (s *Server) DropQueue() {
	s.mu.Lock()
	ps := s.queuePeers
	s.queuePeers = nil
	s.mu.Unlock()
	for _, p := range ps {
		p.conn.Close()
	}
}

// LastQuery returns the query parameters of the most recent socket joined to id.
func (s *Server) LastQuery(id string) map[string]string {
	ps := s.peersOf(id)
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1].query
}

func (s *Server) peersOf(id string) []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*peer(nil), s.peers[id]...)
}

func (s *Server) normalize(id string, m models.Message) models.Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ConversationID == "" {
		m.ConversationID = id
	}
	if m.Type == "" {
		m.Type = models.MessageText
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m
}

// conversationLocked returns the conversation, creating it if needed.
// Caller must hold s.mu.
func (s *Server) conversationLocked(id string) *models.ConversationMetadata {
	c, ok := s.conversations[id]
	if !ok {
		c = &models.ConversationMetadata{ID: id, Status: models.StatusQueued}
		s.conversations[id] = c
	}
	return c
}

// failing consumes one configured failure for endpoint.
func (s *Server) failing(endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[endpoint] > 0 {
		s.failures[endpoint]--
		return true
	}
	return false
}

func (s *Server) broadcastQueue() {
	s.mu.Lock()
	snapshot := append([]models.QueueEntry{}, s.queue...)
	ps := append([]*peer(nil), s.queuePeers...)
	s.mu.Unlock()
	for _, p := range ps {
		_ = p.send(realtime.EventQueueSnapshot, "", snapshot)
	}
}

func (s *Server) removeFromQueueLocked(id string) {
	kept := s.queue[:0]
	for _, e := range s.queue {
		if e.ConversationID != id {
			kept = append(kept, e)
		}
	}
	s.queue = kept
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"error":     message,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.failing(EndpointQueue) {
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	s.mu.Lock()
	entries := append([]models.QueueEntry{}, s.queue...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.failing(EndpointConversations) {
		writeError(w, http.StatusInternalServerError, "conversations unavailable")
		return
	}
	agentID := r.Header.Get("X-Agent-Id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "Missing agent id")
		return
	}
	statuses := map[models.ConversationStatus]bool{}
	for _, st := range r.URL.Query()["status"] {
		statuses[models.ConversationStatus(strings.ToUpper(st))] = true
	}

	s.mu.Lock()
	out := []models.ConversationMetadata{}
	for _, c := range s.conversations {
		if c.Agent == nil || c.Agent.ID != agentID {
			continue
		}
		if len(statuses) > 0 && !statuses[c.Status] {
			continue
		}
		out = append(out, *c)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

type participantBody struct {
	AgentID     string `json:"agentId"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body participantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == "" {
		writeError(w, http.StatusBadRequest, "Invalid accept request")
		return
	}

	s.mu.Lock()
	s.acceptCalls[id]++
	s.mu.Unlock()

	if s.failing(EndpointAccept) {
		writeError(w, http.StatusInternalServerError, "accept failed")
		return
	}

	s.mu.Lock()
	c, ok := s.conversations[id]
	switch {
	case !ok:
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	case c.Status == models.StatusClosed:
		s.mu.Unlock()
		writeError(w, http.StatusGone, "Conversation is already closed")
		return
	case c.Agent != nil && c.Agent.ID != body.AgentID:
		s.mu.Unlock()
		writeError(w, http.StatusConflict, ConflictMessage)
		return
	}
	now := time.Now().UTC()
	c.Status = models.StatusAssigned
	c.Agent = &models.Participant{ID: body.AgentID, Type: models.ParticipantAgent, DisplayName: body.DisplayName}
	c.AcceptedAt = &now
	s.removeFromQueueLocked(id)
	out := *c
	s.mu.Unlock()

	s.broadcastQueue()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.Header.Get("X-Agent-Id") == "" {
		writeError(w, http.StatusBadRequest, "Missing agent id")
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 100
	}

	s.mu.Lock()
	g := s.historyGates[id]
	s.mu.Unlock()
	if g != nil {
		select {
		case <-g.ch:
		case <-r.Context().Done():
			return
		}
	}

	if s.failing(EndpointHistory) {
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	s.mu.Lock()
	messages := append([]models.Message{}, s.history[id]...)
	s.mu.Unlock()
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body participantBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	if s.failing(EndpointClose) {
		writeError(w, http.StatusInternalServerError, "close failed")
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	c, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	c.Status = models.StatusClosed
	c.ClosedAt = &now
	out := *c
	s.mu.Unlock()

	s.Push(id, models.Message{
		Type:    models.MessageSystem,
		Sender:  &models.Participant{ID: "system", Type: models.ParticipantSystem, DisplayName: "System"},
		Content: body.DisplayName + " closed the chat.",
		Metadata: map[string]any{
			models.MetaEvent:               models.EventChatClosed,
			models.MetaClosedByType:        string(models.ParticipantAgent),
			models.MetaClosedByDisplayName: body.DisplayName,
		},
		Timestamp: now,
	})
	writeJSON(w, http.StatusOK, out)
}

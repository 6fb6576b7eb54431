package chattest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/raphaelgruber/agentdesk/internal/realtime"
)

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	q := r.URL.Query()
	p := &peer{conn: conn, query: map[string]string{}}
	for k := range q {
		p.query[k] = q.Get(k)
	}
	agent := models.Participant{
		ID:          q.Get("token"),
		Type:        models.ParticipantAgent,
		DisplayName: q.Get("displayName"),
	}

	if strings.EqualFold(q.Get("scope"), "queue") {
		s.serveQueue(p)
		return
	}
	s.serveConversation(p, agent, q.Get("conversationId"))
}

func (s *Server) serveQueue(p *peer) {
	s.mu.Lock()
	s.queuePeers = append(s.queuePeers, p)
	snapshot := append([]models.QueueEntry{}, s.queue...)
	s.mu.Unlock()

	_ = p.send(realtime.EventQueueSnapshot, "", snapshot)
	s.drain(p, func(realtime.Frame) {})

	s.mu.Lock()
	for i, qp := range s.queuePeers {
		if qp == p {
			s.queuePeers = append(s.queuePeers[:i], s.queuePeers[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func (s *Server) serveConversation(p *peer, agent models.Participant, id string) {
	s.mu.Lock()
	s.joins[id]++
	reason, rejected := s.rejectJoin[id]
	c, known := s.conversations[id]
	if known && c.Status == models.StatusClosed && !rejected {
		reason, rejected = "Conversation is already closed", true
	}
	if !known && !rejected {
		reason, rejected = "Conversation not found", true
	}
	hold := s.holdJoin[id]
	var conversation models.ConversationMetadata
	if known {
		conversation = *c
	}
	s.mu.Unlock()

	if rejected {
		_ = p.send(realtime.EventError, "", realtime.ErrorPayload{Message: reason})
		p.conn.Close()
		return
	}

	s.mu.Lock()
	s.peers[id] = append(s.peers[id], p)
	s.mu.Unlock()

	if !hold {
		_ = p.send(realtime.EventSystem, "", models.Handshake{Participant: agent, Conversation: conversation})
	}

	s.drain(p, func(f realtime.Frame) {
		if f.Event == realtime.EventMessage {
			s.handleSend(p, agent, id, f)
		}
	})

	s.mu.Lock()
	ps := s.peers[id]
	for i, cp := range ps {
		if cp == p {
			s.peers[id] = append(ps[:i:i], ps[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// drain reads frames until the socket closes.
func (s *Server) drain(p *peer, handle func(realtime.Frame)) {
	defer p.conn.Close()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var f realtime.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		handle(f)
	}
}

func (s *Server) handleSend(p *peer, agent models.Participant, id string, f realtime.Frame) {
	var out realtime.OutboundMessage
	if err := f.Decode(&out); err != nil {
		_ = p.send(realtime.EventAck, f.AckID, realtime.ErrorPayload{Error: err.Error()})
		return
	}

	s.mu.Lock()
	reason := s.rejectSends
	s.mu.Unlock()
	if reason != "" {
		_ = p.send(realtime.EventAck, f.AckID, realtime.ErrorPayload{Error: reason})
		return
	}

	sender := agent
	m := models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Type:           models.MessageType(strings.ToUpper(out.Type)),
		Sender:         &sender,
		Content:        out.Content,
		Timestamp:      time.Now().UTC(),
	}
	_ = p.send(realtime.EventAck, f.AckID, m)
	s.Push(id, m)
}

// Message builds a customer text message for id.
func Message(id, customerName, content string, at time.Time) models.Message {
	return models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Type:           models.MessageText,
		Sender:         &models.Participant{ID: "cust-" + id, Type: models.ParticipantCustomer, DisplayName: customerName},
		Content:        content,
		Timestamp:      at,
	}
}

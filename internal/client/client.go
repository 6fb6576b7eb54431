// Package client provides a REST client for the live-chat agent API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/models"
)

// Backend limits for the history endpoint.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

const agentHeader = "X-Agent-Id"

// Client is a REST client for the live-chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMetrics records per-endpoint timings into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new REST client.
// If baseURL is empty, uses AGENTDESK_API_URL env var or defaults to localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("AGENTDESK_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request describes a single REST call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	agentID string
	body    any
}

// errorBody is the backend's error payload.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, r request, result any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.Observe(r.op, start, err)
		c.logRequest(r, time.Since(start), err)
	}()

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.agentID != "" {
		req.Header.Set(agentHeader, r.agentID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		apiErr.Message = eb.Error
		if apiErr.Message == "" {
			apiErr.Message = eb.Message
		}
		apiErr.Code = eb.Code
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// participantRequest is the body for accept and close calls.
type participantRequest struct {
	AgentID     string `json:"agentId"`
	DisplayName string `json:"displayName,omitempty"`
}

func conversationPath(id, action string) string {
	return "/api/agent/conversations/" + url.PathEscape(id) + "/" + action
}

// ListQueue returns the conversations currently waiting for an agent.
func (c *Client) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := c.do(ctx, request{
		op:     metrics.OpListQueue,
		method: http.MethodGet,
		path:   "/api/agent/queue",
	}, &entries)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	return entries, nil
}

// ListConversations returns the agent's conversations, optionally filtered by status.
func (c *Client) ListConversations(ctx context.Context, agentID string, statuses []models.ConversationStatus) ([]models.ConversationMetadata, error) {
	query := url.Values{}
	for _, s := range statuses {
		query.Add("status", string(s))
	}

	var conversations []models.ConversationMetadata
	err := c.do(ctx, request{
		op:      metrics.OpListConversations,
		method:  http.MethodGet,
		path:    "/api/agent/conversations",
		query:   query,
		agentID: agentID,
	}, &conversations)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if conversations == nil {
		conversations = []models.ConversationMetadata{}
	}
	return conversations, nil
}

// Accept assigns a queued conversation to the agent.
// A conversation taken by someone else fails with an error matching ErrConflict.
func (c *Client) Accept(ctx context.Context, conversationID string, identity models.AgentIdentity) (*models.ConversationMetadata, error) {
	var conversation models.ConversationMetadata
	err := c.do(ctx, request{
		op:     metrics.OpAccept,
		method: http.MethodPost,
		path:   conversationPath(conversationID, "accept"),
		body:   participantRequest{AgentID: identity.AgentID, DisplayName: identity.DisplayName},
	}, &conversation)
	if err != nil {
		return nil, fmt.Errorf("accept conversation: %w", err)
	}
	return &conversation, nil
}

// History returns up to limit prior messages of a conversation.
// The limit is clamped to the range the backend accepts.
func (c *Client) History(ctx context.Context, conversationID, agentID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := c.do(ctx, request{
		op:      metrics.OpHistory,
		method:  http.MethodGet,
		path:    conversationPath(conversationID, "messages"),
		query:   url.Values{"limit": {strconv.Itoa(ClampHistoryLimit(limit))}},
		agentID: agentID,
	}, &messages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// CloseConversation ends a conversation on behalf of the agent.
func (c *Client) CloseConversation(ctx context.Context, conversationID string, identity models.AgentIdentity) (*models.ConversationMetadata, error) {
	var conversation models.ConversationMetadata
	err := c.do(ctx, request{
		op:     metrics.OpClose,
		method: http.MethodPost,
		path:   conversationPath(conversationID, "close"),
		body:   participantRequest{AgentID: identity.AgentID, DisplayName: identity.DisplayName},
	}, &conversation)
	if err != nil {
		return nil, fmt.Errorf("close conversation: %w", err)
	}
	return &conversation, nil
}

// ClampHistoryLimit keeps limit within 1..MaxHistoryLimit; zero or less means the default.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

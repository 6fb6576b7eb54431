package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestFormatWait(t *testing.T) {
	assert.Equal(t, "45s", formatWait(45*time.Second))
	assert.Equal(t, "3m", formatWait(3*time.Minute+20*time.Second))
	assert.Equal(t, "1h12m", formatWait(72*time.Minute))
}

func TestPrintQueue(t *testing.T) {
	now := time.Now()
	enqueued := now.Add(-2 * time.Minute)

	var out bytes.Buffer
	printQueue(&out, nil, now)
	assert.Equal(t, "No customers waiting.\n", out.String())

	out.Reset()
	printQueue(&out, []models.QueueEntry{
		{ConversationID: "c1", Channel: "web", EnqueuedAt: &enqueued},
		{ConversationID: "c2"},
	}, now)
	assert.Contains(t, out.String(), "Waiting (2):")
	assert.Contains(t, out.String(), " 1. c1 [web]  waiting 2m")
	assert.Contains(t, out.String(), " 2. c2\n")
}

func TestPrintConversations(t *testing.T) {
	var out bytes.Buffer
	printConversations(&out, []models.ConversationMetadata{
		{ID: "c1", Status: models.StatusAssigned, Customer: &models.Participant{DisplayName: "Jane"}},
		{ID: "c2", Status: models.StatusAssigned},
	})
	assert.Contains(t, out.String(), "- c1 [ASSIGNED] Jane")
	assert.Contains(t, out.String(), "- c2 [ASSIGNED] Customer")
}

func TestPrintMetrics(t *testing.T) {
	var out bytes.Buffer
	printMetrics(&out, metrics.Snapshot{})
	assert.Empty(t, out.String())

	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpAccept, 20*time.Millisecond)
	c.RecordFailure(metrics.OpAccept, 10*time.Millisecond)
	printMetrics(&out, c.Snapshot())
	assert.Contains(t, out.String(), metrics.OpAccept)
	assert.Contains(t, out.String(), "2 calls")
	assert.Contains(t, out.String(), "1 failed")
	assert.Contains(t, out.String(), "p95    20ms")
	assert.Contains(t, out.String(), "max    20ms")
}

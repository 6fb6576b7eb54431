package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/raphaelgruber/agentdesk/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := events.New(events.SessionEnded, "c1", "agent-7", "customer")

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, "c1", env.Meta.CorrelationID)
	assert.Equal(t, events.SessionEnded, env.Meta.Type)
	assert.False(t, env.Meta.Time.IsZero())

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"agent.session.ended"`)
	assert.Contains(t, string(raw), `"conversationId":"c1"`)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a := events.New(events.SessionAdmitted, "c1", "agent-7", "")
	b := events.New(events.SessionAdmitted, "c1", "agent-7", "")
	assert.NotEqual(t, a.Meta.ID, b.Meta.ID)
}

func TestRecorder(t *testing.T) {
	var r events.Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, events.New(events.SessionAdmitted, "c1", "a", "")))
	require.NoError(t, r.Publish(ctx, events.New(events.SessionAdmitted, "c2", "a", "")))
	require.NoError(t, r.Publish(ctx, events.New(events.SessionDismissed, "c1", "a", "")))

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, []events.Type{events.SessionAdmitted, events.SessionDismissed}, r.Types("c1"))
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	_, err := events.NewAMQPPublisher(context.Background(), events.AMQPConfig{}, nil)
	assert.Error(t, err)
}

package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registeredPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

var testUser = Aggregate{Type: "user", ID: "u-1"}

func TestNewEvent_Fields(t *testing.T) {
	payload := registeredPayload{UserID: "u-1", Username: "alice"}
	event, err := NewEvent("user.registered", testUser, "videotube-accounts", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "user.registered", event.Type)
	assert.Equal(t, testUser, event.Aggregate)
	assert.Equal(t, "videotube-accounts", event.Source)
	assert.Equal(t, SchemaVersion, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	var decoded registeredPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestNewEvent_InvalidPayload(t *testing.T) {
	_, err := NewEvent("user.updated", testUser, "videotube-accounts", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user.updated")
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a, err := NewEvent("user.updated", testUser, "svc", nil)
	require.NoError(t, err)
	b, err := NewEvent("user.updated", testUser, "svc", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEvent_WireFormat(t *testing.T) {
	event, err := NewEvent("user.password_changed", Aggregate{Type: "user", ID: "u-9"}, "svc", map[string]string{"user_id": "u-9"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-abc")

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "corr-abc", generic["correlation_id"])
	assert.Equal(t, map[string]any{"type": "user", "id": "u-9"}, generic["aggregate"])
	assert.Equal(t, map[string]any{"user_id": "u-9"}, generic["payload"])

	var restored Event
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, event.ID, restored.ID)
	assert.Equal(t, event.Aggregate, restored.Aggregate)
	assert.Equal(t, event.OccurredAt.UnixNano(), restored.OccurredAt.UnixNano())
	assert.JSONEq(t, string(event.Payload), string(restored.Payload))
}

func TestEvent_CorrelationIDOmittedWhenEmpty(t *testing.T) {
	event, err := NewEvent("user.updated", testUser, "svc", nil)
	require.NoError(t, err)

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correlation_id")
	assert.Contains(t, string(raw), `"payload":null`)
}

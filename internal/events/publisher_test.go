package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/config"
)

func TestNewPublisherRequiresURL(t *testing.T) {
	_, err := NewPublisher(config.EventsConfig{Subject: "pagepress.runs"})
	require.Error(t, err)
}

func TestRunEventSerialization(t *testing.T) {
	event := RunEvent{
		Type:      "RunFailed",
		RunID:     "run-1",
		Stage:     "build",
		Error:     "exit status 1",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var got RunEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, event, got)

	// Empty optional fields stay off the wire
	data, err = json.Marshal(RunEvent{Type: "RunStarted", RunID: "run-2"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "error")
	assert.NotContains(t, string(data), "stage")
}

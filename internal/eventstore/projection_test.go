package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionAppliesRunLifecycle(t *testing.T) {
	p := NewRunHistoryProjection(nil, 10)
	start := time.Now().Add(-time.Minute)

	p.Apply(&BaseEvent{EventRunID: "run-1", EventType: "RunStarted", EventTimestamp: start,
		EventPayload: []byte(`{"group":"pages","trigger":"push"}`)})

	active := p.GetActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "run-1", active.RunID)
	assert.Equal(t, "pages", active.Group)
	assert.Equal(t, "push", active.Trigger)

	p.Apply(&BaseEvent{EventRunID: "run-1", EventType: "RunCompleted", EventTimestamp: time.Now(),
		EventPayload: []byte(`{"commit":"abc123"}`)})

	assert.Nil(t, p.GetActiveRun())

	run, ok := p.GetRun("run-1")
	require.True(t, ok)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, "abc123", run.Commit)
	assert.NotNil(t, run.CompletedAt)
	assert.Greater(t, run.Duration, time.Duration(0))
}

func TestProjectionRecordsFailure(t *testing.T) {
	p := NewRunHistoryProjection(nil, 10)

	p.Apply(&BaseEvent{EventRunID: "run-2", EventType: "RunStarted", EventTimestamp: time.Now()})
	p.Apply(&BaseEvent{EventRunID: "run-2", EventType: "RunFailed", EventTimestamp: time.Now(),
		EventPayload: []byte(`{"stage":"build","error":"exit status 1"}`)})

	run, ok := p.GetRun("run-2")
	require.True(t, ok)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "build", run.ErrorStage)
	assert.Equal(t, "exit status 1", run.ErrorMessage)

	last := p.GetLastCompletedRun()
	require.NotNil(t, last)
	assert.Equal(t, "run-2", last.RunID)
}

func TestProjectionHistoryBounded(t *testing.T) {
	p := NewRunHistoryProjection(nil, 2)

	for _, id := range []string{"a", "b", "c"} {
		p.Apply(&BaseEvent{EventRunID: id, EventType: "RunStarted", EventTimestamp: time.Now()})
		p.Apply(&BaseEvent{EventRunID: id, EventType: "RunCompleted", EventTimestamp: time.Now()})
	}

	history := p.GetHistory()
	assert.Len(t, history, 2)
	assert.Equal(t, "c", history[0].RunID)

	// Pruned runs disappear from the lookup map too
	_, ok := p.GetRun("a")
	assert.False(t, ok)
}

func TestProjectionRebuildFromStore(t *testing.T) {
	store := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "run-1", "RunStarted", []byte(`{"group":"pages"}`), nil))
	require.NoError(t, store.Append(ctx, "run-1", "RunCompleted", []byte(`{"commit":"c1"}`), nil))
	require.NoError(t, store.Append(ctx, "run-2", "RunStarted", nil, nil))

	p := NewRunHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(ctx))

	run, ok := p.GetRun("run-1")
	require.True(t, ok)
	assert.Equal(t, "success", run.Status)

	active := p.GetActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "run-2", active.RunID)
	assert.False(t, p.LastSyncTime().IsZero())
}

func TestProjectionIgnoresUnknownRunID(t *testing.T) {
	p := NewRunHistoryProjection(nil, 10)
	p.Apply(&BaseEvent{EventRunID: "", EventType: "RunStarted"})
	p.Apply(&BaseEvent{EventRunID: "unknown", EventType: "RunStarted"})
	assert.Nil(t, p.GetActiveRun())
}

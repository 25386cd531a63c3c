package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionExtractedEventShape(t *testing.T) {
	ev := ActionExtractedEvent{
		BaseEvent: BaseEvent{
			Type:      "action_extracted",
			RunID:     "run-1",
			TenantID:  "techcorp",
			Timestamp: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		},
		RecordID:   "rec-1",
		EmailID:    "msg-01",
		ActionType: "DO",
		Title:      "로그 분석",
		Assignee:   "김철수 <kim.cs@techcorp.co.kr>",
		Confidence: 0.85,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "action_extracted", got["type"])
	assert.Equal(t, "techcorp", got["tenant_id"])
	assert.Equal(t, "DO", got["action_type"])
	// Empty due is omitted entirely.
	_, present := got["due"]
	assert.False(t, present)
}

func TestRunCompletedEventShape(t *testing.T) {
	ev := RunCompletedEvent{
		BaseEvent:        BaseEvent{Type: "run_completed", RunID: "run-1"},
		Total:            10,
		Processed:        8,
		Skipped:          1,
		ActionsExtracted: 3,
		Errors:           1,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.EqualValues(t, 10, got["total"])
	assert.EqualValues(t, 3, got["actions_extracted"])
	assert.EqualValues(t, 1, got["errors"])
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	ctx := context.Background()

	assert.NoError(t, p.PublishRecordProcessed(ctx, RecordProcessedEvent{}))
	assert.NoError(t, p.PublishActionExtracted(ctx, ActionExtractedEvent{}))
	assert.NoError(t, p.PublishRunCompleted(ctx, RunCompletedEvent{}))
	assert.NoError(t, p.Close())
}

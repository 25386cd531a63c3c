package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haneul-labs/mailaction/pkg/errors"
	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

// fakeProcessor keys its behavior on the record id.
type fakeProcessor struct {
	failIDs   map[string]error
	actionIDs map[string]bool
}

func (f *fakeProcessor) Run(ctx context.Context, raw *pipeline.RawEmail, rc pipeline.RecipientContext) (*pipeline.Result, error) {
	if err, ok := f.failIDs[raw.RecordID]; ok {
		return nil, err
	}
	result := &pipeline.Result{
		Email:   pipeline.Normalize(raw),
		Signals: pipeline.PolicySignals{Decision: pipeline.DecisionA},
	}
	if f.actionIDs[raw.RecordID] {
		result.Action = &pipeline.ResolvedAction{
			Title:      "로그 분석",
			Assignee:   "김철수 <kim.cs@techcorp.co.kr>",
			Type:       pipeline.ActionDo,
			Priority:   pipeline.PriorityMedium,
			Confidence: 0.85,
		}
	}
	return result, nil
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeIndexer) IndexEmail(ctx context.Context, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeStore struct {
	mu      sync.Mutex
	calls   int
	tenants []string
	err     error
}

func (f *fakeStore) UpsertAction(ctx context.Context, tenantID string, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tenants = append(f.tenants, tenantID)
	return f.err
}

func validRecord(id string) Record {
	return Record{
		RecordID: id,
		Email: &pipeline.RawEmail{
			RecordID:    id,
			EmailID:     "msg-" + id,
			Subject:     "제목",
			EmailBody:   "본문",
			FromAddress: "a@b.kr",
		},
	}
}

func TestRunnerRun(t *testing.T) {
	proc := &fakeProcessor{
		failIDs:   map[string]error{"3": fmt.Errorf("rate limit exceeded: HTTP 429")},
		actionIDs: map[string]bool{"1": true},
	}
	idx := &fakeIndexer{}
	store := &fakeStore{}

	runner := NewRunner(proc, idx, store, "techcorp", nil, WithConcurrency(2))

	records := []Record{
		validRecord("1"), // processed, carries an action
		validRecord("2"), // processed, no action
		validRecord("3"), // processor failure
		{RecordID: "4"},  // no payload
		{RecordID: "5", Email: &pipeline.RawEmail{Subject: "제목"}}, // missing fields
	}

	stats := runner.Run(context.Background(), records, pipeline.RecipientContext{Name: "김철수"})

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.ActionsExtracted)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "3", stats.Errors[0].RecordID)
	assert.Equal(t, errors.ErrRateLimit, stats.Errors[0].Code)
	assert.Positive(t, stats.Duration)

	// Both processed records were indexed; only the action was stored.
	assert.Equal(t, 2, idx.calls)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []string{"techcorp"}, store.tenants)
}

func TestRunnerPersistenceFailureStillCounts(t *testing.T) {
	proc := &fakeProcessor{actionIDs: map[string]bool{"1": true}}
	idx := &fakeIndexer{err: fmt.Errorf("upload failed")}
	store := &fakeStore{err: fmt.Errorf("write failed")}

	runner := NewRunner(proc, idx, store, "techcorp", nil)
	stats := runner.Run(context.Background(), []Record{validRecord("1")}, pipeline.RecipientContext{})

	assert.Equal(t, 1, stats.Processed)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, idx.calls)
	assert.Equal(t, 1, store.calls)
}

func TestRunnerNilPersistence(t *testing.T) {
	proc := &fakeProcessor{actionIDs: map[string]bool{"1": true}}

	runner := NewRunner(proc, nil, nil, "techcorp", nil)
	stats := runner.Run(context.Background(), []Record{validRecord("1")}, pipeline.RecipientContext{})

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.ActionsExtracted)
}

func TestRunnerCancelledContextStopsDispatch(t *testing.T) {
	proc := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make([]Record, 50)
	for i := range records {
		records[i] = validRecord(fmt.Sprint(i))
	}

	runner := NewRunner(proc, nil, nil, "techcorp", nil, WithConcurrency(2))
	stats := runner.Run(ctx, records, pipeline.RecipientContext{})

	assert.Equal(t, 50, stats.Total)
	assert.Less(t, stats.Processed, 50)
}

func TestRunnerEmptyInput(t *testing.T) {
	runner := NewRunner(&fakeProcessor{}, nil, nil, "techcorp", nil)
	stats := runner.Run(context.Background(), nil, pipeline.RecipientContext{})

	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.Processed)
	assert.Empty(t, stats.Errors)
}

package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haneul-labs/mailaction/pkg/errors"
	"github.com/haneul-labs/mailaction/pkg/events"
	"github.com/haneul-labs/mailaction/pkg/index"
	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/observability"
	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 4

// Processor runs the pipeline for one record and recipient.
type Processor interface {
	Run(ctx context.Context, raw *pipeline.RawEmail, rc pipeline.RecipientContext) (*pipeline.Result, error)
}

// Indexer uploads a finished email (and optional action) to the search
// index.
type Indexer interface {
	IndexEmail(ctx context.Context, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error
}

// ActionStore persists one extracted action.
type ActionStore interface {
	UpsertAction(ctx context.Context, tenantID string, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error
}

// RecordError captures one record's failure for run statistics.
type RecordError struct {
	RecordID string           `json:"record_id"`
	Code     errors.ErrorCode `json:"code"`
	Message  string           `json:"message"`
}

// RunStats summarizes one batch run.
type RunStats struct {
	RunID            string        `json:"run_id"`
	Total            int           `json:"total"`
	Processed        int           `json:"processed"`
	Skipped          int           `json:"skipped"`
	ActionsExtracted int           `json:"actions_extracted"`
	Errors           []RecordError `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// Runner fans records out to a bounded worker pool. Records are
// independent, so workers share nothing but the stats sink.
type Runner struct {
	processor   Processor
	indexer     Indexer
	store       ActionStore
	publisher   events.Publisher
	log         logging.Logger
	tenantID    string
	concurrency int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency sets the worker count.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithPublisher sets the event publisher; the default discards events.
func WithPublisher(p events.Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner wires a processor with its persistence collaborators. indexer
// and store may be nil for a dry run that extracts without persisting.
func NewRunner(processor Processor, indexer Indexer, store ActionStore, tenantID string, log logging.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &Runner{
		processor:   processor,
		indexer:     indexer,
		store:       store,
		publisher:   events.NoopPublisher{},
		log:         log.With(logging.F("component", "batch_runner")),
		tenantID:    tenantID,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes all records for one recipient and returns run statistics.
// Individual record failures are isolated and counted; only context
// cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, records []Record, rc pipeline.RecipientContext) RunStats {
	start := time.Now()
	runID := uuid.New().String()
	log := r.log.With(logging.F("run_id", runID))

	stats := RunStats{RunID: runID, Total: len(records)}
	var mu sync.Mutex

	jobs := make(chan Record)
	var wg sync.WaitGroup

	for w := 0; w < r.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				outcome := r.processRecord(ctx, runID, rec, rc, log)
				mu.Lock()
				switch outcome.status {
				case observability.StatusProcessed:
					stats.Processed++
					if outcome.hasAction {
						stats.ActionsExtracted++
					}
				case observability.StatusSkipped:
					stats.Skipped++
				case observability.StatusError:
					stats.Errors = append(stats.Errors, *outcome.err)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, rec := range records {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- rec:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Duration = time.Since(start)

	ev := events.RunCompletedEvent{
		BaseEvent:        events.BaseEvent{RunID: runID, TenantID: r.tenantID, Timestamp: time.Now().UTC()},
		Total:            stats.Total,
		Processed:        stats.Processed,
		Skipped:          stats.Skipped,
		ActionsExtracted: stats.ActionsExtracted,
		Errors:           len(stats.Errors),
	}
	if err := r.publisher.PublishRunCompleted(ctx, ev); err != nil {
		log.Warn("publishing run completion failed", logging.Err(err))
	}

	log.Info("batch run finished",
		logging.F("total", stats.Total),
		logging.F("processed", stats.Processed),
		logging.F("skipped", stats.Skipped),
		logging.F("actions", stats.ActionsExtracted),
		logging.F("errors", len(stats.Errors)),
		logging.F("duration", stats.Duration))

	return stats
}

// recordOutcome is a worker's report for one record.
type recordOutcome struct {
	status    string
	hasAction bool
	err       *RecordError
}

// processRecord runs validation, the pipeline, and persistence for one
// record. Malformed records are skipped; all other failures become counted
// errors, never panics or aborts.
func (r *Runner) processRecord(ctx context.Context, runID string, rec Record, rc pipeline.RecipientContext, log logging.Logger) recordOutcome {
	recLog := log.With(logging.F("record_id", rec.RecordID))

	if rec.Email == nil {
		recLog.Warn("record has no data payload, skipping")
		observability.RecordsProcessed.WithLabelValues(observability.StatusSkipped).Inc()
		return recordOutcome{status: observability.StatusSkipped}
	}
	if err := rec.Email.Validate(); err != nil {
		recLog.Warn("record missing required fields, skipping", logging.Err(err))
		observability.RecordsProcessed.WithLabelValues(observability.StatusSkipped).Inc()
		return recordOutcome{status: observability.StatusSkipped}
	}

	spanCtx, span := observability.StartSpan(ctx, observability.SpanProcessRecord,
		observability.AttrRecordID.String(rec.RecordID))
	defer span.End()

	stageStart := time.Now()
	result, err := r.processor.Run(spanCtx, rec.Email, rc)
	observability.StageDuration.WithLabelValues("pipeline").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		pe := errors.ClassifyError(err, "pipeline")
		recLog.Error("record processing failed", logging.Err(err))
		observability.RecordsProcessed.WithLabelValues(observability.StatusError).Inc()
		return recordOutcome{
			status: observability.StatusError,
			err:    &RecordError{RecordID: rec.RecordID, Code: pe.Code, Message: pe.Message},
		}
	}

	span.SetAttributes(
		observability.AttrEmailID.String(result.Email.EmailID),
		observability.AttrPolicy.String(string(result.Signals.Decision)),
		observability.AttrHasAct.Bool(result.Action != nil),
	)

	r.persist(spanCtx, runID, result, recLog)

	if result.Action != nil {
		observability.ActionsExtracted.WithLabelValues(
			string(result.Action.Type), string(result.Signals.Decision)).Inc()
		r.publishAction(ctx, runID, result, recLog)
	}

	ev := events.RecordProcessedEvent{
		BaseEvent: events.BaseEvent{RunID: runID, TenantID: r.tenantID, Timestamp: time.Now().UTC()},
		RecordID:  result.Email.RecordID,
		EmailID:   result.Email.EmailID,
		Status:    observability.StatusProcessed,
		HasAction: result.Action != nil,
	}
	if err := r.publisher.PublishRecordProcessed(ctx, ev); err != nil {
		recLog.Warn("publishing record event failed", logging.Err(err))
	}

	observability.RecordsProcessed.WithLabelValues(observability.StatusProcessed).Inc()
	return recordOutcome{status: observability.StatusProcessed, hasAction: result.Action != nil}
}

// persist uploads index documents and, when an action exists, the table
// row. Persistence failures are logged and downgraded; the record still
// counts as processed.
func (r *Runner) persist(ctx context.Context, runID string, result *pipeline.Result, log logging.Logger) {
	if r.indexer != nil {
		start := time.Now()
		if err := r.indexer.IndexEmail(ctx, result.Email, result.Action); err != nil {
			log.Error("index upload failed", logging.Err(err))
		}
		observability.StageDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())
	}

	if r.store != nil && result.Action != nil {
		start := time.Now()
		if err := r.store.UpsertAction(ctx, r.tenantID, result.Email, result.Action); err != nil {
			log.Error("action store write failed", logging.Err(err))
		}
		observability.StageDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())
	}
}

func (r *Runner) publishAction(ctx context.Context, runID string, result *pipeline.Result, log logging.Logger) {
	ev := events.ActionExtractedEvent{
		BaseEvent:  events.BaseEvent{RunID: runID, TenantID: r.tenantID, Timestamp: time.Now().UTC()},
		RecordID:   result.Email.RecordID,
		EmailID:    result.Email.EmailID,
		ActionType: string(result.Action.Type),
		Title:      result.Action.Title,
		Assignee:   result.Action.Assignee,
		Due:        result.Action.Due,
		Confidence: result.Action.Confidence,
	}
	if err := r.publisher.PublishActionExtracted(ctx, ev); err != nil {
		log.Warn("publishing action event failed", logging.Err(err))
	}
}

// Ensure the index package's concrete type satisfies the runner interface.
var _ Indexer = (*index.Indexer)(nil)

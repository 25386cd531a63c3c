package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/haneul-labs/mailaction/pkg/logging"
)

// DefaultConfidence is the base confidence assigned to extracted actions
// before boosts.
const DefaultConfidence = 0.65

// Result carries everything a pipeline run produced for one email and
// recipient. Action is nil when the email implies no action.
type Result struct {
	Email   *NormalizedEmail
	Signals PolicySignals
	Hints   []string
	Action  *ResolvedAction
}

// Pipeline wires the seven stages together for one (email, recipient) run.
// A Pipeline is safe for concurrent use; runs share no mutable state.
type Pipeline struct {
	extractor         *Extractor
	resolver          *Resolver
	defaultConfidence float64
	log               logging.Logger
	now               func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDefaultConfidence overrides the base action confidence.
func WithDefaultConfidence(c float64) Option {
	return func(p *Pipeline) { p.defaultConfidence = c }
}

// WithClock overrides the wall clock, used when a record has no parseable
// receipt time. Tests inject a fixed clock here.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline from its two service-backed stages.
func New(extractor *Extractor, resolver *Resolver, log logging.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logging.NewNopLogger()
	}
	p := &Pipeline{
		extractor:         extractor,
		resolver:          resolver,
		defaultConfidence: DefaultConfidence,
		log:               log.With(logging.F("component", "pipeline")),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// referenceTime anchors relative deadline phrases: the email's receipt time
// when it parses, the current time otherwise.
func (p *Pipeline) referenceTime(email *NormalizedEmail) time.Time {
	if email.ReceivedAt != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, email.ReceivedAt); err == nil {
				return t
			}
		}
	}
	return p.now()
}

// Run executes the full pipeline for one raw record and recipient. Nothing
// is persisted here; the caller owns storage and indexing of the Result.
// Failures in the service-backed stages degrade to the most conservative
// local outcome and never abort the run.
func (p *Pipeline) Run(ctx context.Context, raw *RawEmail, rc RecipientContext) (*Result, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	email := Normalize(raw)
	log := p.log.With(
		logging.F("record_id", email.RecordID),
		logging.F("email_id", email.EmailID))

	hints := CollectDeadlineHints(email)
	signals := AnalyzePolicy(raw, rc)
	segments := SegmentsFor(email.Body, rc)

	log.Debug("deterministic stages complete",
		logging.F("policy", string(signals.Decision)),
		logging.F("segments", len(segments)),
		logging.F("hints", len(hints)))

	rawAction := p.extractor.Extract(ctx, email, signals, segments, hints, rc)

	result := &Result{Email: email, Signals: signals, Hints: hints}
	if !rawAction.IsAction || rawAction.Action == nil {
		return result, nil
	}

	var resolution *Resolution
	if dueRaw := strings.TrimSpace(rawAction.Action.DueRaw); dueRaw != "" {
		res, err := p.resolver.Resolve(ctx, dueRaw, p.referenceTime(email))
		if err != nil {
			// Unresolvable deadlines are a data-quality downgrade, not
			// a failure: the action persists without a due timestamp.
			log.Warn("deadline resolution failed", logging.Err(err))
		} else {
			resolution = res
		}
	}

	result.Action = NormalizeAction(rawAction, email, resolution, p.defaultConfidence)
	if result.Action != nil {
		log.Info("action extracted",
			logging.F("type", string(result.Action.Type)),
			logging.F("title", result.Action.Title),
			logging.F("due", result.Action.Due))
	}
	return result, nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/haneul-labs/mailaction/pkg/llm"
	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/observability"
)

// Resolution defaults. Deadlines without an explicit clock resolve to the
// end of the Korean business day.
const (
	defaultDueHour   = 18
	defaultDueMinute = 0

	// TimeZoneName is the zone all deadline phrases are interpreted in.
	TimeZoneName = "Asia/Seoul"
)

// Resolution is a resolved deadline in both local and UTC form.
type Resolution struct {
	Local time.Time
	UTC   time.Time
	Raw   string
}

// Deadline phrase patterns.
var (
	clockRe        = regexp.MustCompile(`(오전|오후)?\s*(\d{1,2})시(?:\s*(\d{1,2})분)?`)
	todayRe        = regexp.MustCompile(`금일|오늘`)
	thisWeekRe     = regexp.MustCompile(`(?:이번\s*주|금주)\s*(월|화|수|목|금|토|일)`)
	nextWeekRe     = regexp.MustCompile(`다음\s*주\s*(월|화|수|목|금|토|일)`)
	isoDateRe      = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	slashDateRe    = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
	relativeDayRe  = regexp.MustCompile(`(\d+)\s*일\s*(?:후|뒤)`)
	eodRe          = regexp.MustCompile(`(?i)\bEOD\b|업무\s*(?:종료|시간)\s*전`)
	eowRe          = regexp.MustCompile(`(?i)\bEOW\b`)
	llmKSTShapeRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)
	llmISOShapeRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2})?Z$`)
)

// weekdayOffsets maps Korean weekday names to Monday-based indices.
var weekdayOffsets = map[string]int{
	"월": 0, "화": 1, "수": 2, "목": 3, "금": 4, "토": 5, "일": 6,
}

// dateStrategy attempts to derive a target date from a phrase. Strategies
// are pure; the expensive LLM correction lives outside this chain.
type dateStrategy func(phrase string, ref time.Time) (time.Time, bool)

// Resolver converts raw deadline phrases into absolute timestamps.
type Resolver struct {
	completer  llm.Completer
	model      string
	loc        *time.Location
	log        logging.Logger
	strategies []dateStrategy
}

// NewResolver creates a Resolver. The completer may be nil, in which case
// the LLM correction step is skipped and rule-based resolution is final.
func NewResolver(completer llm.Completer, model string, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNopLogger()
	}
	loc, err := time.LoadLocation(TimeZoneName)
	if err != nil {
		// KST has no DST; a fixed offset is equivalent when the zone
		// database is unavailable.
		loc = time.FixedZone("KST", 9*60*60)
	}
	r := &Resolver{
		completer: completer,
		model:     model,
		loc:       loc,
		log:       log.With(logging.F("component", "resolver")),
	}
	r.strategies = []dateStrategy{
		r.resolveRelativeDay,
		r.resolveThisWeek,
		r.resolveNextWeek,
		r.resolveEndOfWeek,
		r.resolveISODate,
		r.resolveSlashDate,
		r.resolveDayCount,
		r.resolveClockOnly,
		r.resolveFuzzy,
	}
	return r
}

// Location returns the resolver's local time zone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// extractClock pulls an explicit time of day out of the phrase, defaulting
// to 18:00. 오후 adds twelve hours; 오전 12시 is midnight.
func extractClock(phrase string) (hour, minute int) {
	hour, minute = defaultDueHour, defaultDueMinute
	m := clockRe.FindStringSubmatch(phrase)
	if m == nil {
		return hour, minute
	}
	h, err := strconv.Atoi(m[2])
	if err != nil || h > 23 {
		return hour, minute
	}
	hour = h
	if m[3] != "" {
		if mm, err := strconv.Atoi(m[3]); err == nil && mm < 60 {
			minute = mm
		}
	}
	switch m[1] {
	case "오후":
		if hour < 12 {
			hour += 12
		}
	case "오전":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute
}

// mondayWeekday converts Go's Sunday-based weekday to Monday-based.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// dateOnly truncates a timestamp to midnight in the resolver's zone. Date
// strategies return midnight so the clock extracted from the phrase (or
// the 18:00 default) is applied afterwards; only a fuzzy parse may carry
// its own clock through.
func (r *Resolver) dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
}

func (r *Resolver) resolveRelativeDay(phrase string, ref time.Time) (time.Time, bool) {
	switch {
	case todayRe.MatchString(phrase):
		return r.dateOnly(ref), true
	case strings.Contains(phrase, "모레"):
		return r.dateOnly(ref.AddDate(0, 0, 2)), true
	case strings.Contains(phrase, "내일"):
		return r.dateOnly(ref.AddDate(0, 0, 1)), true
	}
	return time.Time{}, false
}

func (r *Resolver) resolveThisWeek(phrase string, ref time.Time) (time.Time, bool) {
	m := thisWeekRe.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	delta := (weekdayOffsets[m[1]] - mondayWeekday(ref)) % 7
	if delta < 0 {
		delta += 7
	}
	return r.dateOnly(ref.AddDate(0, 0, delta)), true
}

// resolveNextWeek lands in the following calendar week without wrapping, so
// "다음주 금요일" on a Monday is eleven days out, not four.
func (r *Resolver) resolveNextWeek(phrase string, ref time.Time) (time.Time, bool) {
	m := nextWeekRe.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	delta := weekdayOffsets[m[1]] - mondayWeekday(ref) + 7
	return r.dateOnly(ref.AddDate(0, 0, delta)), true
}

// resolveEndOfWeek pins EOW to this week's Friday. EOD needs no date
// strategy: the phrase names the reference day itself and the default
// 18:00 clock already covers it.
func (r *Resolver) resolveEndOfWeek(phrase string, ref time.Time) (time.Time, bool) {
	if eodRe.MatchString(phrase) {
		return r.dateOnly(ref), true
	}
	if !eowRe.MatchString(phrase) {
		return time.Time{}, false
	}
	delta := (weekdayOffsets["금"] - mondayWeekday(ref)) % 7
	if delta < 0 {
		delta += 7
	}
	return r.dateOnly(ref.AddDate(0, 0, delta)), true
}

func (r *Resolver) resolveISODate(phrase string, ref time.Time) (time.Time, bool) {
	m := isoDateRe.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, r.loc), true
}

// resolveSlashDate handles MM/DD with the year inferred as current or next
// depending on whether the month has already passed.
func (r *Resolver) resolveSlashDate(phrase string, ref time.Time) (time.Time, bool) {
	m := slashDateRe.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	mo, _ := strconv.Atoi(m[1])
	d, _ := strconv.Atoi(m[2])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	y := ref.Year()
	if mo < int(ref.Month()) {
		y++
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, r.loc), true
}

func (r *Resolver) resolveDayCount(phrase string, ref time.Time) (time.Time, bool) {
	m := relativeDayRe.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	return r.dateOnly(ref.AddDate(0, 0, days)), true
}

// resolveClockOnly anchors a bare time-of-day phrase ("오후 11시까지") to the
// reference date. Deadline hints include clock-only candidates, so these
// reach the resolver without any date wording.
func (r *Resolver) resolveClockOnly(phrase string, ref time.Time) (time.Time, bool) {
	if !clockRe.MatchString(phrase) {
		return time.Time{}, false
	}
	return r.dateOnly(ref), true
}

// resolveFuzzy is the last deterministic attempt: a general-purpose fuzzy
// date parse interpreted in the local zone.
func (r *Resolver) resolveFuzzy(phrase string, ref time.Time) (time.Time, bool) {
	parsed, err := dateparse.ParseIn(phrase, r.loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.In(r.loc), true
}

// Resolve converts a raw deadline phrase into an absolute timestamp using
// the ordered strategy chain, falling back to exactly one LLM correction
// call if every deterministic attempt fails. ref anchors relative phrases;
// pass the email's receipt time when available.
func (r *Resolver) Resolve(ctx context.Context, phrase string, ref time.Time) (*Resolution, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, fmt.Errorf("resolution failed: empty deadline phrase")
	}

	refLocal := ref.In(r.loc)
	hour, minute := extractClock(phrase)

	for _, strat := range r.strategies {
		target, ok := strat(phrase, refLocal)
		if !ok {
			continue
		}
		// A fuzzy parse carrying its own clock overrides the default.
		if target.Hour() != 0 || target.Minute() != 0 {
			hour, minute = target.Hour(), target.Minute()
		}
		local := time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, r.loc)
		observability.DeadlineResolutions.WithLabelValues("rule").Inc()
		return &Resolution{Local: local, UTC: local.UTC(), Raw: phrase}, nil
	}

	if r.completer == nil {
		observability.DeadlineResolutions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("resolution failed for %q: no strategy matched", phrase)
	}
	res, err := r.resolveWithLLM(ctx, phrase, refLocal)
	if err != nil {
		observability.DeadlineResolutions.WithLabelValues("failed").Inc()
		return nil, err
	}
	observability.DeadlineResolutions.WithLabelValues("llm").Inc()
	return res, nil
}

// llmResolution is the strict shape the correction call must return.
type llmResolution struct {
	KST string `json:"kst"`
	ISO string `json:"iso"`
}

// resolveWithLLM makes the single model-based correction call. The answer
// is accepted only when both fields match their exact shapes.
func (r *Resolver) resolveWithLLM(ctx context.Context, phrase string, ref time.Time) (*Resolution, error) {
	prompt := fmt.Sprintf(`다음 한국어 기한 표현을 절대 시각으로 변환하세요.

기한 표현: %q
기준 시각(KST): %s

다음 JSON 형식으로만 응답하세요:
{"kst":"YYYY-MM-DD HH:MM","iso":"YYYY-MM-DDTHH:MM:SSZ"}
시간이 명시되지 않았으면 18:00을 사용하세요.`, phrase, ref.Format("2006-01-02 15:04"))

	resp, err := r.completer.Complete(ctx, llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("resolution failed for %q: %w", phrase, err)
	}

	obj, err := extractJSONObject(resp)
	if err != nil {
		return nil, fmt.Errorf("resolution failed for %q: %w", phrase, err)
	}

	var parsed llmResolution
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("resolution failed for %q: %w", phrase, err)
	}
	if !llmKSTShapeRe.MatchString(parsed.KST) || !llmISOShapeRe.MatchString(parsed.ISO) {
		return nil, fmt.Errorf("resolution failed for %q: correction %q/%q has wrong shape", phrase, parsed.KST, parsed.ISO)
	}

	local, err := time.ParseInLocation("2006-01-02 15:04", parsed.KST, r.loc)
	if err != nil {
		return nil, fmt.Errorf("resolution failed for %q: %w", phrase, err)
	}

	r.log.Debug("deadline resolved via model correction",
		logging.F("phrase", phrase),
		logging.F("kst", parsed.KST))

	return &Resolution{Local: local, UTC: local.UTC(), Raw: phrase}, nil
}

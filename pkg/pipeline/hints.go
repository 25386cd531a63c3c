package pipeline

import (
	"regexp"
	"strings"
)

// Hint caps: body-only scans keep at most 5 candidates, the subject+body
// scan feeding the extraction prompt keeps 10.
const (
	MaxBodyHints   = 5
	MaxPromptHints = 10
)

// deadlinePatterns is the ordered list of Korean temporal expressions.
// Priority order matters: explicit "까지" phrases first, then bare dates,
// relative day counts, named constants, ranges, and week/month spans.
var deadlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(\s*\d{1,2}/\d{1,2}(?:\([^)]*\))?\s*까지\s*\)`),
	regexp.MustCompile(`(?i)\d{1,2}/\d{1,2}(?:\([^)]*\))?\s*까지`),
	regexp.MustCompile(`(?i)\d{4}-\d{1,2}-\d{1,2}(?:\s*\d{1,2}:\d{2})?\s*까지`),
	regexp.MustCompile(`(?i)(?:이번\s*주|금주)\s*(월|화|수|목|금|토|일)요일?\s*까지`),
	regexp.MustCompile(`(?i)(?:금일|오늘|내일)\s*(?:오전|오후)?\s*\d{1,2}시(?:\s*\d{1,2}분)?\s*까지`),
	regexp.MustCompile(`(?i)(?:오전|오후)?\s*\d{1,2}시(?:\s*\d{1,2}분)?\s*까지`),
	regexp.MustCompile(`(?i)(?:금일|오늘|내일)\s*까지`),
	regexp.MustCompile(`(?i)마감[:\s]*\d{1,2}/\d{1,2}(?:\([^)]*\))?`),
	regexp.MustCompile(`(?i)\d{1,2}/\d{1,2}(?:\([^)]*\))?(?:\s*\d{1,2}:\d{2})?`),
	regexp.MustCompile(`(?i)\d{4}-\d{1,2}-\d{1,2}(?:\s*\d{1,2}:\d{2})?`),
	regexp.MustCompile(`(?i)\d+\s*일\s*(?:후|뒤)`),
	regexp.MustCompile(`(?i)\b(?:EOD|EOW)\b`),
	regexp.MustCompile(`(?i)업무\s*(?:종료|시간)\s*전`),
	regexp.MustCompile(`(?i)\d{1,2}/\d{1,2}\s*~\s*\d{1,2}/\d{1,2}`),
	regexp.MustCompile(`(?i)\d{4}-\d{1,2}-\d{1,2}\s*~\s*\d{4}-\d{1,2}-\d{1,2}`),
	regexp.MustCompile(`(?i)(?:이번\s*주\s*내|주중|이번\s*달\s*내|월말\s*까지|분기\s*말\s*까지)`),
}

// ExtractDeadlineHints scans text for candidate deadline phrases. Patterns
// are applied in priority order; all matches of a pattern are collected
// before moving to the next. Output is deduplicated, order-stable, and
// capped at max items.
func ExtractDeadlineHints(text string, max int) []string {
	if text == "" || max <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var found []string
	for _, re := range deadlinePatterns {
		for _, m := range re.FindAllString(text, -1) {
			s := strings.TrimSpace(m)
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			found = append(found, s)
			if len(found) >= max {
				return found
			}
		}
	}
	return found
}

// CollectDeadlineHints scans subject and body together for the hint list
// passed to the extraction prompt.
func CollectDeadlineHints(email *NormalizedEmail) []string {
	blob := strings.TrimSpace(email.Subject + "\n\n" + email.Body)
	return ExtractDeadlineHints(blob, MaxPromptHints)
}

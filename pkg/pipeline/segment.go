package pipeline

import (
	"regexp"
	"strings"
)

// Segmentation tuning constants.
const (
	// mentionClusterGap is the max character gap between two mentions on
	// the same line for them to share a cluster.
	mentionClusterGap = 20

	// segmentBackoff is how far a segment extends before its cluster start.
	segmentBackoff = 80

	// segmentMaxLines and segmentMaxChars cap segment size.
	segmentMaxLines = 12
	segmentMaxChars = 600

	// dueLookback is the window searched before a deadline candidate for a
	// trailing recipient mention.
	dueLookback = 120

	// dueContextWindow is the window around a candidate searched for
	// recipient identifiers when the body has no mentions.
	dueContextWindow = 150
)

// segmentMentionRe is the segmenter's mention token: @name with an optional
// parenthesized team.
var segmentMentionRe = regexp.MustCompile(`@([\p{L}\p{N}._\-]+)(?:\(([^)]+)\))?`)

// requestMarkerRe matches request words that bind a trailing mention to the
// deadline that follows it.
var requestMarkerRe = regexp.MustCompile(`부탁|요청|확인|검토|회신|바랍니다|해주세요|처리|대응`)

// genericTaskDueRe is the mention-free fallback: "the task below ... due".
var genericTaskDueRe = regexp.MustCompile(`(?:아래|다음|하기).{0,40}(?:업무|작업|태스크|건).{0,60}(?:까지|기한|마감)`)

// honorificSuffixes are stripped before matching a mention against the
// recipient's name.
var honorificSuffixes = []string{"님", "씨"}

// mention is one @-token occurrence in the body.
type mention struct {
	start int
	end   int
	name  string
	team  string
}

// mentionCluster groups adjacent mentions that co-refer.
type mentionCluster struct {
	start    int
	end      int
	mentions []mention
}

// findMentions returns all mention tokens in document order. Offsets are
// byte offsets into body.
func findMentions(body string) []mention {
	idxs := segmentMentionRe.FindAllStringSubmatchIndex(body, -1)
	mentions := make([]mention, 0, len(idxs))
	for _, loc := range idxs {
		m := mention{start: loc[0], end: loc[1], name: body[loc[2]:loc[3]]}
		if loc[4] >= 0 {
			m.team = body[loc[4]:loc[5]]
		}
		mentions = append(mentions, m)
	}
	return mentions
}

// clusterMentions groups mentions that sit on the same line within the
// fixed character gap.
func clusterMentions(body string, mentions []mention) []mentionCluster {
	var clusters []mentionCluster
	for _, m := range mentions {
		if len(clusters) > 0 {
			last := &clusters[len(clusters)-1]
			gap := m.start - last.end
			if gap <= mentionClusterGap && !strings.Contains(body[last.end:m.start], "\n") {
				last.mentions = append(last.mentions, m)
				last.end = m.end
				continue
			}
		}
		clusters = append(clusters, mentionCluster{start: m.start, end: m.end, mentions: []mention{m}})
	}
	return clusters
}

// canonical lowercases and removes all spaces for comparison.
func canonical(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// stripHonorific removes a trailing honorific suffix from a mention name.
func stripHonorific(s string) string {
	for _, suffix := range honorificSuffixes {
		if trimmed, ok := strings.CutSuffix(s, suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return s
}

// matchesRecipient reports whether a mention refers to the recipient:
// name, full email, email local part, or team, case- and space-insensitive,
// after stripping honorific suffixes. Exact match only, so a mention of an
// unrelated longer name does not match.
func matchesRecipient(m mention, rc RecipientContext) bool {
	candidates := []string{m.name, stripHonorific(m.name)}
	if m.team != "" {
		candidates = append(candidates, m.team)
	}

	var targets []string
	if rc.Name != "" {
		targets = append(targets, canonical(rc.Name))
	}
	if rc.Email != "" {
		targets = append(targets, canonical(rc.Email))
		if local, _, ok := strings.Cut(rc.Email, "@"); ok && local != "" {
			targets = append(targets, canonical(local))
		}
	}
	if rc.Team != "" {
		targets = append(targets, canonical(rc.Team))
	}

	for _, c := range candidates {
		cc := canonical(c)
		if cc == "" {
			continue
		}
		for _, t := range targets {
			if cc == t {
				return true
			}
		}
	}
	return false
}

// clusterMatchesRecipient reports whether any mention in the cluster refers
// to the recipient.
func clusterMatchesRecipient(c mentionCluster, rc RecipientContext) bool {
	for _, m := range c.mentions {
		if matchesRecipient(m, rc) {
			return true
		}
	}
	return false
}

// truncateSegment applies the blank-line boundary and the line/char caps to
// a segment body. clusterEnd is the offset of the triggering cluster's end
// relative to the segment start; the blank-line cut only applies after it.
func truncateSegment(text string, clusterEnd int) string {
	if idx := strings.Index(text[min(clusterEnd, len(text)):], "\n\n"); idx >= 0 {
		text = text[:min(clusterEnd, len(text))+idx]
	}

	lines := strings.Split(text, "\n")
	if len(lines) > segmentMaxLines {
		text = strings.Join(lines[:segmentMaxLines], "\n")
	}
	if len(text) > segmentMaxChars {
		text = text[:segmentMaxChars]
	}
	return text
}

// SegmentsFor derives the body segments addressed to the recipient. One
// segment is emitted per cluster containing a recipient mention, spanning
// from clusterStart minus the backoff to the start of the next cluster,
// truncated at the first blank line past the cluster and at the size caps.
// Segments never overlap; an empty result is valid.
func SegmentsFor(body string, rc RecipientContext) []Segment {
	mentions := findMentions(body)
	if len(mentions) == 0 {
		return nil
	}
	clusters := clusterMentions(body, mentions)

	var segments []Segment
	prevEnd := 0
	for i, c := range clusters {
		if !clusterMatchesRecipient(c, rc) {
			continue
		}

		start := c.start - segmentBackoff
		if start < 0 {
			start = 0
		}
		if start < prevEnd {
			start = prevEnd
		}

		end := len(body)
		if i+1 < len(clusters) {
			end = clusters[i+1].start
		}
		if end <= start {
			continue
		}

		text := truncateSegment(body[start:end], c.end-start)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		segEnd := start + len(text)
		segments = append(segments, Segment{Start: start, End: segEnd, Text: text})
		prevEnd = segEnd
	}
	return segments
}

// IsDueForUser reports whether a deadline candidate found in text belongs
// to the recipient. The rules are tried in order:
//
//  1. the candidate lies strictly between a recipient mention and the next
//     mention;
//  2. the candidate follows a recipient-containing cluster with no other
//     mention in between;
//  3. a recipient mention trails within the lookback window, followed by
//     end-of-line or a request marker;
//  4. with no mentions in the body at all, the recipient's name, email, or
//     team appears near the candidate, or a generic "task below ... due"
//     phrase does.
func IsDueForUser(text, candidate string, rc RecipientContext) bool {
	if candidate == "" {
		return false
	}
	candIdx := strings.Index(text, candidate)

	mentions := findMentions(text)

	if len(mentions) == 0 {
		return dueForUserNoMentions(text, candidate, candIdx, rc)
	}
	if candIdx < 0 {
		return false
	}

	// Rule 1: strictly between a recipient mention and the next mention.
	for i, m := range mentions {
		if !matchesRecipient(m, rc) || m.end > candIdx {
			continue
		}
		nextStart := len(text)
		if i+1 < len(mentions) {
			nextStart = mentions[i+1].start
		}
		if candIdx < nextStart {
			return true
		}
	}

	// Rule 2: follows a recipient cluster with no intervening mention.
	clusters := clusterMentions(text, mentions)
	for _, c := range clusters {
		if !clusterMatchesRecipient(c, rc) || c.end > candIdx {
			continue
		}
		intervening := false
		for _, m := range mentions {
			if m.start >= c.end && m.start < candIdx {
				intervening = true
				break
			}
		}
		if !intervening {
			return true
		}
	}

	// Rule 3: trailing recipient mention in the lookback window with
	// end-of-line or a request marker after it.
	for _, m := range mentions {
		if !matchesRecipient(m, rc) {
			continue
		}
		if m.end > candIdx || candIdx-m.end > dueLookback {
			continue
		}
		between := text[m.end:candIdx]
		trailing := strings.TrimLeft(between, " \t")
		if strings.HasPrefix(trailing, "\n") || requestMarkerRe.MatchString(between) {
			return true
		}
	}

	return false
}

// dueForUserNoMentions handles rule 4: the mention-free body fallback.
func dueForUserNoMentions(text, candidate string, candIdx int, rc RecipientContext) bool {
	window := text
	if candIdx >= 0 {
		lo := candIdx - dueContextWindow
		if lo < 0 {
			lo = 0
		}
		hi := candIdx + len(candidate) + dueContextWindow
		if hi > len(text) {
			hi = len(text)
		}
		window = text[lo:hi]
	}

	cw := canonical(window)
	if rc.Name != "" && strings.Contains(cw, canonical(rc.Name)) {
		return true
	}
	if rc.Email != "" && strings.Contains(cw, canonical(rc.Email)) {
		return true
	}
	if rc.Team != "" && strings.Contains(cw, canonical(rc.Team)) {
		return true
	}
	return genericTaskDueRe.MatchString(window)
}

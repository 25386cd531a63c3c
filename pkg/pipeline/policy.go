package pipeline

import (
	"regexp"
	"strings"
)

// policyMentionRe is the loose token pattern used for policy signals. It is
// deliberately broader than the segmenter's pattern.
var policyMentionRe = regexp.MustCompile(`@(\S+(?:\([^)]+\))?)`)

// requestKeywords trigger request detection via plain substring match.
var requestKeywords = []string{
	"부탁", "요청", "확인", "검토", "승인", "회신", "즉시", "긴급", "마감",
	"완료", "해주세요", "바랍니다", "처리", "대응", "분석", "점검", "실행",
}

// extractMentionTokens returns every @-token in the body, "@" prefix
// included.
func extractMentionTokens(body string) []string {
	matches := policyMentionRe.FindAllStringSubmatch(body, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, "@"+m[1])
	}
	return tokens
}

// detectRequest reports whether any request keyword appears in the body.
func detectRequest(body string) bool {
	for _, kw := range requestKeywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// containsAddress reports whether addr appears in the list.
func containsAddress(list []string, addr string) bool {
	if addr == "" {
		return false
	}
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// AnalyzePolicy classifies an email/recipient pair. It works over the raw
// address lists and body, is total over its inputs, and never fails: any
// degenerate input degrades to false signals and DecisionNone.
//
// Decision rules, first match wins:
//
//	A: recipient on To + request detected, and either no foreign mention
//	   exists or the recipient is explicitly mentioned.
//	B: recipient on CC only; an explicit recipient mention upgrades to A.
//	C: the recipient sent the email and it carries a request.
//	D: recipient on To + request detected + the recipient's team named in
//	   the body.
func AnalyzePolicy(raw *RawEmail, rc RecipientContext) PolicySignals {
	body := raw.EmailBody

	mentions := extractMentionTokens(body)
	requestDetected := detectRequest(body)

	selfSent := raw.FromAddress != "" && rc.Email != "" && raw.FromAddress == rc.Email
	toSelf := containsAddress(raw.ToAddresses, rc.Email)
	ccSelf := containsAddress(raw.CcAddresses, rc.Email)

	selfTag := "@" + rc.Name
	selfMentioned := false
	foreignMention := false
	for _, m := range mentions {
		if rc.Name != "" && strings.Contains(m, selfTag) {
			selfMentioned = true
		}
		if m != selfTag {
			foreignMention = true
		}
	}

	decision := DecisionNone
	switch {
	case toSelf && requestDetected && (!foreignMention || selfMentioned):
		decision = DecisionA
	case ccSelf && !toSelf:
		if selfMentioned {
			// Explicit callout overrides CC-only classification.
			decision = DecisionA
		} else {
			decision = DecisionB
		}
	case selfSent && requestDetected:
		decision = DecisionC
	case toSelf && requestDetected && rc.Team != "" && strings.Contains(body, rc.Team):
		decision = DecisionD
	}

	return PolicySignals{
		Decision:        decision,
		SelfSent:        selfSent,
		ToContainsSelf:  toSelf,
		CcContainsSelf:  ccSelf,
		Mentions:        mentions,
		RequestDetected: requestDetected,
	}
}

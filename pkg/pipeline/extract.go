package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/haneul-labs/mailaction/pkg/llm"
	"github.com/haneul-labs/mailaction/pkg/logging"
)

// Extraction call parameters.
const (
	extractTemperature = 0.3
	extractMaxTokens   = 800
	maxPromptBodyRunes = 3000
	maxTitleRunes      = 60
)

// schemaBlock pins the output contract the completion must follow.
const schemaBlock = `다음 JSON 형식으로만, 한 줄의 유효한 JSON으로 응답하세요:
{
"is_action": true,
"policy_decision": "A|B|C|D|none",
"action": {
    "type": "DO|FOLLOW_UP|NONE",
    "title": "액션 제목(20자 이내)",
    "assignee_candidates": ["이름 <이메일>", "팀명"],
    "due_raw": "원본 기한 표현(힌트에서 고르거나 본문에서 그대로 발췌; 없으면 null)",
    "priority": "High|Medium|Low",
    "tags": ["태그1", "태그2"],
    "rationale": "판단 근거(1~2문장)"
}
}
주의:
- 무조건 JSON만 출력(코드블록, 설명 금지)
- 값이 없으면 null 로 채워라
- due_raw 는 반드시 '원문 표현'을 그대로 복사`

// Extractor runs structured extraction against the completion service and
// validates the results.
type Extractor struct {
	completer llm.Completer
	model     string
	log       logging.Logger
}

// NewExtractor creates an Extractor bound to a completion deployment.
func NewExtractor(completer llm.Completer, model string, log logging.Logger) *Extractor {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Extractor{
		completer: completer,
		model:     model,
		log:       log.With(logging.F("component", "extractor")),
	}
}

// buildSystemPrompt renders the policy rules and recipient identity.
func buildSystemPrompt(rc RecipientContext) string {
	return fmt.Sprintf(`당신은 이메일에서 액션 아이템을 추출하는 전문가입니다.

다음 정책 규칙을 반드시 준수하세요:
- A: To에 포함 + 요청 표현 → DO 액션
- B: CC에만 포함 + 명시적 지목 없음 → 비액션
- C: 본인이 보낸 요청 → FOLLOW_UP 액션
- D: 팀 단위 요청 + To에 포함 → DO 액션

사용자 정보:
- 이름: %s
- 이메일: %s
- 팀: %s

JSON 형식으로만 응답하세요.`, rc.Name, rc.Email, rc.Team)
}

// buildUserPrompt renders the email headers, the analysis text, the
// pre-extracted deadline hints, and the policy signals.
func buildUserPrompt(email *NormalizedEmail, signals PolicySignals, analysisText string, hints []string) string {
	toLine := joinAddresses(email.To)
	ccLine := joinAddresses(email.Cc)

	body := truncateRunes(analysisText, maxPromptBodyRunes)

	return fmt.Sprintf(`이메일 분석:

제목: %s
발신자: %s <%s>
수신자: %s
참조: %s
날짜: %s

본문:
%s

[기한 후보 힌트] 본문에서 규칙 기반으로 미리 탐지된 표현들:
%v

정책 신호:
- 정책 결정: %s
- 본인 발송: %t
- To에 본인 포함: %t
- 멘션: %v
- 요청 감지: %t
- title은 12~20자 한국어 문장으로, 나에게 할당된 핵심 작업을 동사+명사로 요약(예: "API 서버 로그 분석").
- [기한 후보 힌트]가 비어 있어도, 본문/제목에서 직접 날짜·요일·시간·범위를 찾아 due_raw에 '원문 그대로' 복사해라. 정말 원문에 아무 표현도 없을 때만 null을 사용한다.

%s`,
		email.Subject,
		email.From.Name, email.From.Email,
		toLine, ccLine,
		email.ReceivedAt,
		body,
		hints,
		signals.Decision,
		signals.SelfSent,
		signals.ToContainsSelf,
		signals.Mentions,
		signals.RequestDetected,
		schemaBlock)
}

func joinAddresses(addrs []Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Email))
	}
	return strings.Join(parts, ", ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// extractJSONObject pulls the last balanced top-level {...} block out of a
// completion. Completions sometimes wrap the object in prose or code
// fences; the last complete object wins.
func extractJSONObject(s string) (string, error) {
	var lastStart, lastEnd = -1, -1
	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					lastStart, lastEnd = start, i+1
				}
			}
		}
	}
	if lastStart < 0 {
		return "", fmt.Errorf("no json object found in completion")
	}
	return s[lastStart:lastEnd], nil
}

// validateAndFix applies the deterministic corrections to an untrusted
// extraction result. scopeText is the text the extraction ran over and is
// used for due-date ownership checks.
func (e *Extractor) validateAndFix(raw *RawAction, signals PolicySignals, scopeText string, rc RecipientContext) *RawAction {
	if raw.Action != nil {
		a := raw.Action

		switch ActionType(a.Type) {
		case ActionDo, ActionFollowUp, ActionNone:
		default:
			a.Type = string(ActionNone)
		}

		if signals.SelfSent {
			a.Type = string(ActionFollowUp)
			raw.IsAction = true
		}

		a.Title = truncateRunes(a.Title, maxTitleRunes)
		a.Tags = dedupeTags(a.Tags)

		if ActionType(a.Type) != ActionFollowUp && a.DueRaw != "" {
			if !IsDueForUser(scopeText, a.DueRaw, rc) {
				e.log.Debug("dropping due phrase not owned by recipient",
					logging.F("due_raw", a.DueRaw))
				a.DueRaw = ""
			}
		}

		if ActionType(a.Type) == ActionNone {
			raw.IsAction = false
			raw.Action = nil
		}
	}

	if raw.Action == nil {
		raw.IsAction = false
	}
	return raw
}

// dedupeTags removes duplicate tags preserving first-seen order.
func dedupeTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// extractOnce runs one completion call over the given text and validates
// the result.
func (e *Extractor) extractOnce(ctx context.Context, email *NormalizedEmail, signals PolicySignals, text string, hints []string, rc RecipientContext) (*RawAction, error) {
	req := llm.CompletionRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "system", Content: buildSystemPrompt(rc)},
			{Role: "user", Content: buildUserPrompt(email, signals, text, hints)},
		},
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
	}

	resp, err := e.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	obj, err := extractJSONObject(resp)
	if err != nil {
		return nil, err
	}

	raw, err := decodeRawAction([]byte(obj))
	if err != nil {
		return nil, err
	}

	return e.validateAndFix(raw, signals, text, rc), nil
}

// Extract runs extraction over each recipient segment in order and returns
// the first validated positive result. With no segments, or when no segment
// qualifies, one fallback call covers the whole body. Per-call failures are
// logged and treated as "no action" for that attempt, never propagated.
func (e *Extractor) Extract(ctx context.Context, email *NormalizedEmail, signals PolicySignals, segments []Segment, hints []string, rc RecipientContext) *RawAction {
	noAction := &RawAction{IsAction: false, PolicyDecision: string(DecisionNone)}

	for i, seg := range segments {
		if ctx.Err() != nil {
			return noAction
		}
		result, err := e.extractOnce(ctx, email, signals, seg.Text, hints, rc)
		if err != nil {
			e.log.Warn("segment extraction failed, trying next",
				logging.F("segment", i),
				logging.Err(err))
			continue
		}
		if result.IsAction {
			return result
		}
	}

	if ctx.Err() != nil {
		return noAction
	}

	result, err := e.extractOnce(ctx, email, signals, email.Body, hints, rc)
	if err != nil {
		e.log.Warn("full-body extraction failed", logging.Err(err))
		return noAction
	}
	return result
}

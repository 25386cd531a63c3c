package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doActionJSON(dueRaw string) string {
	due := "null"
	if dueRaw != "" {
		due = fmt.Sprintf("%q", dueRaw)
	}
	return fmt.Sprintf(`{"is_action":true,"policy_decision":"A","action":{"type":"DO","title":"로그 분석","assignee_candidates":["김철수 <kim.cs@techcorp.co.kr>"],"due_raw":%s,"priority":"High","tags":["로그","분석"],"rationale":"직접 요청"}}`, due)
}

func testEmail() *NormalizedEmail {
	return &NormalizedEmail{
		RecordID:   "r1",
		EmailID:    "e1",
		Subject:    "로그 분석 요청",
		From:       Address{Name: "박부장", Email: "park@techcorp.co.kr"},
		To:         []Address{{Name: "김철수", Email: "kim.cs@techcorp.co.kr"}},
		ReceivedAt: "2024-06-10T09:00:00+09:00",
		Body:       "김철수님, 금일까지 로그 분석 부탁드립니다.",
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"prose around object", "물론입니다. {\"a\":1} 입니다.", `{"a":1}`, false},
		{"code fence", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, false},
		{"last object wins", `{"draft":true} 최종: {"a":1}`, `{"a":1}`, false},
		{"nested braces", `{"a":{"b":{"c":3}}}`, `{"a":{"b":{"c":3}}}`, false},
		{"no object", "응답 불가", "", true},
		{"unterminated object ignored", `{"a":1} {"b":`, `{"a":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractParsesWrappedCompletion(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{"분석 결과입니다.\n```json\n" + doActionJSON("금일까지") + "\n```"},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	email := testEmail()
	signals := PolicySignals{Decision: DecisionA, ToContainsSelf: true, RequestDetected: true}

	got := e.Extract(context.Background(), email, signals, nil, nil, testRecipient)

	require.True(t, got.IsAction)
	require.NotNil(t, got.Action)
	assert.Equal(t, string(ActionDo), got.Action.Type)
	assert.Equal(t, "로그 분석", got.Action.Title)
	assert.Equal(t, "금일까지", got.Action.DueRaw)
	assert.Equal(t, 1, sc.calls)
}

func TestExtractNoneResult(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{`{"is_action":false,"policy_decision":"none","action":null}`},
	}
	e := NewExtractor(sc, "gpt-4", nil)

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionNone}, nil, nil, testRecipient)

	assert.False(t, got.IsAction)
	assert.Nil(t, got.Action)
}

func TestExtractCoercesUnknownType(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{`{"is_action":true,"policy_decision":"A","action":{"type":"URGENT","title":"뭔가","assignee_candidates":[],"due_raw":null,"priority":"High","tags":[]}}`},
	}
	e := NewExtractor(sc, "gpt-4", nil)

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionA}, nil, nil, testRecipient)

	// Unknown type collapses to NONE, which clears the action.
	assert.False(t, got.IsAction)
	assert.Nil(t, got.Action)
}

func TestExtractSelfSentBecomesFollowUp(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{doActionJSON("금일까지")},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	signals := PolicySignals{Decision: DecisionC, SelfSent: true, RequestDetected: true}

	got := e.Extract(context.Background(), testEmail(), signals, nil, nil, testRecipient)

	require.True(t, got.IsAction)
	require.NotNil(t, got.Action)
	assert.Equal(t, string(ActionFollowUp), got.Action.Type)
	// Follow-ups keep their deadline without an ownership check.
	assert.Equal(t, "금일까지", got.Action.DueRaw)
}

func TestExtractDropsForeignDeadline(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{doActionJSON("6/12까지")},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	email := testEmail()
	// The only deadline in scope belongs to someone else.
	email.Body = "@이영희님 6/12까지 보고서 완료 부탁드립니다. @김철수님은 참고 바랍니다."

	got := e.Extract(context.Background(), email, PolicySignals{Decision: DecisionA}, nil, nil, testRecipient)

	require.True(t, got.IsAction)
	require.NotNil(t, got.Action)
	assert.Empty(t, got.Action.DueRaw)
}

func TestExtractTruncatesTitle(t *testing.T) {
	longTitle := ""
	for i := 0; i < 80; i++ {
		longTitle += "가"
	}
	reply := fmt.Sprintf(`{"is_action":true,"policy_decision":"A","action":{"type":"DO","title":%q,"assignee_candidates":[],"due_raw":null,"priority":"Medium","tags":["a","a","b"]}}`, longTitle)
	sc := &scriptedCompleter{replies: []string{reply}}
	e := NewExtractor(sc, "gpt-4", nil)

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionA}, nil, nil, testRecipient)

	require.NotNil(t, got.Action)
	assert.Len(t, []rune(got.Action.Title), maxTitleRunes)
	assert.Equal(t, []string{"a", "b"}, got.Action.Tags)
}

func TestExtractSegmentOrderFirstPositiveWins(t *testing.T) {
	sc := &scriptedCompleter{
		replies: []string{
			`{"is_action":false,"policy_decision":"none","action":null}`,
			doActionJSON(""),
		},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	segments := []Segment{
		{Start: 0, End: 10, Text: "첫 번째 구간"},
		{Start: 10, End: 20, Text: "두 번째 구간"},
	}

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionA}, segments, nil, testRecipient)

	require.True(t, got.IsAction)
	assert.Equal(t, 2, sc.calls)
}

func TestExtractSegmentFailureFallsBack(t *testing.T) {
	sc := &scriptedCompleter{
		errs:    []error{fmt.Errorf("rate limit exceeded: HTTP 429")},
		replies: []string{"", doActionJSON("")},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	segments := []Segment{{Start: 0, End: 10, Text: "구간"}}

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionA}, segments, nil, testRecipient)

	// Segment call failed, the full-body fallback succeeded.
	require.True(t, got.IsAction)
	assert.Equal(t, 2, sc.calls)
}

func TestExtractAllFailuresYieldNoAction(t *testing.T) {
	sc := &scriptedCompleter{
		errs: []error{fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	e := NewExtractor(sc, "gpt-4", nil)
	segments := []Segment{{Start: 0, End: 10, Text: "구간"}}

	got := e.Extract(context.Background(), testEmail(), PolicySignals{Decision: DecisionA}, segments, nil, testRecipient)

	assert.False(t, got.IsAction)
	assert.Nil(t, got.Action)
}

func TestExtractCancelledContext(t *testing.T) {
	sc := &scriptedCompleter{}
	e := NewExtractor(sc, "gpt-4", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := e.Extract(ctx, testEmail(), PolicySignals{}, []Segment{{Text: "구간"}}, nil, testRecipient)

	assert.False(t, got.IsAction)
	assert.Zero(t, sc.calls)
}

func TestBuildUserPromptIncludesHintsAndSignals(t *testing.T) {
	email := testEmail()
	signals := PolicySignals{Decision: DecisionA, ToContainsSelf: true, RequestDetected: true}
	prompt := buildUserPrompt(email, signals, email.Body, []string{"금일까지"})

	assert.Contains(t, prompt, email.Subject)
	assert.Contains(t, prompt, "금일까지")
	assert.Contains(t, prompt, "정책 결정: A")
	assert.Contains(t, prompt, "is_action")
}

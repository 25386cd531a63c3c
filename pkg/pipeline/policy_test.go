package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzePolicy(t *testing.T) {
	rc := testRecipient

	tests := []struct {
		name string
		raw  RawEmail
		want PolicyDecision
	}{
		{
			name: "direct request to self",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{rc.Email},
				EmailBody:   "로그 분석 확인 부탁드립니다.",
			},
			want: DecisionA,
		},
		{
			name: "to self with matching mention",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{rc.Email},
				EmailBody:   "@김철수 로그 분석 확인 부탁드립니다.",
			},
			want: DecisionA,
		},
		{
			name: "to self but request aimed at someone else",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{rc.Email},
				EmailBody:   "@이영희 로그 분석 확인 부탁드립니다.",
			},
			want: DecisionNone,
		},
		{
			name: "cc only without callout",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{"lee@techcorp.co.kr"},
				CcAddresses: []string{rc.Email},
				EmailBody:   "이영희님 검토 부탁드립니다.",
			},
			want: DecisionB,
		},
		{
			name: "cc only upgraded by explicit callout",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{"lee@techcorp.co.kr"},
				CcAddresses: []string{rc.Email},
				EmailBody:   "@김철수 이 건도 같이 확인 부탁드립니다.",
			},
			want: DecisionA,
		},
		{
			name: "self sent request",
			raw: RawEmail{
				FromAddress: rc.Email,
				ToAddresses: []string{"lee@techcorp.co.kr"},
				EmailBody:   "이영희님, 보고서 검토 요청드립니다.",
			},
			want: DecisionC,
		},
		{
			name: "team directed with self on to",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{rc.Email, "lee@techcorp.co.kr"},
				EmailBody:   "@이영희님과 데이터팀 전원은 월말 결산 준비 부탁드립니다.",
			},
			want: DecisionD,
		},
		{
			name: "no request keyword",
			raw: RawEmail{
				FromAddress: "boss@techcorp.co.kr",
				ToAddresses: []string{rc.Email},
				EmailBody:   "지난 주말 잘 보내셨나요.",
			},
			want: DecisionNone,
		},
		{
			name: "unrelated email",
			raw: RawEmail{
				FromAddress: "news@letter.kr",
				ToAddresses: []string{"everyone@techcorp.co.kr"},
				EmailBody:   "이번 주 소식지입니다. 확인 부탁드립니다.",
			},
			want: DecisionNone,
		},
		{
			name: "empty everything",
			raw:  RawEmail{},
			want: DecisionNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzePolicy(&tt.raw, rc)
			assert.Equal(t, tt.want, got.Decision)
		})
	}
}

func TestAnalyzePolicySignals(t *testing.T) {
	rc := testRecipient
	raw := RawEmail{
		FromAddress: rc.Email,
		ToAddresses: []string{"lee@techcorp.co.kr"},
		CcAddresses: []string{rc.Email},
		EmailBody:   "@이영희(기획팀) 자료 검토 부탁드립니다.",
	}

	got := AnalyzePolicy(&raw, rc)

	assert.True(t, got.SelfSent)
	assert.False(t, got.ToContainsSelf)
	assert.True(t, got.CcContainsSelf)
	assert.True(t, got.RequestDetected)
	assert.Equal(t, []string{"@이영희(기획팀)"}, got.Mentions)
}

func TestDetectRequest(t *testing.T) {
	assert.True(t, detectRequest("빠른 회신 부탁드립니다"))
	assert.True(t, detectRequest("긴급 대응 요망"))
	assert.False(t, detectRequest("좋은 하루 되세요"))
	assert.False(t, detectRequest(""))
}

package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain passthrough", "그냥 텍스트", "그냥 텍스트"},
		{"breaks to newlines", "첫 줄<br>둘째 줄<br/>셋째 줄", "첫 줄\n둘째 줄\n셋째 줄"},
		{"list items to bullets", "<ul><li>하나</li><li>둘</li></ul>", "하나\n- 둘\n-"},
		{"script stripped", "본문<script>alert('x')</script>끝", "본문 끝"},
		{"style stripped", "<style>p{color:red}</style>본문", "본문"},
		{"entities unescaped", "A &amp; B &lt;C&gt;", "A & B <C>"},
		{"nbsp collapsed", "단어  사이", "단어 사이"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlToText(tt.in))
		})
	}
}

func TestMergeBodiesDedupesLines(t *testing.T) {
	plain := "안녕하세요\n공지 내용입니다"
	htmlText := "안녕하세요\n공지 내용입니다\n추가 내용"

	got := mergeBodies(plain, htmlText)
	assert.Equal(t, "안녕하세요\n공지 내용입니다\n추가 내용", got)
}

func TestZipAddresses(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		emails []string
		want   []Address
	}{
		{
			name:   "aligned",
			names:  []string{"김철수", "이영희"},
			emails: []string{"kim@x.kr", "lee@x.kr"},
			want:   []Address{{Name: "김철수", Email: "kim@x.kr"}, {Name: "이영희", Email: "lee@x.kr"}},
		},
		{
			name:   "more emails than names",
			names:  []string{"김철수"},
			emails: []string{"kim@x.kr", "lee@x.kr"},
			want:   []Address{{Name: "김철수", Email: "kim@x.kr"}, {Email: "lee@x.kr"}},
		},
		{
			name:   "more names than emails",
			names:  []string{"김철수", "이영희"},
			emails: []string{"kim@x.kr"},
			want:   []Address{{Name: "김철수", Email: "kim@x.kr"}, {Name: "이영희"}},
		},
		{
			name:   "both empty dropped",
			names:  []string{"", "이영희"},
			emails: []string{"", ""},
			want:   []Address{{Name: "이영희"}},
		},
		{
			name:   "nil inputs",
			names:  nil,
			emails: nil,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, zipAddresses(tt.names, tt.emails))
		})
	}
}

func TestNormalizeSignatureStripping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "dash separator",
			body: "본문입니다.\n\n--\n김철수 | 데이터팀",
			want: "본문입니다.",
		},
		{
			name: "deurim closing",
			body: "본문입니다.\n\n김철수 드림",
			want: "본문입니다.",
		},
		{
			name: "no signature untouched",
			body: "본문입니다. 확인 부탁드립니다",
			want: "본문입니다. 확인 부탁드립니다",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &RawEmail{Subject: "s", EmailBody: tt.body, FromAddress: "a@b.kr"}
			got := Normalize(raw)
			assert.Equal(t, tt.want, got.Body)
		})
	}
}

func TestNormalizeMergesHTMLBody(t *testing.T) {
	raw := &RawEmail{
		RecordID:    "r1",
		EmailID:     "e1",
		Subject:     "공지",
		FromName:    "김철수",
		FromAddress: "kim@x.kr",
		ToNames:     []string{"이영희"},
		ToAddresses: []string{"lee@x.kr"},
		Date:        "2024-06-10T09:00:00+09:00",
		EmailBody:   "안녕하세요",
		HTMLBody:    "<p>안녕하세요</p><p>확인 부탁드립니다</p>",
		ThreadID:    "t1",
		Priority:    "high",
	}

	got := Normalize(raw)

	assert.Equal(t, "r1", got.RecordID)
	assert.Equal(t, "e1", got.EmailID)
	assert.Equal(t, Address{Name: "김철수", Email: "kim@x.kr"}, got.From)
	require.Len(t, got.To, 1)
	assert.Equal(t, "t1", got.ConversationID)
	assert.Equal(t, "high", got.PriorityHint)

	// The HTML-only line survives; the duplicated line appears once.
	assert.Contains(t, got.Body, "확인 부탁드립니다")
	assert.Equal(t, 1, strings.Count(got.Body, "안녕하세요"))
}

func TestRawEmailValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawEmail
		wantErr string
	}{
		{
			name: "complete",
			raw:  RawEmail{Subject: "s", EmailBody: "b", FromAddress: "a@b.kr"},
		},
		{
			name:    "missing subject",
			raw:     RawEmail{EmailBody: "b", FromAddress: "a@b.kr"},
			wantErr: "subject",
		},
		{
			name:    "missing everything",
			raw:     RawEmail{},
			wantErr: "subject, email_body, from_address",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.raw.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "missing required fields")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddressDisplay(t *testing.T) {
	assert.Equal(t, "김철수 <kim@x.kr>", Address{Name: "김철수", Email: "kim@x.kr"}.Display())
	assert.Equal(t, "kim@x.kr", Address{Email: "kim@x.kr"}.Display())
	assert.Equal(t, "김철수", Address{Name: "김철수"}.Display())
}

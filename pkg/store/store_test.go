package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

func testEmail() *pipeline.NormalizedEmail {
	return &pipeline.NormalizedEmail{
		RecordID:       "rec-1",
		EmailID:        "msg-01",
		Subject:        "주간 보고",
		ReceivedAt:     "2024-06-10T09:00:00+09:00",
		ConversationID: "conv-01",
	}
}

func testAction() *pipeline.ResolvedAction {
	return &pipeline.ResolvedAction{
		Title:      "로그 분석",
		Assignee:   "김철수 <kim.cs@techcorp.co.kr>",
		Due:        "2024-06-10T09:00:00Z",
		Priority:   pipeline.PriorityHigh,
		Tags:       []string{"분석", "로그"},
		Type:       pipeline.ActionDo,
		Confidence: 0.85,
		Notes:      "원본 기한: 금일까지 (KST 2024-06-10 18:00)",
	}
}

func TestActionRowArgs(t *testing.T) {
	rowKey := pipeline.DocumentKey("msg-01", 0)
	args := actionRowArgs("techcorp", rowKey, testEmail(), testAction())

	// One value per upsert column.
	require.Len(t, args, 14)

	assert.Equal(t, "techcorp", args[0])
	assert.Equal(t, "msg-01_0", args[1])
	assert.Equal(t, "주간 보고", args[2])
	assert.Equal(t, "로그 분석", args[3])
	assert.Equal(t, "김철수 <kim.cs@techcorp.co.kr>", args[4])
	assert.Equal(t, "2024-06-10T09:00:00Z", args[5])
	assert.Equal(t, pipeline.PriorityHigh, args[6])
	assert.Equal(t, "DO", args[7])
	assert.Equal(t, "분석;로그", args[8])
	assert.Equal(t, 0.85, args[9])
	assert.Equal(t, "2024-06-10T09:00:00+09:00", args[11])
	assert.Equal(t, "conv-01", args[12])
}

func TestActionRowArgsEmptyTags(t *testing.T) {
	action := testAction()
	action.Tags = nil

	args := actionRowArgs("techcorp", "msg-01_0", testEmail(), action)
	assert.Equal(t, "", args[8])
}

func TestRowKeySanitizedFromEmailID(t *testing.T) {
	// Provider message ids carry characters outside the key alphabet.
	email := testEmail()
	email.EmailID = "AAMkAGI2/abc+def="

	rowKey := pipeline.DocumentKey(email.EmailID, 0)
	args := actionRowArgs("techcorp", rowKey, email, testAction())

	assert.Equal(t, "AAMkAGI2_abc_def=_0", args[1])
}

func TestUpsertActionNilActionIsNoop(t *testing.T) {
	// A nil action never reaches the pool, so an empty repository is safe.
	r := &ActionRepository{}
	assert.NoError(t, r.UpsertAction(context.Background(), "techcorp", testEmail(), nil))
}

func TestSchemaShape(t *testing.T) {
	// The done flag belongs to the retrieval API and must default false.
	assert.Regexp(t, regexp.MustCompile(`done\s+BOOLEAN NOT NULL DEFAULT FALSE`), schemaSQL)
	assert.Contains(t, schemaSQL, "PRIMARY KEY (partition_key, row_key)")
}

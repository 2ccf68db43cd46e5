package summarizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepthinks/internal/memory"
)

// fakeModel is a deterministic chat model: it always answers with reply and
// records the last formatted input it received.
type fakeModel struct {
	reply     string
	err       error
	lastInput []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported by fake")
}

const goodReply = `{
  "interactions": [
    {"timestamp": "2026-01-01T00:00:00Z", "summary": "User asked about Go slices.", "verbatim_context": "slices grow by doubling", "priority_score": "7"}
  ],
  "important_details": ["user's name is Dana", "prefers concise answers"]
}`

func newTestSummarizer(t *testing.T, fm *fakeModel) *Summarizer {
	t.Helper()
	s, err := New(context.Background(), &Config{Model: fm, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return s
}

func evictedFixture() []memory.Interaction {
	return []memory.Interaction{
		{
			Prompt:     "how do Go slices grow?",
			Response:   "they roughly double their capacity",
			TokenCount: 12,
			Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(context.Background(), &Config{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrModelRequired)

	_, err = New(context.Background(), &Config{Model: &fakeModel{}})
	assert.Error(t, err)
}

func TestMergeParsesStructuredOutput(t *testing.T) {
	fm := &fakeModel{reply: goodReply}
	s := newTestSummarizer(t, fm)

	got, err := s.Merge(context.Background(), nil, evictedFixture())
	require.NoError(t, err)
	require.Len(t, got.Interactions, 1)
	assert.Equal(t, "User asked about Go slices.", got.Interactions[0].Summary.String())
	// priority_score arrives as a quoted string and still decodes.
	assert.Equal(t, 7.0, got.Interactions[0].PriorityScore.Float64())
	assert.Contains(t, got.ImportantDetails, "user's name is Dana")
}

func TestMergeAcceptsFencedJSON(t *testing.T) {
	fm := &fakeModel{reply: "```json\n" + goodReply + "\n```"}
	s := newTestSummarizer(t, fm)

	got, err := s.Merge(context.Background(), nil, evictedFixture())
	require.NoError(t, err)
	assert.Len(t, got.ImportantDetails, 2)
}

func TestMergeRendersPreviousSummaryAndLog(t *testing.T) {
	fm := &fakeModel{reply: goodReply}
	s := newTestSummarizer(t, fm)

	existing := &memory.LongTermMemory{
		Interactions:     []memory.MemoryEntry{{Summary: "earlier chat"}},
		ImportantDetails: []string{"lives in Lisbon"},
	}
	_, err := s.Merge(context.Background(), existing, evictedFixture())
	require.NoError(t, err)

	require.NotEmpty(t, fm.lastInput)
	user := fm.lastInput[len(fm.lastInput)-1]
	assert.Equal(t, schema.User, user.Role)
	assert.Contains(t, user.Content, "Previous Summary:")
	assert.Contains(t, user.Content, "lives in Lisbon")
	assert.Contains(t, user.Content, "USER: how do Go slices grow?")
	assert.Contains(t, user.Content, "ASSISTANT: they roughly double their capacity")
}

func TestMergeMalformedOutput(t *testing.T) {
	for _, reply := range []string{
		"I could not summarize that, sorry.",
		`{"interactions": "definitely-not-an-array"}`,
		`{}`,
	} {
		fm := &fakeModel{reply: reply}
		s := newTestSummarizer(t, fm)
		_, err := s.Merge(context.Background(), nil, evictedFixture())
		assert.ErrorIs(t, err, ErrMalformedSummary, "reply=%q", reply)
	}
}

func TestMergeModelFailure(t *testing.T) {
	fm := &fakeModel{err: errors.New("upstream 500")}
	s := newTestSummarizer(t, fm)

	existing := &memory.LongTermMemory{ImportantDetails: []string{"keep me"}}
	got, err := s.Merge(context.Background(), existing, evictedFixture())
	assert.ErrorIs(t, err, ErrSummarization)
	assert.Nil(t, got)
	// The prior memory object is untouched.
	assert.Equal(t, []string{"keep me"}, existing.ImportantDetails)
}

func TestMergeNothingEvicted(t *testing.T) {
	fm := &fakeModel{reply: goodReply}
	s := newTestSummarizer(t, fm)

	existing := &memory.LongTermMemory{ImportantDetails: []string{"a"}}
	got, err := s.Merge(context.Background(), existing, nil)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	assert.Nil(t, fm.lastInput, "model must not be called when nothing was evicted")
}

func TestMergeIdempotent(t *testing.T) {
	fm := &fakeModel{reply: goodReply}
	s := newTestSummarizer(t, fm)

	existing := &memory.LongTermMemory{ImportantDetails: []string{"seed"}}
	a, err := s.Merge(context.Background(), existing, evictedFixture())
	require.NoError(t, err)
	b, err := s.Merge(context.Background(), existing, evictedFixture())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

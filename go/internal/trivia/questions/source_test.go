package questions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizwire/quizwire/go/internal/trivia"
)

func TestPoolDropsInvalidRecords(t *testing.T) {
	pool := NewPool([]trivia.QuestionRecord{
		{ID: "ok", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"},
		{ID: "dup", Prompt: "pick", Options: []string{"a", "a", "b"}, CorrectOption: "b"},
		{ID: "one-option", Prompt: "pick", Options: []string{"a", "a"}, CorrectOption: "a"},
		{ID: "correct-missing", Prompt: "pick", Options: []string{"a", "b"}, CorrectOption: "c"},
		{ID: "no-prompt", Options: []string{"a", "b"}, CorrectOption: "a"},
	})

	assert.Equal(t, 2, pool.Len())

	records, err := pool.Draw(2)
	require.NoError(t, err)
	assert.Equal(t, "ok", records[0].ID)
	// de-duplicated, order preserved
	assert.Equal(t, []string{"a", "b"}, records[1].Options)
}

func TestDrawInsufficient(t *testing.T) {
	pool := NewPool([]trivia.QuestionRecord{
		{ID: "only", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"},
	})

	_, err := pool.Draw(3)
	require.ErrorIs(t, err, ErrNotEnoughQuestions)
}

func TestDrawDoesNotConsume(t *testing.T) {
	pool := Fallback()
	first, err := pool.Draw(2)
	require.NoError(t, err)
	second, err := pool.Draw(2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFallbackDeckIsUsable(t *testing.T) {
	pool := Fallback()
	require.GreaterOrEqual(t, pool.Len(), 2)

	records, err := pool.Draw(pool.Len())
	require.NoError(t, err)
	for _, r := range records {
		assert.GreaterOrEqual(t, len(r.Options), 2, "question %s", r.ID)
		assert.Contains(t, r.Options, r.CorrectOption, "question %s", r.ID)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.yaml")
	deck := `questions:
  - id: capitals-1
    prompt: What is the capital of Japan?
    options: [Tokyo, Kyoto, Osaka]
    correct: Tokyo
  - prompt: What is 3*3?
    options: ["6", "9"]
    correct: "9"
`
	require.NoError(t, os.WriteFile(path, []byte(deck), 0o644))

	pool, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())

	records, err := pool.Draw(2)
	require.NoError(t, err)
	assert.Equal(t, "capitals-1", records[0].ID)
	assert.Equal(t, "q2", records[1].ID, "missing ids are filled in by position")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

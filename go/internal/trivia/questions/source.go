// Package questions supplies the ordered pool of question records a session
// draws from: a YAML deck on disk, or the built-in fallback deck when no
// external deck can be loaded at all.
package questions

import (
	"errors"
	"fmt"

	"github.com/quizwire/quizwire/go/internal/trivia"
)

// ErrNotEnoughQuestions is returned at session creation when the source
// yields fewer valid records than the session needs. Insufficient content is
// a configuration error surfaced up front, never silently padded.
var ErrNotEnoughQuestions = errors.New("not enough valid questions")

// Source supplies an ordered pool of question records.
type Source interface {
	// Draw returns the first count records from the pool.
	Draw(count int) ([]trivia.QuestionRecord, error)
}

// Pool is a Source over an in-memory slice, used by the YAML loader and the
// fallback deck.
type Pool struct {
	records []trivia.QuestionRecord
}

// NewPool validates records and keeps only the usable ones: non-empty prompt,
// at least two de-duplicated options, and a correct option that is one of
// them.
func NewPool(records []trivia.QuestionRecord) *Pool {
	valid := make([]trivia.QuestionRecord, 0, len(records))
	for _, r := range records {
		if cleaned, ok := sanitize(r); ok {
			valid = append(valid, cleaned)
		}
	}
	return &Pool{records: valid}
}

// Len reports how many valid records the pool holds.
func (p *Pool) Len() int {
	return len(p.records)
}

// Draw returns the first count records in pool order.
func (p *Pool) Draw(count int) ([]trivia.QuestionRecord, error) {
	if count <= 0 {
		return nil, fmt.Errorf("draw count must be positive, got %d", count)
	}
	if len(p.records) < count {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNotEnoughQuestions, count, len(p.records))
	}
	out := make([]trivia.QuestionRecord, count)
	copy(out, p.records[:count])
	return out, nil
}

// sanitize de-duplicates options preserving order and checks the record is
// answerable.
func sanitize(r trivia.QuestionRecord) (trivia.QuestionRecord, bool) {
	if r.Prompt == "" || r.CorrectOption == "" {
		return r, false
	}
	seen := make(map[string]bool, len(r.Options))
	options := make([]string, 0, len(r.Options))
	for _, opt := range r.Options {
		if opt == "" || seen[opt] {
			continue
		}
		seen[opt] = true
		options = append(options, opt)
	}
	if len(options) < 2 || !seen[r.CorrectOption] {
		return r, false
	}
	r.Options = options
	return r, true
}

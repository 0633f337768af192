package questions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quizwire/quizwire/go/internal/trivia"
)

// deckFile is the on-disk deck format.
type deckFile struct {
	Questions []deckQuestion `yaml:"questions"`
}

type deckQuestion struct {
	ID      string   `yaml:"id"`
	Prompt  string   `yaml:"prompt"`
	Options []string `yaml:"options"`
	Correct string   `yaml:"correct"`
}

// LoadFile reads a YAML deck from disk. Records that fail validation are
// dropped; a file that parses but yields too few records surfaces as
// ErrNotEnoughQuestions later, at Draw time.
func LoadFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck file: %w", err)
	}

	var deck deckFile
	if err := yaml.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("parse deck file: %w", err)
	}

	records := make([]trivia.QuestionRecord, 0, len(deck.Questions))
	for i, q := range deck.Questions {
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		records = append(records, trivia.QuestionRecord{
			ID:            id,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: q.Correct,
		})
	}
	return NewPool(records), nil
}

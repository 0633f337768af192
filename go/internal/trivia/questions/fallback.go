package questions

import "github.com/quizwire/quizwire/go/internal/trivia"

// Fallback returns the built-in deck used when no external deck loads at
// all. It exists so a host can always open a session; it never pads a deck
// that loaded but came up short.
func Fallback() *Pool {
	return NewPool([]trivia.QuestionRecord{
		{
			ID:            "fallback-1",
			Prompt:        "What is the capital of France?",
			Options:       []string{"Berlin", "Paris", "Rome", "Madrid"},
			CorrectOption: "Paris",
		},
		{
			ID:            "fallback-2",
			Prompt:        "Which planet is known as the Red Planet?",
			Options:       []string{"Venus", "Jupiter", "Mars", "Saturn"},
			CorrectOption: "Mars",
		},
		{
			ID:            "fallback-3",
			Prompt:        "How many continents are there?",
			Options:       []string{"five", "six", "seven", "eight"},
			CorrectOption: "seven",
		},
		{
			ID:            "fallback-4",
			Prompt:        "What is the largest ocean on Earth?",
			Options:       []string{"Atlantic", "Indian", "Arctic", "Pacific"},
			CorrectOption: "Pacific",
		},
		{
			ID:            "fallback-5",
			Prompt:        "Which element has the chemical symbol O?",
			Options:       []string{"Gold", "Oxygen", "Osmium", "Silver"},
			CorrectOption: "Oxygen",
		},
		{
			ID:            "fallback-6",
			Prompt:        "In which year did the first moon landing happen?",
			Options:       []string{"1965", "1969", "1971", "1975"},
			CorrectOption: "1969",
		},
		{
			ID:            "fallback-7",
			Prompt:        "What is the longest river in the world?",
			Options:       []string{"Amazon", "Nile", "Yangtze", "Mississippi"},
			CorrectOption: "Nile",
		},
		{
			ID:            "fallback-8",
			Prompt:        "How many sides does a hexagon have?",
			Options:       []string{"five", "six", "seven", "eight"},
			CorrectOption: "six",
		},
		{
			ID:            "fallback-9",
			Prompt:        "Which language has the most native speakers?",
			Options:       []string{"English", "Hindi", "Spanish", "Mandarin"},
			CorrectOption: "Mandarin",
		},
		{
			ID:            "fallback-10",
			Prompt:        "What is the smallest prime number?",
			Options:       []string{"0", "1", "2", "3"},
			CorrectOption: "2",
		},
	})
}

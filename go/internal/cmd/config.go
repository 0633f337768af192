package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/quizwire/quizwire/go/internal/trivia"
)

// Config is the server's YAML configuration. Connection endpoints come from
// the environment; game defaults and the question deck live here.
type Config struct {
	Game struct {
		QuestionDurationSeconds int `yaml:"question_duration_seconds"`
		TotalQuestions          int `yaml:"total_questions"`
		PointsForCorrect        int `yaml:"points_for_correct"`
		SpeedBonusMax           int `yaml:"speed_bonus_max"`
		MaxPlayers              int `yaml:"max_players"`
	} `yaml:"game"`
	Questions struct {
		DeckPath string `yaml:"deck_path"`
	} `yaml:"questions"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// gameSettings overlays the config onto the engine defaults. Zero values in
// the file keep the default.
func (c *Config) gameSettings() trivia.Settings {
	s := trivia.DefaultSettings()
	if c.Game.QuestionDurationSeconds > 0 {
		s.QuestionDurationSec = c.Game.QuestionDurationSeconds
	}
	if c.Game.TotalQuestions > 0 {
		s.TotalQuestions = c.Game.TotalQuestions
	}
	if c.Game.PointsForCorrect > 0 {
		s.PointsForCorrect = c.Game.PointsForCorrect
	}
	if c.Game.SpeedBonusMax > 0 {
		s.SpeedBonusMax = c.Game.SpeedBonusMax
	}
	if c.Game.MaxPlayers > 0 {
		s.MaxPlayers = c.Game.MaxPlayers
	}
	return s
}

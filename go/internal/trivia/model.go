package trivia

import (
	"time"
)

// Phase defines the session-wide step in the game lifecycle.
type Phase string

const (
	PhaseLobby    Phase = "LOBBY"
	PhaseStarting Phase = "STARTING"
	PhaseQuestion Phase = "QUESTION"
	PhaseRevealed Phase = "REVEALED"
	PhaseGameOver Phase = "GAME_OVER"
)

// phaseOrder maps phases to their position in the lifecycle. Question and
// Revealed alternate, so this is membership plus rough ordering, not a strict
// transition table.
var phaseOrder = map[Phase]int{
	PhaseLobby:    0,
	PhaseStarting: 1,
	PhaseQuestion: 2,
	PhaseRevealed: 3,
	PhaseGameOver: 4,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Millis is a wall-clock timestamp in milliseconds since the Unix epoch.
// The replicated store carries timestamps in this form.
type Millis int64

// NewMillis converts a time.Time to store timestamp form.
func NewMillis(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts back to time.Time. Zero Millis means "unset".
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// IsZero reports whether the timestamp is unset.
func (m Millis) IsZero() bool {
	return m == 0
}

// Settings holds the host-chosen configuration for a session. Written once at
// session creation and read-only afterwards.
type Settings struct {
	QuestionDurationSec int `json:"questionDurationSeconds"`
	TotalQuestions      int `json:"totalQuestions"`
	PointsForCorrect    int `json:"pointsForCorrect"`
	SpeedBonusMax       int `json:"speedBonusMax"`
	MaxPlayers          int `json:"maxPlayers"`
}

// DefaultSettings returns the settings applied when the host does not
// override anything.
func DefaultSettings() Settings {
	return Settings{
		QuestionDurationSec: 20,
		TotalQuestions:      10,
		PointsForCorrect:    100,
		SpeedBonusMax:       50,
		MaxPlayers:          16,
	}
}

// Session is the session-level node owned exclusively by the host. Players
// only ever read it.
type Session struct {
	Code                 string   `json:"code"`
	Phase                Phase    `json:"phase"`
	CreatedAt            Millis   `json:"createdAt"`
	EndedAt              Millis   `json:"endedAt,omitempty"`
	Settings             Settings `json:"settings"`
	CurrentQuestionIndex int      `json:"currentQuestionIndex"`
}

// Player is the per-player node. Answer and presence fields are written by the
// owning player, score fields by the host. The two writer domains never touch
// the same field.
type Player struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Score             int     `json:"score"`
	CurrentAnswer     *string `json:"currentAnswer,omitempty"`
	AnswerSubmittedAt Millis  `json:"answerSubmittedAt,omitempty"`
	Connected         bool    `json:"connected"`
	JoinedAt          Millis  `json:"joinedAt"`
	LastSeen          Millis  `json:"lastSeen"`
}

// HasAnswered reports whether the player has a submitted answer for the
// current round.
func (p Player) HasAnswered() bool {
	return p.CurrentAnswer != nil
}

// QuestionRecord is a raw question as supplied by a question source, before it
// is turned into a live round.
type QuestionRecord struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// QuestionRound is the live question node. Created and destroyed once per
// question by the host; read-only to players. CorrectOption is present from
// the start but clients must not act on it until Revealed is true; the host
// restates it in the reveal write so stale clients cannot race their own
// answer check.
type QuestionRound struct {
	QuestionID    string   `json:"questionId"`
	Prompt        string   `json:"promptText"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
	StartedAt     Millis   `json:"startedAt"`
	Revealed      bool     `json:"revealed"`
	Ordinal       int      `json:"ordinal"`
}

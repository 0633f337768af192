package trivia

import "errors"

// Error taxonomy shared by host and player roles. Store failures wrap
// ErrStoreUnavailable so callers can distinguish "retry this" from
// "change your input".
var (
	// ErrStoreUnavailable wraps network or store failures. Heartbeats and
	// presence writes retry transparently; join/create/submit surface it.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrInvalidInput covers malformed names and codes, rejected before any
	// store round-trip.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWrongPhase is returned when an action lands in the wrong phase, e.g.
	// an answer arriving after reveal. Expected under normal races and never
	// user-facing.
	ErrWrongPhase = errors.New("action not valid in current phase")

	// ErrAlreadyAnswered is returned on a duplicate submission for the same
	// question ordinal.
	ErrAlreadyAnswered = errors.New("answer already submitted for this question")

	// Join failures. All user-visible and non-retryable without changing input.
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionFull     = errors.New("session is full")
	ErrNameTaken       = errors.New("player name already taken")

	// ErrNoPlayers is returned when the host tries to start an empty lobby.
	ErrNoPlayers = errors.New("no connected players")
)

package trivia

import "fmt"

// Store path layout. Everything a session touches lives under sessions/{code};
// cross-path ordering is only guaranteed within a single merge, so writes that
// must be observed together go through one merge on the session root.

// SessionPath is the root node for a session.
func SessionPath(code string) string {
	return "sessions/" + code
}

// PhasePath is the session phase leaf.
func PhasePath(code string) string {
	return SessionPath(code) + "/phase"
}

// PlayersPath is the container of all player nodes in a session.
func PlayersPath(code string) string {
	return SessionPath(code) + "/players"
}

// PlayerPath is the node owned by a single player.
func PlayerPath(code, playerID string) string {
	return fmt.Sprintf("%s/players/%s", SessionPath(code), playerID)
}

// QuestionPath is the current question node.
func QuestionPath(code string) string {
	return SessionPath(code) + "/currentQuestion"
}

package player

import "github.com/quizwire/quizwire/go/internal/trivia"

// View is what the rendering layer draws from. It is derived entirely from
// replicated state plus the local submission guard, so a late subscriber and
// a live one converge on the same picture.
type View struct {
	Phase trivia.Phase

	// Round is a copy of the current question node, nil outside a round.
	Round *trivia.QuestionRound

	// Answerable is true only while the round is open for this player:
	// question phase, not revealed, not already answered.
	Answerable bool

	// ShowResult is true once the round is revealed; the correct option in
	// Round is then authoritative.
	ShowResult bool

	// Selected is the player's own submitted answer for this round, nil if
	// none.
	Selected *string
}

// View returns a snapshot of the player's current view.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{Phase: c.phase}
	if c.round != nil {
		round := *c.round
		v.Round = &round
		v.ShowResult = round.Revealed
		v.Answerable = c.phase == trivia.PhaseQuestion &&
			!round.Revealed &&
			c.answeredOrdinal != round.Ordinal
		if c.answeredOrdinal == round.Ordinal {
			v.Selected = c.selected
		}
	}
	return v
}

// Package archive persists finished sessions to Postgres. The archive sits
// outside the game loop: a failed insert is logged by the caller and never
// blocks the GameOver transition.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/trivia/host"
	"github.com/quizwire/quizwire/go/internal/trivia/scoring"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_results (
    id            UUID PRIMARY KEY,
    session_code  TEXT NOT NULL,
    question_count INTEGER NOT NULL,
    player_count  INTEGER NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    standings     JSONB NOT NULL,
    archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS session_results_code_idx ON session_results (session_code);
CREATE INDEX IF NOT EXISTS session_results_ended_at_idx ON session_results (ended_at DESC);
`

// Repository stores finished session results.
type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, logger: log.Logger}
}

// EnsureSchema creates the results table if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// SaveResult inserts one finished session. Implements host.ResultSink.
func (r *Repository) SaveResult(ctx context.Context, result host.Result) error {
	standings, err := json.Marshal(result.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}

	const q = `
		INSERT INTO session_results
			(id, session_code, question_count, player_count, created_at, ended_at, standings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, q,
		uuid.New(),
		result.Code,
		result.Settings.TotalQuestions,
		len(result.Standings),
		result.CreatedAt,
		result.EndedAt,
		standings,
	)
	if err != nil {
		return fmt.Errorf("insert session result: %w", err)
	}

	r.logger.Info().
		Str("session", result.Code).
		Int("players", len(result.Standings)).
		Msg("session result archived")
	return nil
}

// ArchivedResult is one row of the results table.
type ArchivedResult struct {
	ID        uuid.UUID
	Code      string
	CreatedAt time.Time
	EndedAt   time.Time
	Standings []scoring.Standing
}

// RecentResults returns the most recently finished sessions, newest first.
func (r *Repository) RecentResults(ctx context.Context, limit int) ([]ArchivedResult, error) {
	const q = `
		SELECT id, session_code, created_at, ended_at, standings
		FROM session_results
		ORDER BY ended_at DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []ArchivedResult
	for rows.Next() {
		var row ArchivedResult
		var standings []byte
		if err := rows.Scan(&row.ID, &row.Code, &row.CreatedAt, &row.EndedAt, &standings); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		if err := json.Unmarshal(standings, &row.Standings); err != nil {
			return nil, fmt.Errorf("decode standings: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

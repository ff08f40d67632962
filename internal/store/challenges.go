package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Challenge struct {
	ID                 string
	Title              string
	Description        string
	ScoringDescription string
	InputHash          string
	InputSizeBytes     int
	IsActive           bool
	BestScore          *int
	BestAgentID        *string
}

const challengeSelectSQL = `SELECT id, title, description, scoring_description, input_hash,
	input_size_bytes, is_active, best_score, best_agent_id FROM challenges`

// UpsertChallenge loads or refreshes a challenge row from the catalog at
// boot. It never touches best_score/best_agent_id, which are mutated
// only by the scheduler after a successful evaluation.
func (s *Store) UpsertChallenge(ctx context.Context, id, title, description, scoringDescription, inputHash string, inputSizeBytes int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, title, description, scoring_description, input_hash, input_size_bytes, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			scoring_description = excluded.scoring_description,
			input_hash = excluded.input_hash,
			input_size_bytes = excluded.input_size_bytes,
			is_active = 1
	`, id, title, description, scoringDescription, inputHash, inputSizeBytes)
	if err != nil {
		return fmt.Errorf("upsert challenge %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx, challengeSelectSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) ListActiveChallenges(ctx context.Context) ([]*Challenge, error) {
	rows, err := s.db.QueryContext(ctx, challengeSelectSQL+" WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Challenge
	for rows.Next() {
		c, err := scanChallengeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateBest sets the challenge-wide best score/agent, called by the
// scheduler from inside the per-challenge rank-recompute lock.
func UpdateBest(ctx context.Context, tx *sql.Tx, challengeID string, bestScore int, bestAgentID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE challenges SET best_score = ?, best_agent_id = ? WHERE id = ?`,
		bestScore, bestAgentID, challengeID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChallenge(row *sql.Row) (*Challenge, error) {
	return scanChallengeRow(row)
}

func scanChallengeRows(rows *sql.Rows) (*Challenge, error) {
	return scanChallengeRow(rows)
}

func scanChallengeRow(row rowScanner) (*Challenge, error) {
	var c Challenge
	var isActive int
	var bestScore sql.NullInt64
	var bestAgentID sql.NullString
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.ScoringDescription, &c.InputHash,
		&c.InputSizeBytes, &isActive, &bestScore, &bestAgentID); err != nil {
		return nil, err
	}
	c.IsActive = isActive != 0
	if bestScore.Valid {
		v := int(bestScore.Int64)
		c.BestScore = &v
	}
	if bestAgentID.Valid {
		v := bestAgentID.String
		c.BestAgentID = &v
	}
	return &c, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AgentIDPattern is the closed character set an agent identifier must
// match.
var AgentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrAgentExists is returned by CreateAgent when id is already
// registered, surfaced by the HTTP layer as 409.
var ErrAgentExists = errors.New("agent already exists")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

type Agent struct {
	ID               string
	DisplayName      string
	IsAI             bool
	CreatedAt        time.Time
	LastSubmissionAt *time.Time
}

// CreateAgent explicitly registers a new agent. It fails with
// ErrAgentExists if id is already taken.
func (s *Store) CreateAgent(ctx context.Context, id, displayName string, isAI bool) (*Agent, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, display_name, is_ai) VALUES (?, ?, ?)`,
		id, displayName, boolToInt(isAI))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAgentExists
		}
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// GetOrCreateAgent implements upsert semantics inside an existing
// transaction: returns the existing row, or creates one with
// display_name = id, is_ai = true.
func GetOrCreateAgent(ctx context.Context, tx *sql.Tx, id string) (*Agent, error) {
	a, err := scanAgent(tx.QueryRowContext(ctx, agentSelectSQL+" WHERE id = ?", id))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup agent: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agents (id, display_name, is_ai) VALUES (?, ?, 1)`,
		id, id); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return scanAgent(tx.QueryRowContext(ctx, agentSelectSQL+" WHERE id = ?", id))
}

// UpdateLastSubmission stamps an agent's last_submission_at within tx.
func UpdateLastSubmission(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE agents SET last_submission_at = ? WHERE id = ?`, at, id)
	return err
}

const agentSelectSQL = `SELECT id, display_name, is_ai, created_at, last_submission_at FROM agents`

func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx, agentSelectSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAgent(row *sql.Row) (*Agent, error) {
	var a Agent
	var isAI int
	var lastSub sql.NullTime
	if err := row.Scan(&a.ID, &a.DisplayName, &isAI, &a.CreatedAt, &lastSub); err != nil {
		return nil, err
	}
	a.IsAI = isAI != 0
	if lastSub.Valid {
		t := lastSub.Time
		a.LastSubmissionAt = &t
	}
	return &a, nil
}

// AgentBestScores returns, per challenge, the agent's minimum score
// across their scored submissions for that challenge.
func (s *Store) AgentBestScores(ctx context.Context, agentID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT challenge_id, MIN(score) FROM submissions
		 WHERE agent_id = ? AND status = 'scored'
		 GROUP BY challenge_id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent best scores: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var challengeID string
		var best int
		if err := rows.Scan(&challengeID, &best); err != nil {
			return nil, err
		}
		out[challengeID] = best
	}
	return out, rows.Err()
}

// CountAgentSubmissions returns the agent's total submission count
// across all challenges and statuses.
func (s *Store) CountAgentSubmissions(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE agent_id = ?`, agentID).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects a sqlite UNIQUE/PRIMARY KEY constraint
// failure regardless of the underlying driver's error type, since
// modernc.org/sqlite surfaces these as plain errors carrying the
// SQLite message text rather than a typed sentinel.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

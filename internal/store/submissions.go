package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusScored     Status = "scored"
	StatusError      Status = "error"
)

type Submission struct {
	ID                    string
	AgentID               string
	ChallengeID           string
	CompressedSizeBytes   int
	DecompressorSizeBytes int
	Score                 *int
	Status                Status
	ErrorMessage          *string
	ErrorCode             *string
	Breakdown             map[string]interface{}
	ExecutionTimeMS       *int64
	Rank                  *int
	CreatedAt             time.Time
}

const submissionSelectSQL = `SELECT id, agent_id, challenge_id, compressed_size_bytes,
	decompressor_size_bytes, score, status, error_message, error_code, breakdown_json,
	execution_time_ms, rank, created_at FROM submissions`

// CountRecentSubmissions counts submissions by (agent_id, challenge_id)
// within the trailing window, evaluated inside tx so it is atomic with
// the subsequent insert — the source of truth for the rate limit.
func CountRecentSubmissions(ctx context.Context, tx *sql.Tx, agentID, challengeID string, window time.Duration, now time.Time) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE agent_id = ? AND challenge_id = ? AND created_at >= ?`,
		agentID, challengeID, now.Add(-window)).Scan(&n)
	return n, err
}

// InsertPending creates a new submission row in tx with status =
// pending, zero score, computed sizes. The raw compressed blob and
// decompressor source are stored alongside it so the background worker
// (which may run well after the HTTP request returns) can load them by
// submission ID alone.
func InsertPending(ctx context.Context, tx *sql.Tx, id, agentID, challengeID string, compressedData []byte, decompressorCode string, createdAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO submissions (id, agent_id, challenge_id, compressed_data, decompressor_code,
			compressed_size_bytes, decompressor_size_bytes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`, id, agentID, challengeID, compressedData, decompressorCode, len(compressedData), len([]byte(decompressorCode)), createdAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetPayload loads the raw compressed blob and decompressor source for
// a submission, for the worker to evaluate.
func (s *Store) GetPayload(ctx context.Context, id string) (compressedData []byte, decompressorCode string, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT compressed_data, decompressor_code FROM submissions WHERE id = ?`, id,
	).Scan(&compressedData, &decompressorCode)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

// MarkProcessing transitions a pending row to processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = 'processing' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// MarkScored writes a terminal scored result and its breakdown.
func (s *Store) MarkScored(ctx context.Context, id string, score int, breakdown map[string]interface{}, executionTimeMS int64) error {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE submissions SET status = 'scored', score = ?, breakdown_json = ?, execution_time_ms = ?
		WHERE id = ? AND status = 'processing'
	`, score, string(breakdownJSON), executionTimeMS, id)
	return err
}

// MarkError writes a terminal error result.
func (s *Store) MarkError(ctx context.Context, id, errorCode, errorMessage string, breakdown map[string]interface{}, executionTimeMS int64) error {
	var breakdownJSON []byte
	if breakdown != nil {
		var err error
		breakdownJSON, err = json.Marshal(breakdown)
		if err != nil {
			return fmt.Errorf("marshal breakdown: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = 'error', error_code = ?, error_message = ?,
			breakdown_json = ?, execution_time_ms = ?
		WHERE id = ? AND status IN ('processing', 'pending')
	`, errorCode, errorMessage, string(breakdownJSON), executionTimeMS, id)
	return err
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, submissionSelectSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListScoredForChallenge returns every scored submission for a
// challenge ordered by (score ASC, created_at ASC) — the total order
// rank recomputation walks.
func (s *Store) ListScoredForChallenge(ctx context.Context, challengeID string) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		submissionSelectSQL+` WHERE challenge_id = ? AND status = 'scored'
		 ORDER BY score ASC, created_at ASC`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpdateRanks batch-applies a submission_id -> rank map within tx.
func UpdateRanks(ctx context.Context, tx *sql.Tx, ranks map[string]int) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE submissions SET rank = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, rank := range ranks {
		if _, err := stmt.ExecContext(ctx, rank, id); err != nil {
			return fmt.Errorf("update rank for %s: %w", id, err)
		}
	}
	return nil
}

// ListAgentSubmissions returns an agent's submission history, optionally
// filtered by challenge, newest first.
func (s *Store) ListAgentSubmissions(ctx context.Context, agentID string, challengeID *string, limit int) ([]*Submission, error) {
	query := submissionSelectSQL + " WHERE agent_id = ?"
	args := []interface{}{agentID}
	if challengeID != nil {
		query += " AND challenge_id = ?"
		args = append(args, *challengeID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// LeaderboardEntry is one agent's best scored submission for a
// challenge, the unit the leaderboard ranks over.
type LeaderboardEntry struct {
	AgentID      string
	BestScore    int
	SubmissionID string
	Rank         *int
}

// LeaderboardEntries returns, for a challenge, each agent's best scored
// submission (lowest score), ordered by that score ascending, limited
// to top N.
func (s *Store) LeaderboardEntries(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sub.agent_id, sub.score, sub.id, sub.rank
		FROM submissions sub
		INNER JOIN (
			SELECT agent_id, MIN(score) AS best_score
			FROM submissions
			WHERE challenge_id = ? AND status = 'scored'
			GROUP BY agent_id
		) best ON best.agent_id = sub.agent_id AND best.best_score = sub.score
		WHERE sub.challenge_id = ? AND sub.status = 'scored'
		GROUP BY sub.agent_id
		ORDER BY sub.score ASC
		LIMIT ?
	`, challengeID, challengeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var rank sql.NullInt64
		if err := rows.Scan(&e.AgentID, &e.BestScore, &e.SubmissionID, &rank); err != nil {
			return nil, err
		}
		if rank.Valid {
			v := int(rank.Int64)
			e.Rank = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TotalSubmissions and UniqueAgents support the leaderboard summary
// fields.
func (s *Store) LeaderboardStats(ctx context.Context, challengeID string) (total, uniqueAgents int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT agent_id) FROM submissions WHERE challenge_id = ? AND status = 'scored'`,
		challengeID).Scan(&total, &uniqueAgents)
	return
}

// SweepStuckProcessing marks any row stuck in processing older than
// olderThan as error/STUCK_EVALUATION. Run once at boot.
func (s *Store) SweepStuckProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = 'error', error_code = 'STUCK_EVALUATION',
			error_message = 'evaluation did not complete before the previous process stopped'
		WHERE status = 'processing' AND created_at < ?
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var score sql.NullInt64
	var errorMessage, errorCode, breakdownJSON sql.NullString
	var executionTimeMS sql.NullInt64
	var rank sql.NullInt64

	if err := row.Scan(&sub.ID, &sub.AgentID, &sub.ChallengeID, &sub.CompressedSizeBytes,
		&sub.DecompressorSizeBytes, &score, &sub.Status, &errorMessage, &errorCode,
		&breakdownJSON, &executionTimeMS, &rank, &sub.CreatedAt); err != nil {
		return nil, err
	}

	if score.Valid {
		v := int(score.Int64)
		sub.Score = &v
	}
	if errorMessage.Valid {
		v := errorMessage.String
		sub.ErrorMessage = &v
	}
	if errorCode.Valid {
		v := errorCode.String
		sub.ErrorCode = &v
	}
	if breakdownJSON.Valid && breakdownJSON.String != "" {
		if err := json.Unmarshal([]byte(breakdownJSON.String), &sub.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}
	if executionTimeMS.Valid {
		v := executionTimeMS.Int64
		sub.ExecutionTimeMS = &v
	}
	if rank.Valid {
		v := int(rank.Int64)
		sub.Rank = &v
	}
	return &sub, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no row updated (stale state transition)")
	}
	return nil
}

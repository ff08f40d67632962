package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/agent-arena/compression-arena/internal/store"
)

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := s.sched.Status(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("submission %q not found", id), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load submission", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionView(sub))
}

func toSubmissionView(sub *store.Submission) map[string]interface{} {
	return map[string]interface{}{
		"submission_id":     sub.ID,
		"status":            sub.Status,
		"score":             sub.Score,
		"rank":              sub.Rank,
		"breakdown":         sub.Breakdown,
		"execution_time_ms": sub.ExecutionTimeMS,
		"error":             sub.ErrorMessage,
		"error_code":        sub.ErrorCode,
		"leaderboard_url":   fmt.Sprintf("/challenges/%s/leaderboard", sub.ChallengeID),
	}
}

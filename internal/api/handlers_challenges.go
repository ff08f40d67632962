package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agent-arena/compression-arena/internal/scheduler"
	"github.com/agent-arena/compression-arena/internal/store"
)

type challengeView struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	ScoringDescription string  `json:"scoring_description"`
	InputHash          string  `json:"input_hash"`
	InputSizeBytes     int     `json:"input_size_bytes"`
	BestScore          *int    `json:"best_score"`
	BestAgentID        *string `json:"best_agent_id"`
}

func toChallengeView(c *store.Challenge) challengeView {
	return challengeView{
		ID:                 c.ID,
		Title:              c.Title,
		Description:        c.Description,
		ScoringDescription: c.ScoringDescription,
		InputHash:          c.InputHash,
		InputSizeBytes:     c.InputSizeBytes,
		BestScore:          c.BestScore,
		BestAgentID:        c.BestAgentID,
	}
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.store.ListActiveChallenges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list challenges", nil)
		return
	}
	out := make([]challengeView, len(challenges))
	for i, c := range challenges {
		out[i] = toChallengeView(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.store.GetChallenge(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("challenge %q not found", id), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load challenge", nil)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(c))
}

func (s *Server) handleGetChallengeInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	spec, ok := s.specs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("challenge %q not found", id), nil)
		return
	}
	data, err := spec.Input()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load reference input", nil)
		return
	}
	hash, err := spec.InputHash()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to hash reference input", nil)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Input-Hash", hash)
	w.Header().Set("X-Input-Size", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-input.bin", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleGetChallengeInputHash(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	spec, ok := s.specs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("challenge %q not found", id), nil)
		return
	}
	hash, err := spec.InputHash()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to hash reference input", nil)
		return
	}
	size, err := spec.InputSize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to size reference input", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge_id": id,
		"hash":         hash,
		"algorithm":    "sha256",
		"size_bytes":   size,
	})
}

type submitRequest struct {
	AgentID      string `json:"agent_id"`
	Compressed   string `json:"compressed"`
	Decompressor string `json:"decompressor"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}
	if !store.AgentIDPattern.MatchString(req.AgentID) {
		writeError(w, http.StatusBadRequest, "INVALID_AGENT_ID", "agent_id must match ^[A-Za-z0-9_-]{1,64}$", nil)
		return
	}
	if _, err := base64.StdEncoding.DecodeString(req.Compressed); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BASE64", "compressed is not valid base64", nil)
		return
	}

	result, err := s.sched.Submit(r.Context(), id, req.AgentID, req.Compressed, req.Decompressor)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission_id": result.SubmissionID,
		"status":        result.Status,
		"poll_url":      result.PollURL,
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var rateLimited *scheduler.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "submission rate limit exceeded",
			map[string]int{"retry_after_seconds": rateLimited.RetryAfterSeconds})
	case errors.Is(err, scheduler.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, "CHALLENGE_NOT_FOUND", "challenge not found", nil)
	case errors.Is(err, scheduler.ErrInvalidBase64):
		writeError(w, http.StatusBadRequest, "INVALID_BASE64", "compressed is not valid base64", nil)
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "evaluation queue is full, try again later", nil)
	default:
		s.log.Err().Err(err).Str("request_id", w.Header().Get("X-Request-Id")).Log("submit failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to submit", nil)
	}
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	result, err := s.sched.Leaderboard(r.Context(), id, limit)
	if errors.Is(err, scheduler.ErrChallengeNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("challenge %q not found", id), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load leaderboard", nil)
		return
	}

	entries := make([]map[string]interface{}, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = map[string]interface{}{
			"agent_id":      e.AgentID,
			"best_score":    e.BestScore,
			"submission_id": e.SubmissionID,
			"rank":          e.Rank,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge_id":      id,
		"entries":           entries,
		"total_submissions": result.TotalSubmissions,
		"unique_agents":     result.UniqueAgents,
	})
}

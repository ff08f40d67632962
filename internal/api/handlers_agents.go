package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agent-arena/compression-arena/internal/store"
)

type registerAgentRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsAI        *bool  `json:"is_ai"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}
	if !store.AgentIDPattern.MatchString(req.ID) {
		writeError(w, http.StatusBadRequest, "INVALID_AGENT_ID", "id must match ^[A-Za-z0-9_-]{1,64}$", nil)
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.ID
	}
	isAI := true
	if req.IsAI != nil {
		isAI = *req.IsAI
	}

	agent, err := s.store.CreateAgent(r.Context(), req.ID, displayName, isAI)
	if errors.Is(err, store.ErrAgentExists) {
		writeError(w, http.StatusConflict, "AGENT_EXISTS", fmt.Sprintf("agent %q already registered", req.ID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to register agent", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(agent, nil, nil))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	agent, err := s.store.GetAgent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("agent %q not found", id), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load agent", nil)
		return
	}

	bestScores, err := s.store.AgentBestScores(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load agent best scores", nil)
		return
	}
	count, err := s.store.CountAgentSubmissions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to count agent submissions", nil)
		return
	}

	writeJSON(w, http.StatusOK, toAgentView(agent, bestScores, &count))
}

func toAgentView(agent *store.Agent, bestScores map[string]int, submissionCount *int) map[string]interface{} {
	out := map[string]interface{}{
		"id":                 agent.ID,
		"display_name":       agent.DisplayName,
		"is_ai":              agent.IsAI,
		"created_at":         agent.CreatedAt,
		"last_submission_at": agent.LastSubmissionAt,
	}
	if bestScores != nil {
		out["best_scores"] = bestScores
	}
	if submissionCount != nil {
		out["submission_count"] = *submissionCount
	}
	return out
}

func (s *Server) handleListAgentSubmissions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetAgent(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("agent %q not found", id), nil)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load agent", nil)
		return
	}

	var challengeIDFilter *string
	if cid := r.URL.Query().Get("challenge_id"); cid != "" {
		challengeIDFilter = &cid
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	subs, err := s.store.ListAgentSubmissions(r.Context(), id, challengeIDFilter, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list agent submissions", nil)
		return
	}

	out := make([]map[string]interface{}, len(subs))
	for i, sub := range subs {
		out[i] = toSubmissionView(sub)
	}
	writeJSON(w, http.StatusOK, out)
}

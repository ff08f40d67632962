package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/agent-arena/compression-arena/internal/evaluator"
	"github.com/agent-arena/compression-arena/internal/metrics"
	"github.com/agent-arena/compression-arena/internal/store"
)

// runWorker drains the submission queue until it is closed (on
// shutdown) or ctx is cancelled. Each submission is evaluated
// independently; a failure to evaluate one never blocks the others.
func (s *Scheduler) runWorker(ctx context.Context) {
	for {
		select {
		case id, ok := <-s.queue:
			if !ok {
				return
			}
			s.process(ctx, id)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) process(ctx context.Context, id string) {
	metrics.QueueDepth.Set(float64(len(s.queue)))
	start := time.Now()

	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		s.log.Err().Err(err).Str("submission_id", id).Log("failed to load submission for evaluation")
		return
	}
	spec, ok := s.specs[sub.ChallengeID]
	if !ok {
		s.log.Err().Str("submission_id", id).Str("challenge_id", sub.ChallengeID).Log("submission references unknown challenge")
		_ = s.store.MarkError(ctx, id, "INTERNAL_ERROR", "challenge no longer active", nil, 0)
		return
	}

	if err := s.store.MarkProcessing(ctx, id); err != nil {
		s.log.Err().Err(err).Str("submission_id", id).Log("failed to mark submission processing")
		return
	}

	compressed, decompressorCode, err := s.store.GetPayload(ctx, id)
	if err != nil {
		s.log.Err().Err(err).Str("submission_id", id).Log("failed to load submission payload")
		_ = s.store.MarkError(ctx, id, "INTERNAL_ERROR", "failed to load submission payload", nil, 0)
		return
	}

	res := evaluator.Evaluate(spec, compressed, decompressorCode, evaluator.Limits{
		Timeout:   s.cfg.SandboxTimeout,
		MemoryMB:  s.cfg.SandboxMemoryMB,
		MaxOutput: s.cfg.SandboxMaxOutput,
	})

	metrics.EvaluationDuration.WithLabelValues(sub.ChallengeID).Observe(time.Since(start).Seconds())

	if res.Success {
		if err := s.store.MarkScored(ctx, id, res.Score, res.Breakdown, res.ExecutionTimeMS); err != nil {
			s.log.Err().Err(err).Str("submission_id", id).Log("failed to persist scored submission")
			return
		}
		metrics.SubmissionsProcessed.WithLabelValues(sub.ChallengeID, "scored").Inc()
		s.log.Info().Str("submission_id", id).Str("challenge_id", sub.ChallengeID).Int("score", res.Score).Log("submission scored")
		s.recomputeRanks(ctx, sub.ChallengeID)
		return
	}

	metrics.SubmissionsProcessed.WithLabelValues(sub.ChallengeID, "error").Inc()
	if err := s.store.MarkError(ctx, id, res.ErrorCode, res.Error, res.Breakdown, res.ExecutionTimeMS); err != nil {
		s.log.Err().Err(err).Str("submission_id", id).Log("failed to persist errored submission")
	}
}

// recomputeRanks recomputes dense standard-competition ranks for a
// challenge's scored submissions: ties share a rank, and the next
// distinct score is ranked by position, not by count of ties. Guarded
// per-challenge so concurrent workers scoring submissions for the same
// challenge serialize their recompute rather than racing on stale reads.
func (s *Scheduler) recomputeRanks(ctx context.Context, challengeID string) {
	lock := s.rankLock(challengeID)
	lock.Lock()
	defer lock.Unlock()

	subs, err := s.store.ListScoredForChallenge(ctx, challengeID)
	if err != nil {
		s.log.Err().Err(err).Str("challenge_id", challengeID).Log("failed to list scored submissions for rank recompute")
		return
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return *subs[i].Score < *subs[j].Score
	})

	ranks := make(map[string]int, len(subs))
	var lastScore int
	rank := 0
	for i, sub := range subs {
		if i == 0 || *sub.Score != lastScore {
			rank = i + 1
			lastScore = *sub.Score
		}
		ranks[sub.ID] = rank
	}
	if len(ranks) == 0 {
		return
	}

	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		s.log.Err().Err(err).Str("challenge_id", challengeID).Log("failed to begin rank recompute transaction")
		return
	}
	defer tx.Rollback()

	if err := store.UpdateRanks(ctx, tx, ranks); err != nil {
		s.log.Err().Err(err).Str("challenge_id", challengeID).Log("failed to update ranks")
		return
	}
	best := subs[0]
	if err := store.UpdateBest(ctx, tx, challengeID, *best.Score, best.AgentID); err != nil {
		s.log.Err().Err(err).Str("challenge_id", challengeID).Log("failed to update challenge best score")
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Err().Err(err).Str("challenge_id", challengeID).Log("failed to commit rank recompute")
	}
}

// Package scheduler is the submission scheduler: accepts submissions,
// enforces rate limits, persists lifecycle, and hands evaluation off to
// a bounded background worker pool.
package scheduler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agent-arena/compression-arena/internal/challenge"
	"github.com/agent-arena/compression-arena/internal/logging"
	"github.com/agent-arena/compression-arena/internal/metrics"
	"github.com/agent-arena/compression-arena/internal/ratelimit"
	"github.com/agent-arena/compression-arena/internal/store"
)

// Sentinel errors mapped to HTTP status/error_code at the transport
// layer.
var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrInvalidBase64     = errors.New("invalid base64")
	ErrQueueFull         = errors.New("evaluation queue full")
)

// RateLimitedError carries the retry_after_seconds returned on
// 429 responses.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

const submissionsPerHourWindow = time.Hour

// Config bundles the scheduler's resource caps and pool shape.
type Config struct {
	SubmissionsPerHour int
	QueueDepth         int
	Workers            int
	SandboxTimeout     time.Duration
	SandboxMemoryMB    int
	SandboxMaxOutput   int
}

// Scheduler is the submission scheduler, described in full in the
// package doc.
type Scheduler struct {
	store   *store.Store
	specs   map[string]*challenge.Spec
	limiter *ratelimit.Limiter
	cfg     Config
	log     *logging.Logger

	queue     chan string
	workers   *errgroup.Group
	rankLocks sync.Map // challengeID -> *sync.Mutex
}

// New constructs a Scheduler. specs must contain every active
// challenge, keyed by ID.
func New(st *store.Store, specs map[string]*challenge.Spec, cfg Config, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		specs:   specs,
		limiter: ratelimit.New(cfg.SubmissionsPerHour),
		cfg:     cfg,
		log:     log,
		queue:   make(chan string, cfg.QueueDepth),
	}
}

// Start launches the worker pool and sweeps any rows left stuck in
// processing by a prior, uncleanly-stopped process.
func (s *Scheduler) Start(ctx context.Context) error {
	swept, err := s.store.SweepStuckProcessing(ctx, s.cfg.SandboxTimeout+30*time.Second)
	if err != nil {
		return fmt.Errorf("sweep stuck submissions: %w", err)
	}
	if swept > 0 {
		s.log.Info().Int("count", int(swept)).Log("swept stuck submissions to STUCK_EVALUATION")
	}

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	s.workers = group
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			s.runWorker(groupCtx)
			return nil
		})
	}
	return nil
}

// Shutdown closes the queue and waits (up to ctx's deadline) for
// in-flight workers to drain.
func (s *Scheduler) Shutdown(ctx context.Context) {
	close(s.queue)
	done := make(chan struct{})
	go func() {
		_ = s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Info().Log("shutdown deadline reached with workers still draining")
	}
}

// SubmitResult is what the HTTP layer returns to the caller immediately.
type SubmitResult struct {
	SubmissionID string
	Status       string
	PollURL      string
}

// Submit resolves the challenge, upserts the agent, enforces the rate
// limit, persists a pending row, and enqueues evaluation — all without
// blocking on the evaluation itself.
func (s *Scheduler) Submit(ctx context.Context, challengeID, agentID, compressedB64, decompressorText string) (*SubmitResult, error) {
	if _, ok := s.specs[challengeID]; !ok {
		return nil, ErrChallengeNotFound
	}

	compressed, err := base64.StdEncoding.DecodeString(compressedB64)
	if err != nil {
		return nil, ErrInvalidBase64
	}

	// The catrate fast path records an event only after base64 decoding
	// has succeeded, so a malformed attempt never consumes rate-limit
	// budget. An attempt that the transactional count below rejects, that
	// fails to persist, or that finds the queue full has already consumed
	// it.
	if allowed, _ := s.limiter.Allow(agentID, challengeID); !allowed {
		metrics.SubmissionsRejected.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitedError{RetryAfterSeconds: int(submissionsPerHourWindow.Seconds())}
	}

	id := uuid.New().String()
	now := time.Now()

	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := store.GetOrCreateAgent(ctx, tx, agentID); err != nil {
		return nil, fmt.Errorf("get or create agent: %w", err)
	}

	count, err := store.CountRecentSubmissions(ctx, tx, agentID, challengeID, submissionsPerHourWindow, now)
	if err != nil {
		return nil, fmt.Errorf("count recent submissions: %w", err)
	}
	if count >= s.cfg.SubmissionsPerHour {
		metrics.SubmissionsRejected.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitedError{RetryAfterSeconds: int(submissionsPerHourWindow.Seconds())}
	}

	if err := store.InsertPending(ctx, tx, id, agentID, challengeID, compressed, decompressorText, now); err != nil {
		return nil, err
	}
	if err := store.UpdateLastSubmission(ctx, tx, agentID, now); err != nil {
		return nil, fmt.Errorf("update last submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submission: %w", err)
	}

	select {
	case s.queue <- id:
		metrics.QueueDepth.Set(float64(len(s.queue)))
	default:
		metrics.SubmissionsRejected.WithLabelValues("queue_full").Inc()
		return nil, ErrQueueFull
	}

	return &SubmitResult{
		SubmissionID: id,
		Status:       string(store.StatusPending),
		PollURL:      fmt.Sprintf("/submissions/%s", id),
	}, nil
}

// Status returns the current view of a submission for polling.
func (s *Scheduler) Status(ctx context.Context, id string) (*store.Submission, error) {
	return s.store.GetSubmission(ctx, id)
}

// Leaderboard returns the per-agent-best leaderboard for a challenge.
type LeaderboardResult struct {
	Entries          []store.LeaderboardEntry
	TotalSubmissions int
	UniqueAgents     int
}

func (s *Scheduler) Leaderboard(ctx context.Context, challengeID string, limit int) (*LeaderboardResult, error) {
	if _, ok := s.specs[challengeID]; !ok {
		return nil, ErrChallengeNotFound
	}
	entries, err := s.store.LeaderboardEntries(ctx, challengeID, limit)
	if err != nil {
		return nil, err
	}
	total, unique, err := s.store.LeaderboardStats(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return &LeaderboardResult{Entries: entries, TotalSubmissions: total, UniqueAgents: unique}, nil
}

func (s *Scheduler) rankLock(challengeID string) *sync.Mutex {
	v, _ := s.rankLocks.LoadOrStore(challengeID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

package github

import (
	"context"
	"errors"
	"time"

	"github.com/xiyo/replica-builder/internal/logger"
)

// recentRunsLimit is how many runs one resolution attempt inspects
const recentRunsLimit = 10

// ErrNoRunFound is returned when the retry budget is exhausted without any
// run appearing in the listing. It is distinct from an upstream transport
// failure, which only costs one attempt.
var ErrNoRunFound = errors.New("no workflow run found")

// Match classifies how a resolution attempt identified its run
type Match string

// Resolution match kinds, from strongest to weakest
const (
	// MatchExactWindow means the run was created inside the correlation window
	MatchExactWindow Match = "exact-window"
	// MatchStatusFallback means no run fell in the window but a live one existed
	MatchStatusFallback Match = "status-fallback"
	// MatchLatestFallback means the newest run was taken as a last resort
	MatchLatestFallback Match = "latest-fallback"
	// MatchNone means the listing held nothing usable this attempt
	MatchNone Match = "none"
)

// Resolution is the outcome of correlating a dispatch with a remote run
type Resolution struct {
	Run      *WorkflowRun
	Match    Match
	Attempts int
}

// RunLister lists the most recent runs of the target workflow, newest first
type RunLister interface {
	ListRecentRuns(ctx context.Context, limit int) []WorkflowRun
}

// Resolver maps a fresh dispatch to the run it produced. GitHub does not
// return a run identifier from a workflow dispatch and does not echo the
// dispatch inputs in the runs listing, so correlation is a time-windowed
// best-effort heuristic. A concurrent unrelated dispatch to the same
// workflow inside the window can be mis-attributed; that race is a known
// limitation of the upstream API, not something this code can close.
type Resolver struct {
	lister      RunLister
	window      time.Duration
	maxAttempts int
	interval    time.Duration
	log         *logger.Logger

	// now is stubbed in tests
	now func() time.Time
}

// NewResolver creates a resolver with the given correlation window and retry
// budget. A dispatched run can take several seconds to materialize in the
// listing, hence the retries.
func NewResolver(lister RunLister, window time.Duration, maxAttempts int, interval time.Duration) *Resolver {
	return &Resolver{
		lister:      lister,
		window:      window,
		maxAttempts: maxAttempts,
		interval:    interval,
		log:         logger.WithField("component", "resolver"),
		now:         time.Now,
	}
}

// pick applies the correlation heuristic to one listing:
//  1. the first run (listing order, newest first) created inside the window,
//     regardless of its status
//  2. otherwise the most recent in_progress or queued run
//  3. otherwise the most recent run at all
func (r *Resolver) pick(runs []WorkflowRun) (*WorkflowRun, Match) {
	if len(runs) == 0 {
		return nil, MatchNone
	}

	cutoff := r.now().Add(-r.window)
	for i := range runs {
		if !runs[i].CreatedAt.Before(cutoff) {
			return &runs[i], MatchExactWindow
		}
	}

	for i := range runs {
		if runs[i].Status == StatusInProgress || runs[i].Status == StatusQueued {
			return &runs[i], MatchStatusFallback
		}
	}

	return &runs[0], MatchLatestFallback
}

// ResolveOnce performs a single resolution attempt without retrying. The
// pull-poll transport uses this, leaving the retry cadence to its client.
func (r *Resolver) ResolveOnce(ctx context.Context) *Resolution {
	runs := r.lister.ListRecentRuns(ctx, recentRunsLimit)
	run, match := r.pick(runs)
	return &Resolution{Run: run, Match: match, Attempts: 1}
}

// Resolve retries until the heuristic returns any run, even a fallback
// match; only a completely empty listing costs an attempt. Exhausting the
// budget returns ErrNoRunFound. Context cancellation stops the wait early.
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		runs := r.lister.ListRecentRuns(ctx, recentRunsLimit)
		if run, match := r.pick(runs); run != nil {
			r.log.WithFields(map[string]interface{}{
				"run_id":  run.ID,
				"match":   string(match),
				"attempt": attempt,
			}).Info("Workflow run resolved")
			return &Resolution{Run: run, Match: match, Attempts: attempt}, nil
		}

		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.interval):
		}
	}

	r.log.WithField("attempts", r.maxAttempts).Warn("Run resolution exhausted retry budget")
	return nil, ErrNoRunFound
}

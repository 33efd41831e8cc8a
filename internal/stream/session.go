// Package stream implements the status streaming session: the state machine
// that resolves a freshly dispatched workflow run, polls it to completion,
// and reports each observation to a connected client. The session is
// transport-agnostic; the HTTP layer adapts it to SSE or to a one-shot poll
// response.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiyo/replica-builder/internal/github"
	"github.com/xiyo/replica-builder/internal/logger"
	"github.com/xiyo/replica-builder/internal/metrics"
)

// Session event messages
const (
	msgSearching       = "Searching for the workflow run..."
	msgFound           = "Workflow run found."
	msgRunNotFound     = "Workflow run could not be found."
	msgFetchFailed     = "Unable to fetch workflow status."
	msgDeployComplete  = "Deployment complete!"
	msgDeployFailedFmt = "Deployment failed: %s"
)

// Resolver correlates a dispatch with its remote run
type Resolver interface {
	Resolve(ctx context.Context) (*github.Resolution, error)
	ResolveOnce(ctx context.Context) *github.Resolution
}

// StatusFetcher reads a run's current state and job breakdown
type StatusFetcher interface {
	FetchRunStatus(ctx context.Context, runID int64) (*github.WorkflowRun, []github.WorkflowJob)
}

// Session owns the lifecycle of one open status connection. It moves through
// searching, found, and polling, and ends with exactly one terminal event:
// completed, or error when resolution fails. Transient fetch failures emit a
// non-terminal error event and polling continues.
//
// A session serves exactly one client and shares no state with other
// sessions. The poll loop runs in the calling goroutine, so at most one
// status fetch is ever in flight per session.
type Session struct {
	resolver     Resolver
	fetcher      StatusFetcher
	pollInterval time.Duration
	deployURL    string
	log          *logger.Logger

	mu       sync.Mutex
	run      *github.WorkflowRun
	closed   bool
	terminal bool
}

// NewSession creates a session for one client connection. deployURL is the
// site URL reported when the run concludes successfully.
func NewSession(resolver Resolver, fetcher StatusFetcher, pollInterval time.Duration, deployURL string) *Session {
	return &Session{
		resolver:     resolver,
		fetcher:      fetcher,
		pollInterval: pollInterval,
		deployURL:    deployURL,
		log:          logger.WithField("component", "stream"),
	}
}

// Close marks the session dead. Any emission attempted afterwards, including
// one from a fetch that was in flight at close time, is a silent no-op.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// alive reports whether the session may still emit events
func (s *Session) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.terminal
}

// emit delivers a non-terminal event, discarding it if the session is dead
// or the client disconnected
func (s *Session) emit(ctx context.Context, sink Sink, ev Event) error {
	if !s.alive() || ctx.Err() != nil {
		return nil
	}
	return sink(ev)
}

// emitTerminal delivers an event and seals the session; at most one terminal
// event is ever emitted
func (s *Session) emitTerminal(ctx context.Context, sink Sink, ev Event) error {
	s.mu.Lock()
	if s.closed || s.terminal {
		s.mu.Unlock()
		return nil
	}
	s.terminal = true
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	return sink(ev)
}

// Run drives the session until the run completes, resolution fails, or the
// client disconnects (ctx cancellation). The ticker is always stopped before
// returning, and nothing is emitted after the terminal event.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()
	defer s.Close()

	if err := s.emit(ctx, sink, Event{Type: EventSearching, Message: msgSearching}); err != nil {
		return err
	}

	resolution, err := s.resolver.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.ResolutionFailuresTotal.Inc()
		if emitErr := s.emitTerminal(ctx, sink, Event{Type: EventError, Message: msgRunNotFound}); emitErr != nil {
			return emitErr
		}
		return err
	}

	s.mu.Lock()
	s.run = resolution.Run
	s.mu.Unlock()

	s.log = s.log.WithFields(map[string]interface{}{
		"run_id": resolution.Run.ID,
		"match":  string(resolution.Match),
	})

	if err := s.emit(ctx, sink, Event{Type: EventFound, Run: resolution.Run, Message: msgFound}); err != nil {
		return err
	}

	// First poll happens immediately; the ticker paces the rest. Ticks are
	// handled sequentially in this goroutine, so a slow fetch simply delays
	// the next one instead of overlapping it.
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		done, err := s.poll(ctx, sink)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			s.log.Debug("Client disconnected, session closed")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll performs one status fetch and emits the matching event. It reports
// done=true only after the terminal completed event.
func (s *Session) poll(ctx context.Context, sink Sink) (bool, error) {
	s.mu.Lock()
	runID := s.run.ID
	s.mu.Unlock()

	metrics.StatusPollsTotal.Inc()
	run, jobs := s.fetcher.FetchRunStatus(ctx, runID)

	if ctx.Err() != nil {
		// Disconnected while the fetch was in flight; discard the result.
		return false, ctx.Err()
	}

	if run == nil {
		// Transient upstream failure: report it but keep the session open
		// and let the next tick try again.
		s.log.Debug("Status fetch failed, continuing to poll")
		return false, s.emit(ctx, sink, Event{Type: EventError, Message: msgFetchFailed})
	}

	s.mu.Lock()
	s.run = run
	s.mu.Unlock()

	if !run.IsCompleted() {
		return false, s.emit(ctx, sink, Event{Type: EventProgress, Run: run, Jobs: jobs})
	}

	ev := Event{Type: EventCompleted, Run: run, Jobs: jobs}
	if run.Conclusion == github.ConclusionSuccess {
		ev.DeployURL = s.deployURL
		ev.Message = msgDeployComplete
	} else {
		ev.Message = fmt.Sprintf(msgDeployFailedFmt, run.Conclusion)
	}

	s.log.WithField("conclusion", string(run.Conclusion)).Info("Workflow run completed")
	return true, s.emitTerminal(ctx, sink, ev)
}

// Snapshot is the pull-poll rendition of the same state machine: one
// resolution attempt and at most one status fetch, returning the event a
// streaming session would have emitted at this moment. The client supplies
// the cadence by calling repeatedly.
func (s *Session) Snapshot(ctx context.Context) Event {
	resolution := s.resolver.ResolveOnce(ctx)
	if resolution.Run == nil {
		return Event{Type: EventSearching, Message: msgSearching}
	}

	metrics.StatusPollsTotal.Inc()
	run, jobs := s.fetcher.FetchRunStatus(ctx, resolution.Run.ID)
	if run == nil {
		return Event{Type: EventError, Message: msgFetchFailed}
	}

	if !run.IsCompleted() {
		return Event{Type: EventProgress, Run: run, Jobs: jobs}
	}

	ev := Event{Type: EventCompleted, Run: run, Jobs: jobs}
	if run.Conclusion == github.ConclusionSuccess {
		ev.DeployURL = s.deployURL
		ev.Message = msgDeployComplete
	} else {
		ev.Message = fmt.Sprintf(msgDeployFailedFmt, run.Conclusion)
	}
	return ev
}

package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiyo/replica-builder/internal/github"
)

// fakeResolver returns a canned resolution or error
type fakeResolver struct {
	run *github.WorkflowRun
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context) (*github.Resolution, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &github.Resolution{Run: f.run, Match: github.MatchExactWindow, Attempts: 1}, nil
}

func (f *fakeResolver) ResolveOnce(ctx context.Context) *github.Resolution {
	if f.err != nil || f.run == nil {
		return &github.Resolution{Match: github.MatchNone, Attempts: 1}
	}
	return &github.Resolution{Run: f.run, Match: github.MatchExactWindow, Attempts: 1}
}

// scriptedFetcher replays a fixed sequence of fetch results, repeating the
// last one. A nil run entry models a transient upstream failure.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{} // when set, every fetch waits on it first
}

type fetchResult struct {
	run  *github.WorkflowRun
	jobs []github.WorkflowJob
}

func (f *scriptedFetcher) FetchRunStatus(ctx context.Context, runID int64) (*github.WorkflowRun, []github.WorkflowJob) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	if idx < 0 {
		return nil, nil
	}
	return f.results[idx].run, f.results[idx].jobs
}

// recordingSink collects emitted events
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) sink(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) types() []EventType {
	var types []EventType
	for _, ev := range r.all() {
		types = append(types, ev.Type)
	}
	return types
}

func runWithStatus(status github.Status, conclusion github.Conclusion) *github.WorkflowRun {
	return &github.WorkflowRun{
		ID:         42,
		Name:       "Provision",
		Status:     status,
		Conclusion: conclusion,
		HTMLURL:    "https://github.com/xiyo/replica-builder/actions/runs/42",
	}
}

func countTerminal(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Type == EventCompleted {
			n++
		}
	}
	return n
}

func TestSessionSuccessPath(t *testing.T) {
	// queued -> in_progress -> completed(success) across successive polls
	jobs := []github.WorkflowJob{{ID: 7, Name: "provision", Status: github.StatusInProgress}}
	fetcher := &scriptedFetcher{results: []fetchResult{
		{run: runWithStatus(github.StatusQueued, "")},
		{run: runWithStatus(github.StatusInProgress, ""), jobs: jobs},
		{run: runWithStatus(github.StatusCompleted, github.ConclusionSuccess), jobs: jobs},
	}}
	resolver := &fakeResolver{run: runWithStatus(github.StatusQueued, "")}

	session := NewSession(resolver, fetcher, 5*time.Millisecond, "https://docs.xiyo.dev")
	sink := &recordingSink{}

	err := session.Run(context.Background(), sink.sink)
	require.NoError(t, err)

	events := sink.all()
	require.Equal(t,
		[]EventType{EventSearching, EventFound, EventProgress, EventProgress, EventCompleted},
		sink.types())

	completed := events[len(events)-1]
	assert.Equal(t, "https://docs.xiyo.dev", completed.DeployURL)
	assert.Equal(t, "Deployment complete!", completed.Message)
	require.NotNil(t, completed.Run)
	assert.True(t, completed.Run.IsCompleted())
	assert.Equal(t, 1, countTerminal(events), "exactly one terminal event per session")
	assert.Equal(t, 3, fetcher.calls, "no polls after the terminal event")
}

func TestSessionFailureConclusion(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{run: runWithStatus(github.StatusCompleted, github.ConclusionFailure)},
	}}
	resolver := &fakeResolver{run: runWithStatus(github.StatusInProgress, "")}

	session := NewSession(resolver, fetcher, 5*time.Millisecond, "https://docs.xiyo.dev")
	sink := &recordingSink{}

	err := session.Run(context.Background(), sink.sink)
	require.NoError(t, err)

	events := sink.all()
	completed := events[len(events)-1]
	assert.Equal(t, EventCompleted, completed.Type)
	assert.Empty(t, completed.DeployURL, "no deploy URL on a failed run")
	assert.Equal(t, "Deployment failed: failure", completed.Message)
}

func TestSessionResolutionFailure(t *testing.T) {
	resolver := &fakeResolver{err: github.ErrNoRunFound}
	fetcher := &scriptedFetcher{}

	session := NewSession(resolver, fetcher, 5*time.Millisecond, "")
	sink := &recordingSink{}

	err := session.Run(context.Background(), sink.sink)
	assert.ErrorIs(t, err, github.ErrNoRunFound)

	assert.Equal(t, []EventType{EventSearching, EventError}, sink.types())
	assert.Zero(t, fetcher.calls, "no status fetches without a resolved run")
}

func TestSessionTransientFetchFailure(t *testing.T) {
	// One failed fetch emits a non-terminal error; the next tick still runs
	// and can reach completed.
	fetcher := &scriptedFetcher{results: []fetchResult{
		{run: nil},
		{run: runWithStatus(github.StatusCompleted, github.ConclusionSuccess)},
	}}
	resolver := &fakeResolver{run: runWithStatus(github.StatusQueued, "")}

	session := NewSession(resolver, fetcher, 5*time.Millisecond, "https://docs.xiyo.dev")
	sink := &recordingSink{}

	err := session.Run(context.Background(), sink.sink)
	require.NoError(t, err)

	assert.Equal(t,
		[]EventType{EventSearching, EventFound, EventError, EventCompleted},
		sink.types())
	assert.Equal(t, 1, countTerminal(sink.all()))
}

func TestSessionClientDisconnect(t *testing.T) {
	t.Run("disconnect between ticks", func(t *testing.T) {
		fetcher := &scriptedFetcher{results: []fetchResult{
			{run: runWithStatus(github.StatusInProgress, "")},
		}}
		resolver := &fakeResolver{run: runWithStatus(github.StatusQueued, "")}

		session := NewSession(resolver, fetcher, time.Hour, "")
		sink := &recordingSink{}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- session.Run(ctx, sink.sink)
		}()

		// Wait for the first progress event, then disconnect.
		require.Eventually(t, func() bool {
			return len(sink.all()) >= 3
		}, time.Second, time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("session did not stop after disconnect")
		}

		before := len(sink.all())
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, before, len(sink.all()), "no events after disconnect")
	})

	t.Run("fetch in flight at disconnect is discarded", func(t *testing.T) {
		block := make(chan struct{})
		fetcher := &scriptedFetcher{
			results: []fetchResult{{run: runWithStatus(github.StatusCompleted, github.ConclusionSuccess)}},
			block:   block,
		}
		resolver := &fakeResolver{run: runWithStatus(github.StatusQueued, "")}

		session := NewSession(resolver, fetcher, time.Hour, "https://docs.xiyo.dev")
		sink := &recordingSink{}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- session.Run(ctx, sink.sink)
		}()

		// Let the session reach the in-flight fetch, disconnect, then let
		// the fetch complete. Its result must be discarded.
		require.Eventually(t, func() bool {
			return len(sink.all()) == 2 // searching, found
		}, time.Second, time.Millisecond)
		cancel()
		close(block)

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("session did not stop after disconnect")
		}

		assert.Equal(t, []EventType{EventSearching, EventFound}, sink.types(),
			"the in-flight fetch result must not be emitted")
	})
}

func TestSessionSinkWriteFailure(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{run: runWithStatus(github.StatusInProgress, "")},
	}}
	resolver := &fakeResolver{run: runWithStatus(github.StatusQueued, "")}

	session := NewSession(resolver, fetcher, 5*time.Millisecond, "")
	sink := &recordingSink{err: errors.New("client write failed")}

	err := session.Run(context.Background(), sink.sink)
	assert.Error(t, err)
	assert.Len(t, sink.all(), 1, "session ends on the first failed write")
}

func TestSessionEmitAfterClose(t *testing.T) {
	session := NewSession(&fakeResolver{}, &scriptedFetcher{}, time.Second, "")
	sink := &recordingSink{}

	session.Close()
	err := session.emit(context.Background(), sink.sink, Event{Type: EventProgress})
	require.NoError(t, err)
	assert.Empty(t, sink.all(), "emission after close is a no-op")

	err = session.emitTerminal(context.Background(), sink.sink, Event{Type: EventCompleted})
	require.NoError(t, err)
	assert.Empty(t, sink.all())
}

func TestSnapshot(t *testing.T) {
	t.Run("searching while no run resolves", func(t *testing.T) {
		session := NewSession(&fakeResolver{}, &scriptedFetcher{}, time.Second, "")
		ev := session.Snapshot(context.Background())
		assert.Equal(t, EventSearching, ev.Type)
	})

	t.Run("progress for a live run", func(t *testing.T) {
		fetcher := &scriptedFetcher{results: []fetchResult{
			{run: runWithStatus(github.StatusInProgress, ""), jobs: []github.WorkflowJob{{ID: 7}}},
		}}
		session := NewSession(&fakeResolver{run: runWithStatus(github.StatusQueued, "")}, fetcher, time.Second, "")

		ev := session.Snapshot(context.Background())
		assert.Equal(t, EventProgress, ev.Type)
		require.NotNil(t, ev.Run)
		assert.Len(t, ev.Jobs, 1)
	})

	t.Run("error on transient fetch failure", func(t *testing.T) {
		fetcher := &scriptedFetcher{results: []fetchResult{{run: nil}}}
		session := NewSession(&fakeResolver{run: runWithStatus(github.StatusQueued, "")}, fetcher, time.Second, "")

		ev := session.Snapshot(context.Background())
		assert.Equal(t, EventError, ev.Type)
	})

	t.Run("completed success carries deploy URL", func(t *testing.T) {
		fetcher := &scriptedFetcher{results: []fetchResult{
			{run: runWithStatus(github.StatusCompleted, github.ConclusionSuccess)},
		}}
		session := NewSession(&fakeResolver{run: runWithStatus(github.StatusQueued, "")}, fetcher, time.Second, "https://docs.xiyo.dev")

		ev := session.Snapshot(context.Background())
		assert.Equal(t, EventCompleted, ev.Type)
		assert.Equal(t, "https://docs.xiyo.dev", ev.DeployURL)
	})

	t.Run("completed failure has no deploy URL", func(t *testing.T) {
		fetcher := &scriptedFetcher{results: []fetchResult{
			{run: runWithStatus(github.StatusCompleted, github.ConclusionTimedOut)},
		}}
		session := NewSession(&fakeResolver{run: runWithStatus(github.StatusQueued, "")}, fetcher, time.Second, "https://docs.xiyo.dev")

		ev := session.Snapshot(context.Background())
		assert.Equal(t, EventCompleted, ev.Type)
		assert.Empty(t, ev.DeployURL)
		assert.Contains(t, ev.Message, "timed_out")
	})
}

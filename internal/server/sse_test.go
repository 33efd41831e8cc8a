package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiyo/replica-builder/internal/stream"
)

// workflowBackend is a stub GitHub backend serving a single workflow run.
type workflowBackend struct {
	runID      int64
	status     string
	conclusion string
}

func (b *workflowBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	run := map[string]interface{}{
		"id":         b.runID,
		"name":       "Provision Site",
		"status":     b.status,
		"conclusion": b.conclusion,
		"html_url":   "https://github.com/owner/repo/actions/runs/42",
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/jobs"):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs": []map[string]interface{}{
				{
					"id":         1,
					"name":       "provision",
					"status":     b.status,
					"conclusion": b.conclusion,
				},
			},
		})
	case strings.Contains(r.URL.Path, "/actions/runs/"):
		json.NewEncoder(w).Encode(run)
	case strings.HasSuffix(r.URL.Path, "/runs"):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"workflow_runs": []interface{}{run},
		})
	default:
		http.NotFound(w, r)
	}
}

// readEvents consumes an SSE response body until the server closes it,
// decoding each data frame.
func readEvents(t *testing.T, body *bufio.Scanner) []stream.Event {
	t.Helper()
	var events []stream.Event
	for body.Scan() {
		line := body.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestWorkflowStatusStream(t *testing.T) {
	backend := &workflowBackend{runID: 42, status: "completed", conclusion: "success"}
	srv := newTestServer(t, backend, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/my-docs")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventSearching, events[0].Type)
	assert.Equal(t, stream.EventFound, events[1].Type)
	assert.Equal(t, stream.EventCompleted, events[2].Type)
	assert.Equal(t, "https://my-docs.test.dev", events[2].DeployURL)
	require.NotNil(t, events[2].Run)
	assert.Equal(t, int64(42), events[2].Run.ID)
	assert.Len(t, events[2].Jobs, 1)
}

func TestWorkflowStatusStreamResolutionFailure(t *testing.T) {
	// Empty listing on every attempt exhausts the retry budget
	gh := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"workflow_runs": []interface{}{}})
	})
	srv := newTestServer(t, gh, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/my-docs")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 2)
	assert.Equal(t, stream.EventSearching, events[0].Type)
	assert.Equal(t, stream.EventError, events[1].Type)
	assert.NotEmpty(t, events[1].Message)
}

func TestWorkflowStatusStreamInvalidSubdomain(t *testing.T) {
	srv := newTestServer(t, http.NotFoundHandler(), nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/Bad_Name")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowStatusPoll(t *testing.T) {
	backend := &workflowBackend{runID: 42, status: "completed", conclusion: "success"}
	srv := newTestServer(t, backend, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/my-docs/poll")
	require.NoError(t, err)

	var body pollResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, "https://my-docs.test.dev", body.DeployURL)
	require.NotNil(t, body.Run)
	assert.Equal(t, int64(42), body.Run.ID)
}

func TestWorkflowStatusPollStillSearching(t *testing.T) {
	gh := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"workflow_runs": []interface{}{}})
	})
	srv := newTestServer(t, gh, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/my-docs/poll")
	require.NoError(t, err)

	var body pollResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "searching", body.Status)
	assert.Nil(t, body.Run)
}

func TestWorkflowStatusPollInProgress(t *testing.T) {
	backend := &workflowBackend{runID: 42, status: "in_progress", conclusion: ""}
	srv := newTestServer(t, backend, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/workflow-status/my-docs/poll")
	require.NoError(t, err)

	var body pollResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "progress", body.Status)
	require.NotNil(t, body.Run)
	assert.Equal(t, "in_progress", string(body.Run.Status))
}

// Package github is a client for the GitHub Actions REST API covering the
// three operations Replica Builder needs: dispatching the provisioning
// workflow, correlating a dispatch with the run it produced, and polling a
// run's status and job breakdown.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xiyo/replica-builder/internal/logger"
)

const (
	apiBaseURL = "https://api.github.com"
	userAgent  = "Replica-Builder"
	timeout    = 30 * time.Second
)

// Config holds the parameters identifying the target workflow
type Config struct {
	Token      string
	Owner      string
	Repo       string
	WorkflowID string
	Ref        string

	// BaseURL overrides the GitHub API endpoint, used in tests
	BaseURL string
}

// Client talks to the GitHub Actions API for a single owner/repo/workflow
// target. All methods are safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new GitHub Actions client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" || cfg.WorkflowID == "" {
		return nil, fmt.Errorf("owner, repo, and workflow ID are required")
	}
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = apiBaseURL
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.WithFields(map[string]interface{}{
			"owner":    cfg.Owner,
			"repo":     cfg.Repo,
			"workflow": cfg.WorkflowID,
		}),
	}, nil
}

// newRequest builds an API request with the standard GitHub headers
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Dispatch triggers one run of the configured workflow with the given inputs.
// GitHub acknowledges the dispatch without returning a run identifier; the
// new run only appears in the runs listing after a short delay, which is why
// the Resolver exists. The caller decides whether to retry a failed dispatch.
func (c *Client) Dispatch(ctx context.Context, inputs map[string]string) DispatchResult {
	payload, err := json.Marshal(map[string]interface{}{
		"ref":    c.cfg.Ref,
		"inputs": inputs,
	})
	if err != nil {
		return DispatchResult{Success: false, Error: fmt.Sprintf("failed to marshal dispatch payload: %v", err)}
	}

	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", c.cfg.Owner, c.cfg.Repo, c.cfg.WorkflowID)
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return DispatchResult{Success: false, Error: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Error("Workflow dispatch request failed")
		return DispatchResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.log.Info("Workflow dispatched")
		return DispatchResult{Success: true}
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Message == "" {
		errResp.Message = http.StatusText(resp.StatusCode)
	}

	c.log.WithFields(map[string]interface{}{
		"status": resp.StatusCode,
		"error":  errResp.Message,
	}).Error("Workflow dispatch rejected")

	return DispatchResult{
		Success: false,
		Error:   errResp.Message,
		Status:  resp.StatusCode,
	}
}

// ListRecentRuns returns the most recent runs of the configured workflow,
// newest first as GitHub orders them. Upstream failures yield an empty
// listing: the Resolver treats those the same as a run that has not
// materialized yet.
func (c *Client) ListRecentRuns(ctx context.Context, limit int) []WorkflowRun {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs?per_page=%d", c.cfg.Owner, c.cfg.Repo, c.cfg.WorkflowID, limit)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Debug("Runs listing request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status", resp.StatusCode).Debug("Runs listing returned non-success")
		return nil
	}

	var data runsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.log.WithError(err).Debug("Failed to decode runs listing")
		return nil
	}
	return data.WorkflowRuns
}

// GetRun fetches the current state of a single run. A nil result means the
// state is temporarily unknown (transient upstream failure), not that the
// run is gone; callers keep polling.
func (c *Client) GetRun(ctx context.Context, runID int64) *WorkflowRun {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", c.cfg.Owner, c.cfg.Repo, runID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Debug("Run fetch request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(map[string]interface{}{
			"run_id": runID,
			"status": resp.StatusCode,
		}).Debug("Run fetch returned non-success")
		return nil
	}

	var run WorkflowRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		c.log.WithError(err).Debug("Failed to decode run")
		return nil
	}
	return &run
}

// ListJobs fetches the ordered job breakdown of a run. Empty on upstream
// failure, same contract as GetRun.
func (c *Client) ListJobs(ctx context.Context, runID int64) []WorkflowJob {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/jobs", c.cfg.Owner, c.cfg.Repo, runID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Debug("Jobs listing request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(map[string]interface{}{
			"run_id": runID,
			"status": resp.StatusCode,
		}).Debug("Jobs listing returned non-success")
		return nil
	}

	var data jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		c.log.WithError(err).Debug("Failed to decode jobs listing")
		return nil
	}
	return data.Jobs
}

// FetchRunStatus performs the run and jobs reads concurrently. Every call
// re-fetches from upstream; there is no local cache.
func (c *Client) FetchRunStatus(ctx context.Context, runID int64) (*WorkflowRun, []WorkflowJob) {
	var (
		wg   sync.WaitGroup
		run  *WorkflowRun
		jobs []WorkflowJob
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		run = c.GetRun(ctx, runID)
	}()
	go func() {
		defer wg.Done()
		jobs = c.ListJobs(ctx, runID)
	}()
	wg.Wait()

	return run, jobs
}

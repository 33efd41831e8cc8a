package github

import "time"

// Status represents the in-flight state of a workflow run or job
type Status string

// Workflow run and job statuses as reported by the GitHub Actions API
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusWaiting    Status = "waiting"
	StatusRequested  Status = "requested"
	StatusPending    Status = "pending"
)

// Conclusion represents the terminal outcome of a completed run, job, or step.
// It is only meaningful once the status is completed; empty means not yet
// concluded.
type Conclusion string

// Workflow conclusions as reported by the GitHub Actions API
const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
)

// WorkflowRun mirrors a remote workflow run. It is created remotely at
// dispatch time, re-fetched on every poll, and becomes immutable once its
// status is completed.
type WorkflowRun struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	Conclusion   Conclusion `json:"conclusion"`
	HTMLURL      string     `json:"html_url"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
}

// IsCompleted reports whether the run has reached its terminal status
func (r *WorkflowRun) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// WorkflowStep is a single named step within a workflow job
type WorkflowStep struct {
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Conclusion  Conclusion `json:"conclusion"`
	Number      int        `json:"number"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// WorkflowJob is one job of a run together with its ordered steps. Jobs are
// a read projection: never mutated locally, always replaced wholesale on
// each poll.
type WorkflowJob struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Conclusion  Conclusion     `json:"conclusion"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	Steps       []WorkflowStep `json:"steps"`
}

// runsResponse is the wire shape of the workflow runs listing
type runsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// jobsResponse is the wire shape of the run jobs listing
type jobsResponse struct {
	TotalCount int           `json:"total_count"`
	Jobs       []WorkflowJob `json:"jobs"`
}

// errorResponse is the wire shape of a GitHub API error body
type errorResponse struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

// DispatchResult reports the outcome of a workflow dispatch. Status carries
// the upstream HTTP status code on failure; zero means the request never
// reached GitHub.
type DispatchResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// Repo is the subset of a GitHub repository used for site discovery
type Repo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	HTMLURL   string    `json:"html_url"`
}

// actionsVariable is a repository-level Actions variable
type actionsVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// variablesResponse is the wire shape of the Actions variables listing
type variablesResponse struct {
	Variables []actionsVariable `json:"variables"`
}

// DeployedSite describes one provisioned documentation site discovered from
// the owner's template repositories
type DeployedSite struct {
	Subdomain string    `json:"subdomain"`
	URL       string    `json:"url"`
	RepoName  string    `json:"repoName"`
	RepoURL   string    `json:"repoUrl"`
	CreatedAt time.Time `json:"createdAt"`
	Template  string    `json:"template"`
}

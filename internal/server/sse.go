package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xiyo/replica-builder/internal/github"
	"github.com/xiyo/replica-builder/internal/logger"
	"github.com/xiyo/replica-builder/internal/stream"
)

// newSession builds a streaming session for the given subdomain's build.
func (s *Server) newSession(subdomain string) *stream.Session {
	resolver := github.NewResolver(
		s.gh,
		s.cfg.Resolver.Window,
		s.cfg.Resolver.MaxAttempts,
		s.cfg.Resolver.Interval,
	)
	deployURL := fmt.Sprintf("https://%s.%s", subdomain, s.cfg.BaseDomain)
	return stream.NewSession(resolver, s.gh, s.cfg.Stream.PollInterval, deployURL)
}

// workflowStatusHandler streams build status over Server-Sent Events. Each
// session event is written as one `data:` frame. The stream ends after the
// terminal event, or when the client disconnects.
func (s *Server) workflowStatusHandler(w http.ResponseWriter, r *http.Request) {
	subdomain := r.PathValue("subdomain")
	if !subdomainPattern.MatchString(subdomain) {
		respondWithError(w, http.StatusBadRequest, "invalid subdomain")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming not supported by response writer")
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := s.newSession(subdomain)
	defer session.Close()

	sink := func(ev stream.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := session.Run(r.Context(), sink); err != nil {
		logger.WithError(err).Debug("Status stream ended")
	}
}

// pollResponse is the pull-poll variant of a stream event. Clients that
// cannot hold an SSE connection call the poll endpoint on their own cadence.
type pollResponse struct {
	Status    string               `json:"status"`
	Run       *github.WorkflowRun  `json:"run,omitempty"`
	Jobs      []github.WorkflowJob `json:"jobs,omitempty"`
	Message   string               `json:"message,omitempty"`
	DeployURL string               `json:"deployUrl,omitempty"`
}

// workflowStatusPollHandler returns a single status observation.
func (s *Server) workflowStatusPollHandler(w http.ResponseWriter, r *http.Request) {
	subdomain := r.PathValue("subdomain")
	if !subdomainPattern.MatchString(subdomain) {
		respondWithError(w, http.StatusBadRequest, "invalid subdomain")
		return
	}

	session := s.newSession(subdomain)
	defer session.Close()

	ev := session.Snapshot(r.Context())
	respondWithJSON(w, http.StatusOK, pollResponse{
		Status:    string(ev.Type),
		Run:       ev.Run,
		Jobs:      ev.Jobs,
		Message:   ev.Message,
		DeployURL: ev.DeployURL,
	})
}

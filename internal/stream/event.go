package stream

import "github.com/xiyo/replica-builder/internal/github"

// EventType classifies a status event emitted to a client
type EventType string

// Event types, in the order a successful session emits them
const (
	EventSearching EventType = "searching"
	EventFound     EventType = "found"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one observation pushed to a connected client. The same shape
// serves both the push stream and the pull-poll endpoint.
type Event struct {
	Type      EventType            `json:"type"`
	Run       *github.WorkflowRun  `json:"run,omitempty"`
	Jobs      []github.WorkflowJob `json:"jobs,omitempty"`
	Message   string               `json:"message,omitempty"`
	DeployURL string               `json:"deployUrl,omitempty"`
}

// Sink receives events for one session, in emission order. A sink error
// means the client can no longer be written to and ends the session.
type Sink func(Event) error

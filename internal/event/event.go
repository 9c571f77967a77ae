// Package event defines the trigger surface of a pipeline run.
package event

import (
	"fmt"
	"strconv"
)

// Type enumerates trigger event kinds.
type Type string

const (
	Push        Type = "push"
	PullRequest Type = "pull_request"
	Dispatch    Type = "dispatch"
	Schedule    Type = "schedule"
)

// Parse converts a user supplied string into a Type.
func Parse(s string) (Type, error) {
	switch Type(s) {
	case Push, PullRequest, Dispatch, Schedule:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown event type: %q", s)
}

// Event describes what triggered a run.
type Event struct {
	Type     Type
	Branch   string // source branch for push, head branch for pull_request
	Ref      string // full ref when known, e.g. refs/heads/main
	Commit   string
	PRNumber int // set only for pull_request events
	RepoURL  string
}

// PRKey returns the pull request number as a path segment.
func (e Event) PRKey() string {
	return strconv.Itoa(e.PRNumber)
}

// String renders a short human readable description for logs.
func (e Event) String() string {
	switch e.Type {
	case PullRequest:
		return fmt.Sprintf("pull_request #%d (%s)", e.PRNumber, e.Branch)
	case Push:
		return fmt.Sprintf("push to %s", e.Branch)
	default:
		return string(e.Type)
	}
}

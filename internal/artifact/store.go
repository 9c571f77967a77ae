// Package artifact provides named artifact storage between pipeline jobs.
package artifact

import (
	"context"
	"time"
)

// Store moves named directory artifacts between jobs of a run. The artifact
// name is the only contract between producer and consumer.
type Store interface {
	// Upload stores the contents of dir under (runID, name).
	Upload(ctx context.Context, runID, name, dir string) (*Info, error)

	// Download copies the artifact (runID, name) into destDir, creating it.
	// Returns ErrNotFound if the artifact was never uploaded.
	Download(ctx context.Context, runID, name, destDir string) (*Info, error)

	// List returns the artifacts uploaded during a run.
	List(ctx context.Context, runID string) ([]Info, error)

	// Close releases any resources held by the store.
	Close() error
}

// Info describes a stored artifact.
type Info struct {
	Name      string    `json:"name"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned when a named artifact does not exist for a run.
type ErrNotFound struct {
	RunID string
	Name  string
}

func (e ErrNotFound) Error() string {
	return "artifact not found: " + e.Name + " (run " + e.RunID + ")"
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}

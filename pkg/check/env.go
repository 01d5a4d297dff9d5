package check

import (
	"io"

	"github.com/sirupsen/logrus"
)

// StatusReader gives a check read access to the state recorded for it on
// previous runs, e.g. to avoid repeating an identical message when only
// auxiliary details changed.
type StatusReader interface {
	// StatusChanged reports whether newStatus differs from the recorded
	// status of (checkName, key). An unrecorded key counts as changed.
	StatusChanged(checkName, key string, newStatus bool) bool

	// PreviousMetadata returns the metadata recorded for (checkName, key).
	PreviousMetadata(checkName, key string) (map[string]any, bool)
}

// Env carries the collaborators injected into every check factory.
type Env struct {
	Runner CommandRunner
	Status StatusReader
	Logger *logrus.Logger
}

func (e Env) withDefaults() Env {
	if e.Runner == nil {
		e.Runner = ExecRunner{}
	}
	if e.Status == nil {
		e.Status = noStatus{}
	}
	if e.Logger == nil {
		e.Logger = logrus.New()
		e.Logger.SetOutput(io.Discard)
	}
	return e
}

// noStatus treats every key as never seen.
type noStatus struct{}

func (noStatus) StatusChanged(string, string, bool) bool { return true }

func (noStatus) PreviousMetadata(string, string) (map[string]any, bool) { return nil, false }

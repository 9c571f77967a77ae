package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyJob        = "job"
	KeyStep       = "step"
	KeyEvent      = "event"
	KeyBranch     = "branch"
	KeyPR         = "pr"
	KeyArtifact   = "artifact"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyName       = "name"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Job(name string) slog.Attr       { return slog.String(KeyJob, name) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func Event(t string) slog.Attr        { return slog.String(KeyEvent, t) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func PR(n int) slog.Attr              { return slog.Int(KeyPR, n) }
func Artifact(name string) slog.Attr  { return slog.String(KeyArtifact, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

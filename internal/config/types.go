package config

// Pipeline is the root of a pipeline definition file.
type Pipeline struct {
	Name       string            `yaml:"name"`
	MainBranch string            `yaml:"main_branch,omitempty"` // defaults to "main"
	Triggers   TriggerConfig     `yaml:"triggers"`
	Env        map[string]string `yaml:"env,omitempty"`
	Secrets    []string          `yaml:"secrets,omitempty"` // env var names injected into step environments
	Jobs       []Job             `yaml:"jobs"`
	Daemon     *DaemonConfig     `yaml:"daemon,omitempty"`
}

// DaemonConfig tunes daemon mode. All fields are optional.
type DaemonConfig struct {
	Listen    string        `yaml:"listen,omitempty"`     // HTTP listen address, default ":8980"
	SecretEnv string        `yaml:"secret_env,omitempty"` // env var holding the webhook shared secret
	Notify    *NotifyConfig `yaml:"notify,omitempty"`
}

// NotifyConfig configures run event publishing over NATS.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject,omitempty"`
}

// TriggerConfig declares which events start a run.
type TriggerConfig struct {
	Push        *PushTrigger     `yaml:"push,omitempty"`
	PullRequest bool             `yaml:"pull_request,omitempty"`
	Dispatch    bool             `yaml:"dispatch,omitempty"`
	Schedule    *ScheduleTrigger `yaml:"schedule,omitempty"`
}

// PushTrigger restricts push events to a branch list. Empty means any branch.
type PushTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
}

// ScheduleTrigger runs the pipeline on a fixed interval (daemon mode only).
type ScheduleTrigger struct {
	Every string `yaml:"every"` // Go duration string, e.g. "24h"
}

// Job is an independently gated unit of ordered steps.
type Job struct {
	Name  string            `yaml:"name"`
	If    string            `yaml:"if,omitempty"` // gate expression, e.g. "event == pull_request"
	Needs []string          `yaml:"needs,omitempty"`
	Env   map[string]string `yaml:"env,omitempty"`
	Matrix *Matrix          `yaml:"matrix,omitempty"`
	Steps []Step            `yaml:"steps"`
}

// Matrix enumerates parameter combinations a job fans out over.
type Matrix struct {
	Vars    map[string][]string `yaml:"vars,omitempty"`
	Include []map[string]string `yaml:"include,omitempty"`
	Exclude []map[string]string `yaml:"exclude,omitempty"`
}

// Step is either a shell invocation (Run) or a builtin action (Uses).
type Step struct {
	Name    string            `yaml:"name,omitempty"`
	If      string            `yaml:"if,omitempty"`
	Run     string            `yaml:"run,omitempty"`
	Uses    StepKind          `yaml:"uses,omitempty"`
	With    map[string]string `yaml:"with,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`
}

// StepKind names a builtin action.
type StepKind string

const (
	StepCheckout         StepKind = "checkout"
	StepBuildDocs        StepKind = "build-docs"
	StepUploadArtifact   StepKind = "upload-artifact"
	StepDownloadArtifact StepKind = "download-artifact"
	StepDeployPages      StepKind = "deploy-pages"
	StepNoIndex          StepKind = "noindex"
	StepPreviewBucket    StepKind = "preview-bucket"
)

// builtinKinds is the set of accepted `uses:` values.
var builtinKinds = map[StepKind]bool{
	StepCheckout:         true,
	StepBuildDocs:        true,
	StepUploadArtifact:   true,
	StepDownloadArtifact: true,
	StepDeployPages:      true,
	StepNoIndex:          true,
	StepPreviewBucket:    true,
}

// Label returns the step's display name, falling back to its command or kind.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return string(s.Uses)
	}
	if len(s.Run) > 40 {
		return s.Run[:40] + "..."
	}
	return s.Run
}

// FindJob returns the job with the given name, or nil.
func (p *Pipeline) FindJob(name string) *Job {
	for i := range p.Jobs {
		if p.Jobs[i].Name == name {
			return &p.Jobs[i]
		}
	}
	return nil
}

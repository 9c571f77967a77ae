package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// CommandRunner executes a step's shell script. Tests inject a fake.
type CommandRunner interface {
	Run(ctx context.Context, script, dir string, env []string) error
}

// ShellRunner runs scripts through `sh -c`, streaming output to the parent
// process. A non-zero exit fails the step, which halts the job.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, script, dir string, env []string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", script) // #nosec G204 - script comes from the pipeline definition
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("step command failed: %w", err)
	}
	return nil
}

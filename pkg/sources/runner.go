package sources

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner executes external commands. The git backend depends on
// this interface only, so tests substitute a fake runner and a future
// swap to an embedded git library would not touch resolver logic.
type CommandRunner interface {
	Run(ctx context.Context, cwd, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands through os/exec with captured output.
type ExecRunner struct{}

// Run executes name with args in cwd and returns captured stdout/stderr.
func (ExecRunner) Run(ctx context.Context, cwd, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

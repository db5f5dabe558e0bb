package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Output carries both streams of a finished process so callers can log
// stderr without re-running anything.
type Output struct {
	Stdout string
	Stderr string
}

// Runner isolates external-process invocation behind an interface so
// extraction and video tooling can be stubbed in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

type cmdRunner struct{}

func NewRunner() Runner {
	return cmdRunner{}
}

func (cmdRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = err.Error()
		}
		return out, fmt.Errorf("%s failed: %s", name, detail)
	}
	return out, nil
}

// Package dbt invokes the external transform project as a subprocess.
package dbt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"TelegramWarehouse/internal/ports"
)

const (
	defaultBinary  = "dbt"
	defaultTimeout = 30 * time.Minute
	maxLoggedBytes = 2048
)

// Options locates the transform project.
type Options struct {
	Binary      string
	ProjectDir  string
	ProfilesDir string
	Target      string
	Timeout     time.Duration
}

// Runner executes dbt sub-commands and captures their output.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

var _ ports.Transformer = (*Runner)(nil)

// NewRunner builds a runner; an empty binary means "dbt" on PATH.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	if opts.Binary == "" {
		opts.Binary = defaultBinary
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, logger: logger.With("component", "dbt")}
}

// Run executes one sub-command. A non-zero exit is reported through
// CommandResult.ExitCode with a nil error; errors mean the process could not
// be started or was killed by the timeout.
func (r *Runner) Run(ctx context.Context, command ports.TransformCommand, selectors ...string) (ports.CommandResult, error) {
	args, err := r.args(command, selectors)
	if err != nil {
		return ports.CommandResult{Command: command, ExitCode: -1}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.opts.Binary, args...)
	cmd.Dir = r.opts.ProjectDir
	cmd.Env = os.Environ()
	if r.opts.ProfilesDir != "" {
		cmd.Env = append(cmd.Env, "DBT_PROFILES_DIR="+r.opts.ProfilesDir)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	started := time.Now()
	runErr := cmd.Run()
	result := ports.CommandResult{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			return result, fmt.Errorf("dbt %s timed out after %s", command, r.opts.Timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			result.ExitCode = -1
			return result, fmt.Errorf("start dbt %s: %w", command, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Info("dbt command finished",
		"command", command,
		"args", strings.Join(args, " "),
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)
	if result.ExitCode != 0 {
		r.logger.Warn("dbt command failed", "command", command, "stderr", tail(result.Stderr), "stdout", tail(result.Stdout))
	}
	return result, nil
}

func (r *Runner) args(command ports.TransformCommand, selectors []string) ([]string, error) {
	var args []string
	switch command {
	case ports.TransformRun:
		args = []string{"run"}
	case ports.TransformTest:
		args = []string{"test"}
	case ports.TransformDocs:
		args = []string{"docs", "generate"}
	default:
		return nil, fmt.Errorf("unknown transform command %q", command)
	}

	if r.opts.Target != "" {
		args = append(args, "--target", r.opts.Target)
	}
	if len(selectors) > 0 {
		args = append(args, "--select")
		args = append(args, selectors...)
	}
	return args, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLoggedBytes {
		return s
	}
	return s[len(s)-maxLoggedBytes:]
}

// Package collector wraps the external discovery tools the scan pipeline
// shells out to: subfinder for subdomain enumeration and httpx for HTTP
// probing. Both emit JSONL on stdout; the wrappers parse it into typed
// results and tolerate the occasional malformed line.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// CommandConfig describes one external tool invocation.
type CommandConfig struct {
	// Binary is the name or path of the tool to execute.
	Binary string

	// Args are the command-line arguments.
	Args []string

	// Stdin is piped to the tool's stdin when non-empty.
	Stdin []byte

	// Timeout bounds the invocation. Zero means no timeout beyond the
	// caller's context.
	Timeout time.Duration
}

// CommandOutput captures what the tool produced.
type CommandOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// RunCommand executes an external tool and captures its output. A non-zero
// exit code is not an error here; callers decide what partial failures mean
// (httpx exits non-zero when some probes fail but still emits results).
// Only execution faults return an error: binary missing, timeout, cancel.
func RunCommand(ctx context.Context, cfg CommandConfig) (*CommandOutput, error) {
	const op = "collector.RunCommand"

	if cfg.Binary == "" {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("binary is required"))
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(cfg.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(cfg.Stdin)
	}

	start := time.Now()
	err := cmd.Run()

	out := &CommandOutput{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, exposuregraph.NewTimeoutError(op,
				fmt.Errorf("%s timed out after %v", cfg.Binary, cfg.Timeout))
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}

		return out, exposuregraph.NewExecutionError(op,
			fmt.Errorf("failed to run %s: %w", cfg.Binary, err))
	}

	return out, nil
}

// BinaryExists reports whether a tool is available in PATH.
func BinaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

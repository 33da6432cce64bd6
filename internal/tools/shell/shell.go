// Package shell implements the shell tool: guarded command execution
// in the workspace with a process-group kill on timeout.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/guard"
	"github.com/tessel-ai/tessel/pkg/models"
)

const outputCap = 32 * 1024

type params struct {
	Command        string `json:"command"`
	TimeoutSeconds *int   `json:"timeout_seconds,omitempty"`
}

// Tool is the shell executor.
type Tool struct{}

// New creates the shell tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "shell" }

func (t *Tool) Description() string {
	return "Run a shell command in the workspace. Output is captured; long commands should set timeout_seconds."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command line to run"},
			"timeout_seconds": {"type": "integer", "description": "Kill the command after this many seconds"}
		},
		"required": ["command"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsShellEnabled() }

func (t *Tool) Execute(ctx context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if strings.TrimSpace(p.Command) == "" {
		return models.Fail(models.FailureValidation, "command is required"), nil
	}

	if tc.Snapshot.IsCommandInjectionDetectionEnabled() {
		if denied, _ := guard.CheckCommand(p.Command); denied {
			return models.Fail(models.FailurePolicyDenied, "blocked"), nil
		}
	}

	cfg := tc.Snapshot.Config().Tools
	timeout := clampTimeout(p.TimeoutSeconds, cfg.ShellMaxTimeoutSeconds)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command("/bin/sh", "-c", p.Command)
	cmd.Dir = tc.Snapshot.Workspace()
	cmd.Env = filterEnv(os.Environ(), cfg.ShellEnvWhitelist)
	// Own process group so a timeout kills the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return models.Fail(models.FailureInternalError, "start failed: "+err.Error()), nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return models.Fail(models.FailureTimeout,
			fmt.Sprintf("command timed out after %s", timeout)), nil
	case err := <-done:
		output := truncate(out.String())
		if err != nil {
			return &models.ToolResult{
				Success:     false,
				Output:      output,
				Error:       fmt.Sprintf("command failed: %v", err),
				FailureKind: models.FailureUpstreamError,
			}, nil
		}
		if output == "" {
			output = "(no output)"
		}
		return models.OK(output), nil
	}
}

// clampTimeout normalizes a requested timeout to [1, max] seconds. An
// absent request means the max; an explicit value below 1 becomes 1.
func clampTimeout(requested *int, maxSeconds int) time.Duration {
	if maxSeconds <= 0 {
		maxSeconds = 120
	}
	seconds := maxSeconds
	if requested != nil {
		seconds = *requested
		if seconds < 1 {
			seconds = 1
		}
		if seconds > maxSeconds {
			seconds = maxSeconds
		}
	}
	return time.Duration(seconds) * time.Second
}

// filterEnv keeps only whitelisted variables. PATH is always kept;
// LD_PRELOAD is always stripped.
func filterEnv(environ, whitelist []string) []string {
	allowed := map[string]bool{"PATH": true}
	for _, name := range whitelist {
		allowed[name] = true
	}
	delete(allowed, "LD_PRELOAD")

	var out []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "LD_PRELOAD" {
			continue
		}
		if allowed[name] {
			out = append(out, kv)
		}
	}
	return out
}

func truncate(s string) string {
	if len(s) <= outputCap {
		return s
	}
	return s[:outputCap] + "… (truncated)"
}

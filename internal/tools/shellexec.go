package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"sync"
	"time"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// ShellExecTool implements "shell_exec". On timeout the
// child process is NOT killed — the model decides whether to wait longer
// or issue a follow-up kill command — so partial output and the child's
// pid are returned instead. Each call runs independently; the Agent Loop's
// tool batch already dispatches multiple calls concurrently, so this body
// has no concurrency logic of its own beyond not blocking other calls.
type ShellExecTool struct {
	defaultTimeout time.Duration

	mu      sync.Mutex
	running map[int]*runningCmd
}

type runningCmd struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	stderr *lockedBuffer
}

// lockedBuffer is a bytes.Buffer safe for one writer and one reader on
// different goroutines: the copier exec.Cmd spawns for a non-file Stdout
// keeps writing after a timeout or cancellation returns early.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewShellExecTool creates the tool.
func NewShellExecTool(defaultTimeout time.Duration) *ShellExecTool {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &ShellExecTool{defaultTimeout: defaultTimeout, running: make(map[int]*runningCmd)}
}

func (t *ShellExecTool) Name() string { return "shell_exec" }

func (t *ShellExecTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Run a shell command. On timeout the process keeps running; partial output and its pid are returned.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"command":          strProp("Shell command to execute."),
			"timeout":          intProp("Timeout in seconds (default 30)."),
			"working_directory": strProp("Working directory for the command."),
		}, "command"),
	}
}

type shellExecArgs struct {
	Command          string `json:"command"`
	Timeout          int    `json:"timeout"`
	WorkingDirectory string `json:"working_directory"`
}

type shellExecResult struct {
	models.ToolResult
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	ExitCode   int     `json:"exit_code"`
	DurationMS int64   `json:"duration_ms"`
	PID        int     `json:"pid,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
}

func (t *ShellExecTool) Execute(ctx context.Context, args json.RawMessage, _ toolkit.CallContext) (any, error) {
	var a shellExecArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return shellExecResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if a.Command == "" {
		return shellExecResult{ToolResult: models.ToolResult{Success: false, Error: "command is required"}}, nil
	}

	timeout := t.defaultTimeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout) * time.Second
	}

	cmd := exec.Command("/bin/sh", "-c", a.Command)
	if a.WorkingDirectory != "" {
		cmd.Dir = a.WorkingDirectory
	}
	stdout := &lockedBuffer{}
	stderr := &lockedBuffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return shellExecResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		return shellExecResult{
			ToolResult: models.ToolResult{Success: exitCode == 0},
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			ExitCode:   exitCode,
			DurationMS: time.Since(start).Milliseconds(),
		}, nil

	case <-timer.C:
		pid := t.track(cmd, stdout, stderr)
		return shellExecResult{
			ToolResult: models.ToolResult{Success: false, Error: "command timed out; process left running"},
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMS: time.Since(start).Milliseconds(),
			PID:        pid,
			TimedOut:   true,
		}, nil

	case <-ctx.Done():
		// Same contract as the timeout branch: the child keeps running,
		// so return its pid and whatever it wrote so far.
		pid := t.track(cmd, stdout, stderr)
		return shellExecResult{
			ToolResult: models.ToolResult{Success: false, Error: "cancelled; process left running"},
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMS: time.Since(start).Milliseconds(),
			PID:        pid,
		}, nil
	}
}

// track records a still-running child in the registry and returns its pid.
func (t *ShellExecTool) track(cmd *exec.Cmd, stdout, stderr *lockedBuffer) int {
	pid := cmd.Process.Pid
	t.mu.Lock()
	t.running[pid] = &runningCmd{cmd: cmd, stdout: stdout, stderr: stderr}
	t.mu.Unlock()
	return pid
}

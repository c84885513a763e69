// Package bridge runs conversational turns against an external agent
// process. Each forwarded user message becomes one invocation of the agent
// CLI; the agent's reply is captured from stdout.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultCommand is the agent CLI invoked for each turn.
	DefaultCommand = "openclaw"

	// DefaultTimeout bounds one conversational turn.
	DefaultTimeout = 120 * time.Second
)

// Config configures an Executor.
type Config struct {
	// Command is the agent binary. Default is DefaultCommand.
	Command string

	// Agent optionally selects a named agent (passed as --agent).
	Agent string

	// Timeout bounds one turn. Default is DefaultTimeout.
	Timeout time.Duration

	// Logger is used for logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Executor runs one agent turn per message.
type Executor struct {
	command string
	agent   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		command: command,
		agent:   cfg.Agent,
		timeout: timeout,
		logger:  logger,
	}
}

// Run sends one user message to the agent and returns its response text.
//
// If the agent binary is not installed, the message is echoed back so the
// rest of the pipeline stays exercisable.
func (e *Executor) Run(ctx context.Context, sessionID, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{"agent", "--session-id", sessionID, "-m", text}
	if e.agent != "" {
		args = append(args, "--agent", e.agent)
	}

	out, err := exec.CommandContext(ctx, e.command, args...).Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			e.logger.Warn("agent binary not found, echoing message back", "command", e.command)
			return "[echo] " + text, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("bridge: agent turn failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("bridge: agent turn failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

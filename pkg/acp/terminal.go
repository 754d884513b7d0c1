package acp

import (
	"context"
	"fmt"
)

// CreateTerminal asks the agent to run a command in a managed terminal
// session.
func (c *Client) CreateTerminal(ctx context.Context, cfg TerminalConfig) (*TerminalInfo, error) {
	if cfg.Command == "" {
		return nil, &ConfigError{Field: "command", Reason: "is required"}
	}
	var result TerminalInfo
	if err := c.Call(ctx, "terminal/create", cfg, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("terminal/create result missing id")
	}
	return &result, nil
}

// TerminalOutput streams a chunk of terminal output to the agent.
// stream is "stdout" or "stderr"; empty defaults to "stdout".
func (c *Client) TerminalOutput(ctx context.Context, terminalID, output, stream string) error {
	if stream == "" {
		stream = "stdout"
	}
	params := map[string]any{
		"id":     terminalID,
		"output": output,
		"stream": stream,
	}
	return c.Notify(ctx, "terminal/output", params)
}

// ReleaseTerminal gives up control of a terminal session.
func (c *Client) ReleaseTerminal(ctx context.Context, terminalID string) error {
	return c.Call(ctx, "terminal/release", map[string]any{"id": terminalID}, nil)
}

// WaitForTerminalExit blocks until the terminal's process exits. Uses a
// long deadline: the command may legitimately run for minutes.
func (c *Client) WaitForTerminalExit(ctx context.Context, terminalID string) (*TerminalExit, error) {
	var result TerminalExit
	err := c.CallTimeout(ctx, "terminal/wait_for_exit", map[string]any{"id": terminalID}, &result, TerminalExitTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// KillTerminal terminates the terminal's process without releasing the
// session; WaitForTerminalExit still reports the final status.
func (c *Client) KillTerminal(ctx context.Context, terminalID string) error {
	return c.Call(ctx, "terminal/kill", map[string]any{"id": terminalID}, nil)
}

package acp

import (
	"context"
	"fmt"
)

// NewSession asks the agent to open a session rooted at cwd. The MCP
// server list may be empty but is always sent.
func (c *Client) NewSession(ctx context.Context, cwd string, mcpServers []MCPServer) (*NewSessionResult, error) {
	if mcpServers == nil {
		mcpServers = []MCPServer{}
	}
	params := map[string]any{
		"cwd":        cwd,
		"mcpServers": mcpServers,
	}
	var result NewSessionResult
	if err := c.Call(ctx, "session/new", params, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("session/new result missing sessionId")
	}
	return &result, nil
}

// LoadSession resumes a previously created session.
func (c *Client) LoadSession(ctx context.Context, sessionID, cwd string) error {
	params := map[string]any{
		"sessionId": sessionID,
		"cwd":       cwd,
	}
	return c.Call(ctx, "session/load", params, nil)
}

// Prompt sends one user turn and blocks until the agent finishes it.
// Streaming output arrives separately as session/update notifications;
// the returned result only carries the stop reason.
func (c *Client) Prompt(ctx context.Context, sessionID string, blocks ...ContentBlock) (*PromptResult, error) {
	params := map[string]any{
		"sessionId": sessionID,
		"prompt":    blocks,
	}
	var result PromptResult
	if err := c.CallTimeout(ctx, "session/prompt", params, &result, PromptTimeout); err != nil {
		return nil, err
	}
	if result.StopReason == "" {
		return nil, fmt.Errorf("session/prompt result missing stopReason")
	}
	return &result, nil
}

// SetMode switches the session's operating mode.
func (c *Client) SetMode(ctx context.Context, sessionID, mode string) error {
	params := map[string]any{
		"sessionId": sessionID,
		"mode":      mode,
	}
	return c.Call(ctx, "session/set_mode", params, nil)
}

// CancelSession asks the agent to stop the session's current turn.
// Fire-and-forget: the prompt call observes the cancellation through
// its stop reason.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	return c.Notify(ctx, "session/cancel", map[string]any{"sessionId": sessionID})
}

// SendSessionUpdate emits a session/update notification.
func (c *Client) SendSessionUpdate(ctx context.Context, sessionID string, update SessionUpdate) error {
	params := map[string]any{
		"sessionId": sessionID,
		"update":    update,
	}
	return c.Notify(ctx, "session/update", params)
}

type permissionParams struct {
	SessionID   string `json:"sessionId"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// RequestPermission asks the agent-side user to approve an action.
func (c *Client) RequestPermission(ctx context.Context, sessionID string, req PermissionRequest) (*PermissionResult, error) {
	params := permissionParams{
		SessionID:   sessionID,
		Action:      req.Action,
		Description: req.Description,
	}
	var result PermissionResult
	if err := c.Call(ctx, "session/request_permission", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

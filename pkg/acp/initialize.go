package acp

import (
	"context"
	"encoding/json"
	"fmt"
)

type initializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientInfo         ClientInfo         `json:"clientInfo"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
}

// Initialize performs the capability handshake. It must be the first
// request on a fresh channel.
func (c *Client) Initialize(ctx context.Context, info ClientInfo, caps ClientCapabilities) (*InitializeResult, error) {
	params := initializeParams{
		ProtocolVersion:    ProtocolVersion,
		ClientInfo:         info,
		ClientCapabilities: caps,
	}
	var result InitializeResult
	if err := c.Call(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}
	if result.ProtocolVersion == 0 {
		return nil, fmt.Errorf("initialize result missing protocolVersion")
	}
	return &result, nil
}

// Authenticate presents a token to the agent. The result shape is
// agent-defined and returned raw.
func (c *Client) Authenticate(ctx context.Context, token string) (json.RawMessage, error) {
	params := map[string]string{"token": token}
	var result json.RawMessage
	if err := c.Call(ctx, "authenticate", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

package acp

import "encoding/json"

// ProtocolVersion is the ACP protocol revision this client speaks.
const ProtocolVersion = 1

// ClientInfo identifies the client to the agent during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// FSCapabilities advertises which filesystem callbacks the client will
// serve for the agent.
type FSCapabilities struct {
	ReadTextFile  bool `json:"readTextFile,omitempty"`
	WriteTextFile bool `json:"writeTextFile,omitempty"`
}

// TerminalCapabilities advertises which terminal callbacks the client
// will serve.
type TerminalCapabilities struct {
	Create      bool `json:"create,omitempty"`
	Output      bool `json:"output,omitempty"`
	Release     bool `json:"release,omitempty"`
	WaitForExit bool `json:"waitForExit,omitempty"`
	Kill        bool `json:"kill,omitempty"`
}

// ClientCapabilities is sent in initialize.
type ClientCapabilities struct {
	FS       *FSCapabilities       `json:"fs,omitempty"`
	Terminal *TerminalCapabilities `json:"terminal,omitempty"`
}

// AgentInfo identifies the agent.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the agent's half of the handshake. Capabilities
// are kept raw: the set of agent capability keys is open-ended and the
// core does not interpret them.
type InitializeResult struct {
	ProtocolVersion   int             `json:"protocolVersion"`
	AgentInfo         AgentInfo       `json:"agentInfo"`
	AgentCapabilities json.RawMessage `json:"agentCapabilities,omitempty"`
	AuthMethods       json.RawMessage `json:"authMethods,omitempty"`
}

// ContentBlock is one element of a prompt or streamed agent message.
// Only text blocks are modeled; other block types pass through Extra.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text returns a text content block.
func Text(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// MCPServer describes an MCP server the agent should connect to for a
// session.
type MCPServer struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// NewSessionResult carries the agent-assigned session id.
type NewSessionResult struct {
	SessionID string          `json:"sessionId"`
	Modes     json.RawMessage `json:"modes,omitempty"`
}

// Stop reasons reported by session/prompt.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
	StopReasonRefusal   = "refusal"
	StopReasonCancelled = "cancelled"
)

// PromptResult is the terminal state of one prompt turn.
type PromptResult struct {
	StopReason string `json:"stopReason"`
}

// SessionUpdate is the payload of a session/update notification.
type SessionUpdate struct {
	SessionUpdate string        `json:"sessionUpdate"`
	Content       *ContentBlock `json:"content,omitempty"`
}

// PermissionRequest describes an action the agent wants approved.
type PermissionRequest struct {
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// PermissionResult is the user's decision.
type PermissionResult struct {
	ID      string `json:"id,omitempty"`
	Granted bool   `json:"granted"`
}

// TerminalInfo identifies a terminal session created by terminal/create.
type TerminalInfo struct {
	ID string `json:"id"`
}

// TerminalExit reports how a terminal process ended.
type TerminalExit struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

// TerminalConfig describes the command to run in a new terminal.
type TerminalConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Package jsonrpc implements the JSON-RPC 2.0 envelope used by the Agent
// Client Protocol: requests, notifications and responses framed as one
// JSON object per line.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol version this package speaks.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes. Application-defined codes must fall
// outside the reserved -32768..-32000 range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is one of *Request, *Notification or *Response.
type Message interface {
	message()
}

// Request expects exactly one Response carrying the same ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a request without an ID. It never produces a response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error, never both and never
// neither. Parse enforces this on inbound messages and the constructors
// enforce it on outbound ones.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object. It implements the error interface
// so an error response can be surfaced to callers directly.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func (*Request) message()      {}
func (*Notification) message() {}
func (*Response) message()     {}

// ParseError reports a line that could not be decoded or classified as a
// JSON-RPC message. The pump loop logs these and keeps reading.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid jsonrpc message: %s", e.Reason)
}

func parseErr(line []byte, reason string) *ParseError {
	const maxQuoted = 256
	quoted := string(line)
	if len(quoted) > maxQuoted {
		quoted = quoted[:maxQuoted] + "…"
	}
	return &ParseError{Line: quoted, Reason: reason}
}

// Parse decodes one line of agent output and classifies it. A field named
// "method" makes the message a request (with "id") or a notification
// (without). Otherwise "id" plus exactly one of "result"/"error" makes it
// a response. Anything else is a *ParseError; Parse never panics, so the
// read pump can log the line and move on. A missing or mismatched
// "jsonrpc" field is tolerated on input.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, parseErr(line, "empty line")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, parseErr(line, fmt.Sprintf("not a JSON object: %v", err))
	}

	_, hasID := probe["id"]
	_, hasMethod := probe["method"]
	_, hasResult := probe["result"]
	_, hasError := probe["error"]

	switch {
	case hasMethod && hasID:
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, parseErr(line, fmt.Sprintf("malformed request: %v", err))
		}
		return &req, nil
	case hasMethod:
		var notif Notification
		if err := json.Unmarshal(line, &notif); err != nil {
			return nil, parseErr(line, fmt.Sprintf("malformed notification: %v", err))
		}
		return &notif, nil
	case hasID:
		if hasResult && hasError {
			return nil, parseErr(line, "response carries both result and error")
		}
		if !hasResult && !hasError {
			return nil, parseErr(line, "response carries neither result nor error")
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, parseErr(line, fmt.Sprintf("malformed response: %v", err))
		}
		if resp.Error == nil && resp.Result == nil {
			// "error": null decodes to a nil error; a result of JSON
			// null stays present as the raw bytes "null".
			return nil, parseErr(line, "response carries neither result nor error")
		}
		return &resp, nil
	default:
		return nil, parseErr(line, "object has neither method nor id")
	}
}

// NewRequest builds a request. Params may be nil, a json.RawMessage, or
// any marshallable value.
func NewRequest(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a fire-and-forget notification.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewResponse builds a success response. A nil result is encoded as JSON
// null, which still counts as a present result.
func NewResponse(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response. Data may be nil.
func NewErrorResponse(id ID, code int, message string, data any) (*Response, error) {
	rpcErr := &Error{Code: code, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal error data: %w", err)
		}
		rpcErr.Data = raw
	}
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}, nil
}

// Encode serializes a message to a single line of JSON without a trailing
// newline. The transport appends the newline when framing.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode jsonrpc message: %w", err)
	}
	return data, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

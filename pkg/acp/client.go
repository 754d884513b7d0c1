// Package acp drives an external coding agent over the Agent Client
// Protocol: JSON-RPC 2.0, one message per line, across the agent
// subprocess's stdin and stdout. The Channel owns the process and its
// pipes, the Client correlates responses to requests and routes
// agent-initiated traffic, and the typed methods (Initialize, Prompt,
// ReadTextFile, ...) shape parameters and results for the individual
// ACP calls.
package acp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/acp/pkg/jsonrpc"
)

// Client is the correlation engine: it matches asynchronous responses
// from the agent to outstanding requests by id, enforces per-call
// deadlines, and routes agent-initiated traffic to registered handlers.
// It holds a non-owning reference to the channel unless created through
// Connect.
type Client struct {
	ch  *Channel
	log zerolog.Logger

	ids            jsonrpc.IDSource
	defaultTimeout time.Duration
	agentReqBudget time.Duration
	stopGrace      time.Duration
	ownsChannel    bool

	onNotification NotificationHandler
	onRequest      RequestHandler

	pendingMu sync.Mutex
	pending   map[string]*pendingCall

	dispatchDone chan struct{}
}

// pendingCall is one in-flight request. Its resp channel is a
// single-assignment slot: exactly one of a matched response (buffered
// send) or channel closure (close) resolves it; timeout and caller
// cancellation abandon it from the caller's side instead.
type pendingCall struct {
	id        jsonrpc.ID
	method    string
	createdAt time.Time
	resp      chan *jsonrpc.Response
}

// NewClient wraps a running channel. The dispatch loop starts
// immediately and runs until the channel closes.
func NewClient(ch *Channel, opts ...Option) *Client {
	o := applyOptions(opts)
	c := &Client{
		ch:             ch,
		ids:            o.ids,
		defaultTimeout: o.defaultTimeout,
		agentReqBudget: o.agentRequestTimeout,
		stopGrace:      o.stopGrace,
		onNotification: o.onNotification,
		onRequest:      o.onRequest,
		pending:        make(map[string]*pendingCall),
		dispatchDone:   make(chan struct{}),
	}
	c.log = o.log().With().Str("component", "acp-client").Logger()
	go c.dispatchLoop()
	return c
}

// Connect starts a channel for cfg and returns a client that owns it;
// Close stops the process.
func Connect(ctx context.Context, cfg ProcessConfig, opts ...Option) (*Client, error) {
	ch, err := StartChannel(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c := NewClient(ch, opts...)
	c.ownsChannel = true
	return c, nil
}

// Channel returns the underlying process channel.
func (c *Client) Channel() *Channel {
	return c.ch
}

// Close stops the underlying channel if this client owns it (see
// Connect) and waits for the dispatch loop to drain. Closing twice is a
// no-op.
func (c *Client) Close() error {
	if c.ownsChannel {
		c.ch.Stop(c.stopGrace)
		<-c.dispatchDone
	}
	return nil
}

// Call sends a request and blocks until its matched response, the
// default deadline, caller cancellation, or channel closure. On an
// error response the returned error is a *RemoteError. A non-nil out
// receives the unmarshalled result.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	return c.CallTimeout(ctx, method, params, out, c.defaultTimeout)
}

// CallTimeout is Call with an explicit deadline for this one request.
// Expiry abandons only this call: the entry leaves the pending table, a
// late response is logged and dropped, and the channel keeps running.
func (c *Client) CallTimeout(ctx context.Context, method string, params, out any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	id := c.ids.Next()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	pc := &pendingCall{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		resp:      make(chan *jsonrpc.Response, 1),
	}
	if err = c.register(pc); err != nil {
		return err
	}
	defer c.unregister(id)

	if err = c.ch.Send(req); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-pc.resp:
		if !ok {
			return ErrChannelClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err = json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
		return nil
	case <-timer.C:
		c.log.Warn().Str("method", method).Stringer("id", id).Dur("timeout", timeout).
			Msg("Request timed out")
		return &TimeoutError{Method: method, ID: id, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify sends a fire-and-forget notification. It returns once the
// message is written; no reply is ever expected.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	notif, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.ch.Send(notif)
}

func (c *Client) register(pc *pendingCall) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, exists := c.pending[pc.id.Key()]; exists {
		return fmt.Errorf("%w: id %s", ErrDuplicateID, pc.id)
	}
	c.pending[pc.id.Key()] = pc
	return nil
}

func (c *Client) unregister(id jsonrpc.ID) {
	c.pendingMu.Lock()
	delete(c.pending, id.Key())
	c.pendingMu.Unlock()
}

// take removes and returns the pending entry for id, if any. Removal and
// delivery are atomic so a response and a timeout can never both resolve
// the same call.
func (c *Client) take(id jsonrpc.ID) *pendingCall {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	pc := c.pending[id.Key()]
	delete(c.pending, id.Key())
	return pc
}

func (c *Client) pendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// dispatchLoop is the sole consumer of the channel's inbound messages.
// It runs until the channel closes, then fails every still-pending call
// with ErrChannelClosed.
func (c *Client) dispatchLoop() {
	defer close(c.dispatchDone)
	for {
		msg, err := c.ch.Receive(context.Background())
		if err != nil {
			c.failPending()
			return
		}
		switch m := msg.(type) {
		case *jsonrpc.Response:
			c.dispatchResponse(m)
		case *jsonrpc.Notification:
			c.dispatchNotification(m)
		case *jsonrpc.Request:
			// The agent calling back into the client (fs, terminal,
			// permission prompts). Served off the dispatch goroutine so
			// a slow handler cannot stall response correlation.
			go c.serveAgentRequest(m)
		}
	}
}

func (c *Client) dispatchResponse(resp *jsonrpc.Response) {
	pc := c.take(resp.ID)
	if pc == nil {
		// Duplicate, late (post-timeout), or unsolicited.
		c.log.Debug().Stringer("id", resp.ID).Msg("Dropping response with no pending request")
		return
	}
	pc.resp <- resp
}

func (c *Client) dispatchNotification(notif *jsonrpc.Notification) {
	if c.onNotification == nil {
		c.log.Debug().Str("method", notif.Method).Msg("Dropping unhandled agent notification")
		return
	}
	c.onNotification(notif.Method, notif.Params)
}

func (c *Client) serveAgentRequest(req *jsonrpc.Request) {
	var resp *jsonrpc.Response
	var err error
	if c.onRequest == nil {
		c.log.Warn().Str("method", req.Method).Msg("No handler for agent request")
		resp, err = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound,
			fmt.Sprintf("client does not handle %s", req.Method), nil)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.agentReqBudget)
		result, rpcErr := c.onRequest(ctx, req)
		cancel()
		if rpcErr != nil {
			resp = &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Error: rpcErr}
		} else {
			resp, err = jsonrpc.NewResponse(req.ID, result)
		}
	}
	if err != nil {
		c.log.Err(err).Str("method", req.Method).Msg("Failed to build response to agent request")
		resp, _ = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "internal error", nil)
	}
	if resp == nil {
		return
	}
	if err = c.ch.Send(resp); err != nil && !errors.Is(err, ErrChannelClosed) {
		c.log.Err(err).Str("method", req.Method).Msg("Failed to respond to agent request")
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	stale := make([]*pendingCall, 0, len(c.pending))
	for _, pc := range c.pending {
		stale = append(stale, pc)
	}
	clear(c.pending)
	c.pendingMu.Unlock()

	for _, pc := range stale {
		close(pc.resp)
	}
	if len(stale) > 0 {
		c.log.Warn().Int("count", len(stale)).Msg("Channel closed with requests in flight")
	}
}

package acp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/acp/pkg/jsonrpc"
)

const (
	// DefaultTimeout applies to metadata-sized requests (initialize,
	// session/new, fs and terminal bookkeeping calls).
	DefaultTimeout = 60 * time.Second

	// PromptTimeout applies to session/prompt, which can involve many
	// model and tool round-trips.
	PromptTimeout = 5 * time.Minute

	// TerminalExitTimeout applies to terminal/wait_for_exit; commands
	// run by the agent can legitimately take minutes.
	TerminalExitTimeout = 5 * time.Minute

	// DefaultStopGrace is how long Stop waits for the agent to exit
	// after the termination signal before killing it.
	DefaultStopGrace = 5 * time.Second

	defaultReceiveBuffer      = 32
	defaultMaxLineSize        = 32 * 1024 * 1024
	defaultAgentRequestBudget = 15 * time.Minute
)

// NotificationHandler receives agent-initiated notifications such as
// session/update. It runs on the dispatch goroutine and should return
// quickly; hand off to a worker for anything slow.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler serves agent-initiated requests (fs/read_text_file,
// terminal/create, session/request_permission, ...). The returned value
// is marshalled into the response's result; returning a *jsonrpc.Error
// produces an error response instead.
type RequestHandler func(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error)

// Option configures a Channel or Client.
type Option func(*options)

type options struct {
	logger              *zerolog.Logger
	receiveBuffer       int
	maxLineSize         int
	ids                 jsonrpc.IDSource
	defaultTimeout      time.Duration
	stopGrace           time.Duration
	agentRequestTimeout time.Duration
	onNotification      NotificationHandler
	onRequest           RequestHandler
}

func applyOptions(opts []Option) options {
	o := options{
		receiveBuffer:       defaultReceiveBuffer,
		maxLineSize:         defaultMaxLineSize,
		defaultTimeout:      DefaultTimeout,
		stopGrace:           DefaultStopGrace,
		agentRequestTimeout: defaultAgentRequestBudget,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ids == nil {
		o.ids = jsonrpc.NewInt64Source()
	}
	return o
}

func (o *options) log() zerolog.Logger {
	if o.logger == nil {
		return zerolog.Nop()
	}
	return *o.logger
}

// WithLogger sets the diagnostic sink. Without it the channel and client
// are silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithReceiveBuffer sets the inbound message buffer size.
func WithReceiveBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.receiveBuffer = n
		}
	}
}

// WithMaxLineSize caps how large a single agent output line may grow.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// WithIDSource replaces the default monotonic integer id source.
func WithIDSource(src jsonrpc.IDSource) Option {
	return func(o *options) {
		o.ids = src
	}
}

// WithDefaultTimeout replaces the per-request default deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithStopGrace sets how long Close waits for a graceful exit.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.stopGrace = d
		}
	}
}

// WithNotificationHandler registers the sink for agent notifications.
func WithNotificationHandler(fn NotificationHandler) Option {
	return func(o *options) {
		o.onNotification = fn
	}
}

// WithRequestHandler registers the handler for agent-initiated requests.
func WithRequestHandler(fn RequestHandler) Option {
	return func(o *options) {
		o.onRequest = fn
	}
}

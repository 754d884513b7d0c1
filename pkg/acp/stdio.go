package acp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/beeper/acp/pkg/jsonrpc"
)

// ProcessConfig describes how to launch an agent subprocess.
type ProcessConfig struct {
	// Command is the executable to run. Required.
	Command string
	// Args are passed to the executable in order.
	Args []string
	// Cwd is the working directory. Empty means inherit. Must be
	// absolute when set.
	Cwd string
	// Env holds additional or overriding environment variables, merged
	// over the parent environment. Nil inherits the parent environment
	// unchanged.
	Env map[string]string
}

// Validate reports invalid parameters before any process is spawned.
func (cfg *ProcessConfig) Validate() error {
	if cfg.Command == "" {
		return &ConfigError{Field: "command", Reason: "is required"}
	}
	if cfg.Cwd != "" && !filepath.IsAbs(cfg.Cwd) {
		return &ConfigError{Field: "cwd", Reason: "must be an absolute path"}
	}
	return nil
}

func (cfg *ProcessConfig) environ() []string {
	if len(cfg.Env) == 0 {
		return nil // inherit
	}
	env := os.Environ()
	for key, value := range cfg.Env {
		env = append(env, key+"="+value)
	}
	return env
}

// Channel lifecycle states. The path is running → closing → closed;
// closed is terminal.
const (
	stateRunning int32 = iota + 1
	stateClosing
	stateClosed
)

// Channel owns an agent subprocess and its three pipes, and turns the
// byte streams into a duplex channel of JSON-RPC messages: stdout is
// pumped line by line through jsonrpc.Parse into Receive, stderr is
// pumped into the diagnostic logger, and Send serializes messages onto
// stdin one line at a time.
type Channel struct {
	cfg         ProcessConfig
	log         zerolog.Logger
	maxLineSize int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	writeMu sync.Mutex

	inbound chan jsonrpc.Message

	state    atomic.Int32
	stopOnce sync.Once
	stopping chan struct{} // teardown has begun
	pumps    sync.WaitGroup
	procDone chan struct{} // process reaped
	closed   chan struct{} // teardown finished
}

// StartChannel spawns the agent described by cfg and begins pumping its
// streams. Cancelling ctx hard-kills the process; prefer Stop for a
// graceful shutdown.
func StartChannel(ctx context.Context, cfg ProcessConfig, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = cfg.environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	ch := &Channel{
		cfg:         cfg,
		maxLineSize: o.maxLineSize,
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		inbound:     make(chan jsonrpc.Message, o.receiveBuffer),
		stopping:    make(chan struct{}),
		procDone:    make(chan struct{}),
		closed:      make(chan struct{}),
	}
	ch.log = o.log().With().
		Str("component", "acp-channel").
		Str("channel_id", xid.New().String()).
		Str("command", cfg.Command).
		Logger()

	if err = cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, &StartError{Command: cfg.Command, Err: err}
	}
	ch.state.Store(stateRunning)
	ch.log.Debug().Int("pid", cmd.Process.Pid).Msg("Agent process started")

	ch.pumps.Add(2)
	go ch.readPump()
	go ch.stderrPump()
	go ch.reap()
	return ch, nil
}

// Send serializes one message onto the agent's stdin. Safe for
// concurrent use; writes are totally ordered. Returns ErrChannelClosed
// once the channel has left the running state.
func (ch *Channel) Send(msg jsonrpc.Message) error {
	if ch.state.Load() != stateRunning {
		return ErrChannelClosed
	}
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if ch.state.Load() != stateRunning {
		return ErrChannelClosed
	}
	if _, err = ch.stdin.Write(data); err != nil {
		// A write error on the stdin pipe means the agent is gone.
		return fmt.Errorf("%w: stdin write failed: %v", ErrChannelClosed, err)
	}
	return nil
}

// Receive blocks until the stdout pump delivers the next decoded
// message. Messages that arrived before the channel closed are still
// delivered; afterwards Receive returns ErrChannelClosed.
func (ch *Channel) Receive(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg, ok := <-ch.inbound:
		if !ok {
			return nil, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the channel has fully closed: process reaped,
// pumps stopped, pipes released.
func (ch *Channel) Done() <-chan struct{} {
	return ch.closed
}

// Running reports whether Send and Receive are still serviced.
func (ch *Channel) Running() bool {
	return ch.state.Load() == stateRunning
}

// Pid returns the agent's process id, or 0 before start.
func (ch *Channel) Pid() int {
	if ch.cmd.Process == nil {
		return 0
	}
	return ch.cmd.Process.Pid
}

// Stop closes the agent's stdin and asks it to terminate, killing it if
// it has not exited within grace. It returns once the channel is fully
// closed. Calling Stop again (or concurrently) waits for the same
// teardown and is otherwise a no-op.
func (ch *Channel) Stop(grace time.Duration) {
	ch.stopOnce.Do(func() {
		ch.teardown(grace)
	})
	<-ch.closed
}

func (ch *Channel) teardown(grace time.Duration) {
	ch.state.Store(stateClosing)
	close(ch.stopping)

	// Closing stdin is the polite shutdown signal for agents that read
	// until EOF; SIGTERM covers the rest. On platforms without SIGTERM
	// delivery the signal errors and the grace timer handles it.
	// writeMu is deliberately not taken: a Send blocked on a full pipe
	// holds it, and the Close is what unblocks that write.
	_ = ch.stdin.Close()
	if ch.cmd.Process != nil {
		_ = ch.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-ch.procDone:
	case <-time.After(grace):
		ch.log.Warn().Dur("grace", grace).Msg("Agent did not exit in time, killing")
		if ch.cmd.Process != nil {
			_ = ch.cmd.Process.Kill()
		}
		select {
		case <-ch.procDone:
		case <-time.After(2 * time.Second):
			// The process is dead but something (e.g. an inherited
			// grandchild) is holding the pipes open. Force the pumps
			// off them so the reaper can finish.
			_ = ch.stdout.Close()
			_ = ch.stderr.Close()
			<-ch.procDone
		}
	}

	ch.state.Store(stateClosed)
	close(ch.closed)
	ch.log.Debug().Msg("Channel closed")
}

// reap waits for both pumps to drain their pipes, then reaps the
// process. Waiting for the pumps first avoids racing cmd.Wait's pipe
// teardown against the final buffered reads.
func (ch *Channel) reap() {
	ch.pumps.Wait()
	err := ch.cmd.Wait()
	close(ch.procDone)
	if err != nil {
		ch.log.Debug().Err(err).Msg("Agent process exited")
	} else {
		ch.log.Debug().Msg("Agent process exited cleanly")
	}
	// The agent exiting on its own (rather than via Stop) must still
	// drive the channel to closed so pending requests fail over to
	// ErrChannelClosed instead of waiting out their deadlines.
	go ch.Stop(0)
}

func (ch *Channel) readPump() {
	defer ch.pumps.Done()
	defer close(ch.inbound)

	scanner := bufio.NewScanner(ch.stdout)
	// The scanner's token limit is the larger of the buffer capacity and
	// the max argument, so the initial buffer must not exceed the cap.
	scanner.Buffer(make([]byte, 0, min(64*1024, ch.maxLineSize)), ch.maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := jsonrpc.Parse(line)
		if err != nil {
			// One garbled line must not poison the channel.
			ch.log.Warn().Err(err).Msg("Discarding unparsable agent output")
			continue
		}
		select {
		case ch.inbound <- msg:
		case <-ch.stopping:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		// A scanner error (oversized line, torn pipe) cannot be resynced.
		// The child may still be alive, so tear the channel down rather
		// than leaving it half-open with Send still accepting traffic.
		ch.log.Warn().Err(err).Msg("Agent stdout pump stopped, closing channel")
		go ch.Stop(0)
	}
}

func (ch *Channel) stderrPump() {
	defer ch.pumps.Done()

	scanner := bufio.NewScanner(ch.stderr)
	scanner.Buffer(make([]byte, 0, min(64*1024, ch.maxLineSize)), ch.maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// stderr is never protocol-bearing, it goes straight to the log.
		ch.log.Debug().Str("stream", "stderr").Msg(string(line))
	}
}

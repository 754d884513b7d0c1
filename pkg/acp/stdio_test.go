package acp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beeper/acp/pkg/jsonrpc"
)

func TestProcessConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ProcessConfig
		wantField string
	}{
		{name: "valid", cfg: ProcessConfig{Command: "agent"}},
		{name: "valid with cwd", cfg: ProcessConfig{Command: "agent", Cwd: "/tmp"}},
		{name: "missing command", cfg: ProcessConfig{}, wantField: "command"},
		{name: "relative cwd", cfg: ProcessConfig{Command: "agent", Cwd: "work"}, wantField: "cwd"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Field != tc.wantField {
				t.Errorf("field = %q, want %q", cfgErr.Field, tc.wantField)
			}
		})
	}
}

func TestStartChannelValidatesBeforeSpawn(t *testing.T) {
	_, err := StartChannel(context.Background(), ProcessConfig{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestStartChannelCommandNotFound(t *testing.T) {
	_, err := StartChannel(context.Background(), ProcessConfig{Command: "/nonexistent/acp-agent-binary"})
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected *StartError, got %T: %v", err, err)
	}
	if startErr.Command != "/nonexistent/acp-agent-binary" {
		t.Errorf("command = %q", startErr.Command)
	}
	if startErr.Unwrap() == nil {
		t.Error("StartError should wrap the exec error")
	}
}

func TestStopIdempotent(t *testing.T) {
	ch, err := StartChannel(context.Background(), helperConfig(nil))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}

	ch.Stop(2 * time.Second)
	if ch.Running() {
		t.Error("channel still running after Stop")
	}

	// Second Stop must return promptly and not panic.
	done := make(chan struct{})
	go func() {
		ch.Stop(2 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stop did not return")
	}

	if err := ch.Send(mustNotification(t, "session/cancel")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send after Stop: %v", err)
	}
	if _, err := ch.Receive(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Receive after Stop: %v", err)
	}
}

func TestStopKillsStubbornProcess(t *testing.T) {
	ch, err := StartChannel(context.Background(), helperConfig(map[string]string{
		"HELPER_IGNORE_SIGTERM": "1",
	}))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}

	const grace = 200 * time.Millisecond
	start := time.Now()
	ch.Stop(grace)
	elapsed := time.Since(start)

	// Grace period plus a bounded overshoot for the kill and reap.
	if elapsed > grace+3*time.Second {
		t.Fatalf("Stop took %s with a %s grace", elapsed, grace)
	}
	select {
	case <-ch.Done():
	default:
		t.Error("Done() not closed after forced kill")
	}
}

func TestStopReturnsWhileSendBlocked(t *testing.T) {
	ch, err := StartChannel(context.Background(), helperConfig(map[string]string{
		"HELPER_NO_STDIN_READ": "1",
	}))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}

	// Far more than a pipe buffer, so the write parks inside Send with
	// writeMu held until teardown closes stdin out from under it.
	notif, err := jsonrpc.NewNotification("session/update", map[string]string{
		"padding": strings.Repeat("x", 4<<20),
	})
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	sendErr := make(chan error, 1)
	go func() { sendErr <- ch.Send(notif) }()
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		ch.Stop(200 * time.Millisecond)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a Send was blocked on a full stdin pipe")
	}

	select {
	case err := <-sendErr:
		if err == nil {
			t.Error("blocked Send returned nil after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Send never returned")
	}
}

func TestOversizedLineClosesChannel(t *testing.T) {
	ch, err := StartChannel(context.Background(), helperConfig(map[string]string{
		"HELPER_WRITE_LONG_LINE": "1",
	}), WithMaxLineSize(1024))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}
	defer ch.Stop(time.Second)

	// The 8 KB line overruns the 1 KiB cap, which kills the scanner; the
	// child is still alive, so only a full teardown can close the channel.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ch.Receive(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Receive after oversized line: %v", err)
	}
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after the stdout pump died")
	}
	if ch.Running() {
		t.Error("Running() still true after the stdout pump died")
	}
	if err := ch.Send(mustNotification(t, "session/cancel")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send after pump death: %v", err)
	}
}

func TestChannelClosesWhenChildExits(t *testing.T) {
	ch, err := StartChannel(context.Background(), helperConfig(nil))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}
	defer ch.Stop(time.Second)

	if err := ch.Send(mustNotification(t, "die")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ch.Receive(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Receive after child exit: %v", err)
	}
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after child exit")
	}
}

func TestStderrGoesToLogger(t *testing.T) {
	var logBuf safeBuffer
	ch, err := StartChannel(context.Background(), helperConfig(map[string]string{
		"HELPER_STDERR_LINES": "1",
	}), WithLogger(newTestLogger(&logBuf)))
	if err != nil {
		t.Fatalf("StartChannel: %v", err)
	}
	defer ch.Stop(time.Second)

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(logBuf.String(), "helper agent starting")
	}, "stderr output never reached the logger")

	// stderr noise must not show up as protocol traffic.
	client := NewClient(ch)
	if err := client.Call(testCtx(t), "echo", nil, nil); err != nil {
		t.Fatalf("Call with noisy stderr: %v", err)
	}
}

func TestEnvOverridesReachChild(t *testing.T) {
	c := startTestClient(t, map[string]string{"HELPER_ECHO_ENV": "marker-value-123"})

	var out struct {
		Value string `json:"value"`
	}
	if err := c.Call(testCtx(t), "env", nil, &out); err != nil {
		t.Fatalf("Call(env): %v", err)
	}
	if out.Value != "marker-value-123" {
		t.Fatalf("env override did not reach the child: %+v", out)
	}
}

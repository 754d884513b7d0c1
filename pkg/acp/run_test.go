package acp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunStopsChannelOnReturn(t *testing.T) {
	var ch *Channel
	err := Run(context.Background(), helperConfig(nil), func(ctx context.Context, c *Client) error {
		ch = c.Channel()
		return c.Call(ctx, "echo", nil, nil)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel not stopped after Run returned")
	}
}

func TestRunStopsChannelOnError(t *testing.T) {
	sentinel := errors.New("body failed")
	var ch *Channel
	err := Run(context.Background(), helperConfig(nil), func(ctx context.Context, c *Client) error {
		ch = c.Channel()
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run = %v", err)
	}
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel not stopped after body error")
	}
}

func TestRunStopsChannelOnPanic(t *testing.T) {
	var ch *Channel
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = Run(context.Background(), helperConfig(nil), func(ctx context.Context, c *Client) error {
			ch = c.Channel()
			panic("body panicked")
		})
	}()
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel not stopped after body panic")
	}
}

func TestRunPropagatesStartError(t *testing.T) {
	err := RunCommand(context.Background(), "/nonexistent/acp-agent-binary", nil, func(ctx context.Context, c *Client) error {
		t.Error("body should not run when the agent cannot start")
		return nil
	})
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected *StartError, got %T: %v", err, err)
	}
}

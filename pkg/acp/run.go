package acp

import "context"

// Run is the scoped way to talk to an agent: it starts the process,
// hands the client to fn, and guarantees the process is stopped on
// every exit path, including a panic in fn.
func Run(ctx context.Context, cfg ProcessConfig, fn func(context.Context, *Client) error, opts ...Option) error {
	client, err := Connect(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

// RunCommand is Run for the common case of a bare command line.
func RunCommand(ctx context.Context, command string, args []string, fn func(context.Context, *Client) error, opts ...Option) error {
	return Run(ctx, ProcessConfig{Command: command, Args: args}, fn, opts...)
}

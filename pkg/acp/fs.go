package acp

import "context"

// ReadTextFileOptions narrows a fs/read_text_file request.
type ReadTextFileOptions struct {
	SessionID string
	// Line is the 1-based first line to read; 0 means from the start.
	Line int
	// Limit caps the number of lines returned; 0 means no limit.
	Limit int
}

// ReadTextFile asks the client's counterpart on the agent side for a
// file's contents. opts may be nil.
func (c *Client) ReadTextFile(ctx context.Context, path string, opts *ReadTextFileOptions) (string, error) {
	params := map[string]any{"path": path}
	if opts != nil {
		if opts.SessionID != "" {
			params["sessionId"] = opts.SessionID
		}
		if opts.Line > 0 {
			params["line"] = opts.Line
		}
		if opts.Limit > 0 {
			params["limit"] = opts.Limit
		}
	}
	var result struct {
		Contents string `json:"contents"`
	}
	if err := c.Call(ctx, "fs/read_text_file", params, &result); err != nil {
		return "", err
	}
	return result.Contents, nil
}

// WriteTextFile replaces a file's contents through the agent.
func (c *Client) WriteTextFile(ctx context.Context, path, contents string) error {
	params := map[string]any{
		"path":     path,
		"contents": contents,
	}
	return c.Call(ctx, "fs/write_text_file", params, nil)
}

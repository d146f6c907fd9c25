// Package mcp is a Backend that generates UI by calling a tool on an MCP
// server, usually a subprocess speaking MCP over stdio.
package mcp

import (
	"context"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

// DefaultTool is the tool called when none is configured.
const DefaultTool = "generate_ui"

// Turn is one history entry in the tool arguments.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Arguments are what the generation tool receives.
type Arguments struct {
	Prompt    string `json:"prompt"`
	History   []Turn `json:"history"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
}

// Backend calls one tool of a connected MCP server for every request.
type Backend struct {
	Name   string
	tool   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	logger *zap.Logger
}

var _ backend.Backend = (*Backend)(nil)

// Start launches the MCP server subprocess and connects to it.
func Start(ctx context.Context, name, command string, args []string, tool string, logger *zap.Logger) (*Backend, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	b, err := Connect(ctx, name, mcpsdk.NewCommandTransport(cmd), tool, logger)
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, err
	}
	b.cmd = cmd
	return b, nil
}

// Connect opens a client session over transport and checks that the server
// offers the tool.
func Connect(ctx context.Context, name string, transport mcpsdk.Transport, tool string, logger *zap.Logger) (*Backend, error) {
	if tool == "" {
		tool = DefaultTool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "genui", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, transport)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	b := &Backend{Name: name, tool: tool, conn: conn, logger: logger.Named("mcp").With(zap.String("server", name))}

	found := false
	count := 0
	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			count++
			if t.Name == tool {
				found = true
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	if !found {
		conn.Close()
		return nil, errors.New("MCP server '%s' does not offer tool '%s'", name, tool)
	}

	b.logger.Info("Connected to MCP server", zap.Int("tools", count), zap.String("tool", tool))
	return b, nil
}

// Generate implements backend.Backend. Every text content item of the tool
// result becomes a text part.
func (b *Backend) Generate(ctx context.Context, req backend.Request) (*backend.Response, error) {
	args := Arguments{
		Prompt:    req.Prompt,
		History:   make([]Turn, 0, len(req.History)),
		SessionID: req.SessionID,
		RequestID: req.ID,
	}
	for _, m := range req.History {
		if m.Role == session.RoleSystem {
			continue
		}
		args.History = append(args.History, Turn{Role: m.Role, Content: m.Content})
	}

	result, err := b.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      b.tool,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call tool '%s'", b.tool)
	}

	resp := &backend.Response{}
	var text string
	for _, c := range result.Content {
		tc, ok := c.(*mcpsdk.TextContent)
		if !ok {
			b.logger.Debug("Ignoring non-text tool content", zap.String("requestID", req.ID))
			continue
		}
		text += tc.Text
		resp.Parts = append(resp.Parts, protocol.TextPart(tc.Text))
	}
	if result.IsError {
		return nil, errors.New("tool '%s' reported an error: %s", b.tool, text)
	}
	return resp, nil
}

// Close ends the session and terminates the subprocess, if any.
func (b *Backend) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.cmd != nil && b.cmd.Process != nil {
		b.logger.Info("Terminating MCP server")
		return b.cmd.Process.Kill()
	}
	return nil
}

package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/m4xw311/genui/agent"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeSessionBusy    = -32000
	codeTurnFailed     = -32001
)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC.
// Supported methods:
// - initialize
// - session/new
// - session/prompt (emits session/update notifications with agent_message_chunk and surface_update)
// - session/action (a renderer reports a user action on the surface)
// - session/reset
// Nothing but JSON-RPC messages is written to out. Messages are newline
// delimited. Turns run concurrently with the read loop so a second prompt for
// a busy session can be answered with an error straight away; Run waits for
// running turns before it returns.
func Run(ctx context.Context, a *agent.Agent, in *bufio.Reader, out *bufio.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &acpServer{
		ctx:          ctx,
		agent:        a,
		sessions:     make(map[string]*session.Session),
		StdinReader:  in,
		StdoutWriter: out,
		logger:       logger.Named("acp"),
	}
	defer server.turns.Wait()

	server.logger.Debug("Starting ACP server")
	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				server.logger.Debug("EOF received, exiting")
				return nil
			}
			// If framing is broken, there isn't a safe way to continue.
			return errors.Wrapf(err, "ACP: read error")
		}
		if len(strings.TrimSpace(string(payload))) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			server.logger.Debug("JSON parse error", zap.Error(err))
			_ = server.writeResponseError(nil, codeParseError, "Parse error", nil)
			continue
		}

		server.logger.Debug("Dispatching", zap.String("method", req.Method), zap.Any("id", req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/prompt":
			server.goTurn(func() { server.handleSessionPrompt(&req) })
		case "session/action":
			server.goTurn(func() { server.handleSessionAction(&req) })
		case "session/reset":
			server.handleSessionReset(&req)
		default:
			_ = server.writeResponseError(req.ID, codeMethodNotFound, "Method not found", nil)
		}
	}
}

// jsonrpcRequest represents a JSON-RPC 2.0 request message
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse represents a JSON-RPC 2.0 response message
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type acpServer struct {
	ctx          context.Context
	agent        *agent.Agent
	sessions     map[string]*session.Session
	sessionsLock sync.Mutex
	sessionIDSeq int64
	turns        sync.WaitGroup

	StdinReader  *bufio.Reader
	StdoutWriter *bufio.Writer
	writeLock    sync.Mutex
	logger       *zap.Logger
}

func (s *acpServer) goTurn(f func()) {
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		f()
	}()
}

// readFramedMessage reads one newline-delimited JSON-RPC payload of any
// length.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, err := s.StdinReader.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		return line, nil
	}
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeFramedJSON serializes and writes one JSON-RPC message followed by a
// newline.
func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		s.logger.Warn("Failed to serialize JSON-RPC message", zap.Error(err))
		return errors.Wrapf(err, "failed to serialize JSON-RPC message")
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.StdoutWriter.Write(data); err != nil {
		return err
	}
	if err := s.StdoutWriter.WriteByte('\n'); err != nil {
		return err
	}
	return s.StdoutWriter.Flush()
}

func (s *acpServer) writeResponseOK(id any, result any) error {
	b, err := json.Marshal(result)
	if err != nil {
		return s.writeResponseError(id, codeInternalError, "Internal error", err.Error())
	}
	return s.writeFramedJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: b})
}

func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.logger.Debug("Responding with error", zap.Int("code", code), zap.String("message", msg), zap.Any("data", data))
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *acpServer) writeNotification(method string, params any) error {
	return s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *acpServer) decodeParams(req *jsonrpcRequest, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return false
	}
	return true
}

func (s *acpServer) lookup(req *jsonrpcRequest, sessionID string) (*session.Session, bool) {
	s.sessionsLock.Lock()
	sess, ok := s.sessions[sessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
	}
	return sess, ok
}

// ---- Handlers ----

func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	var p struct {
		ProtocolVersion int             `json:"protocolVersion"`
		ClientCaps      json.RawMessage `json:"clientCapabilities,omitempty"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	_ = s.writeResponseOK(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": false,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
			"extensions": []string{protocol.ExtensionURI},
		},
		"authMethods": []any{},
	})
}

func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	var p struct {
		Cwd string `json:"cwd"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	sid := s.nextSessionID()
	s.sessionsLock.Lock()
	s.sessions[sid] = session.NewWithID(sid)
	s.sessionsLock.Unlock()
	s.logger.Info("Created session", zap.String("sessionID", sid))
	_ = s.writeResponseOK(req.ID, map[string]any{"sessionId": sid})
}

// contentBlock is a content block of a session/prompt request. Text and
// resource_link blocks are understood.
type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
		Action    agent.Action   `json:"action,omitempty"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	sess, ok := s.lookup(req, p.SessionID)
	if !ok {
		return
	}
	action := p.Action
	switch action {
	case "":
		action = agent.ActionRefine
	case agent.ActionRefine, agent.ActionNew:
	default:
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("unknown action %q", p.Action))
		return
	}
	prompt := extractUserText(p.Prompt)
	if prompt == "" {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "empty prompt")
		return
	}
	if action == agent.ActionNew {
		_ = s.sendSurfaceUpdate(sess.ID, nil)
	}
	s.runTurn(req, sess, func(ctx context.Context) (*agent.Turn, error) {
		return s.agent.Submit(ctx, sess, prompt, action)
	})
}

func (s *acpServer) handleSessionAction(req *jsonrpcRequest) {
	var p struct {
		SessionID  string              `json:"sessionId"`
		UserAction protocol.UserAction `json:"userAction"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	sess, ok := s.lookup(req, p.SessionID)
	if !ok {
		return
	}
	if p.UserAction.Name == "" {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "userAction.name is required")
		return
	}
	s.runTurn(req, sess, func(ctx context.Context) (*agent.Turn, error) {
		return s.agent.SubmitAction(ctx, sess, p.UserAction)
	})
}

func (s *acpServer) handleSessionReset(req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	sess, ok := s.lookup(req, p.SessionID)
	if !ok {
		return
	}
	s.agent.Reset(s.ctx, sess)
	_ = s.sendSurfaceUpdate(sess.ID, nil)
	_ = s.writeResponseOK(req.ID, nil)
}

// runTurn runs submit and reports the result: notifications for the text and
// surface, then the response.
func (s *acpServer) runTurn(req *jsonrpcRequest, sess *session.Session, submit func(context.Context) (*agent.Turn, error)) {
	turn, err := submit(s.ctx)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrBusy):
			_ = s.writeResponseError(req.ID, codeSessionBusy, "Session busy", err.Error())
		case errors.Is(err, session.ErrStale):
			_ = s.writeResponseOK(req.ID, map[string]any{"stopReason": "cancelled"})
		default:
			_ = s.writeResponseError(req.ID, codeTurnFailed, "Turn failed", map[string]any{
				"kind":    errors.KindOf(err),
				"message": err.Error(),
			})
		}
		return
	}

	if turn.Text != "" {
		_ = s.sendAgentMessageChunk(sess.ID, turn.Text)
	}
	_ = s.sendSurfaceUpdate(sess.ID, turn)
	_ = s.writeResponseOK(req.ID, map[string]any{
		"stopReason": "end_turn",
		"requestId":  turn.RequestID,
	})
}

// sendAgentMessageChunk emits a session/update notification with the agent's
// text.
func (s *acpServer) sendAgentMessageChunk(sessionID, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "agent_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

// sendSurfaceUpdate emits a session/update notification with the resolved
// surface and the messages it came from. A nil turn clears the surface.
func (s *acpServer) sendSurfaceUpdate(sessionID string, turn *agent.Turn) error {
	update := map[string]any{
		"sessionUpdate": "surface_update",
		"surface":       nil,
		"messages":      []protocol.Message{},
	}
	if turn != nil {
		update["requestId"] = turn.RequestID
		update["surface"] = turn.Surface
		update["messages"] = turn.Messages
		if len(turn.Diagnostics) > 0 {
			diags := make([]string, len(turn.Diagnostics))
			for i, d := range turn.Diagnostics {
				diags[i] = d.Error()
			}
			update["diagnostics"] = diags
		}
	}
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update":    update,
	})
}

// nextSessionID generates a unique session ID using a timestamp and sequence number
func (s *acpServer) nextSessionID() string {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	s.sessionIDSeq++
	return fmt.Sprintf("sess_%d_%d", time.Now().UnixNano(), s.sessionIDSeq)
}

// maxResourceSize caps the file content inlined for a resource link.
const maxResourceSize = 50000

// extractUserText joins the prompt blocks into one prompt. Resource links are
// described, with the file inlined for file:// URIs.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			parts = append(parts, describeResource(b))
		}
	}
	return strings.Join(parts, "\n")
}

func describeResource(b contentBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
	if b.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "URI: %s\n", b.URI)
	if b.MimeType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
	}
	if content, err := readFileFromURI(b.URI); err != nil {
		fmt.Fprintf(&sb, "\n[Content not available: %v]\n", err)
	} else {
		if len(content) > maxResourceSize {
			content = content[:maxResourceSize] + "\n\n[... truncated ...]"
		}
		fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
	}
	sb.WriteString("=== End Resource ===\n")
	return sb.String()
}

func readFileFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if u.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", u.Scheme)
	}
	content, err := os.ReadFile(u.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

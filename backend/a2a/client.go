// Package a2a is a Backend that talks to a remote A2A agent over JSON-RPC.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
	"github.com/m4xw311/genui/session"
)

// ExtensionsHeader announces the A2A extensions a request uses.
const ExtensionsHeader = "X-A2A-Extensions"

// Client sends prompts to an A2A agent with message/send.
type Client struct {
	mu           sync.RWMutex
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	extensions   []string
	trustCardURL bool
	card         *AgentCard
}

var _ backend.Backend = (*Client)(nil)

// New creates a new A2A client instance.
func New(baseURL string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid baseURL %q", baseURL)
	}
	c := &Client{
		baseURL:      baseURL,
		httpClient:   http.DefaultClient,
		logger:       zap.NewNop(),
		extensions:   []string{protocol.ExtensionURI},
		trustCardURL: true,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// BaseURL returns the endpoint requests are posted to.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Generate implements backend.Backend.
func (c *Client) Generate(ctx context.Context, req backend.Request) (*backend.Response, error) {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	params := SendParams{
		Message: Message{
			Kind:      "message",
			Role:      RoleUser,
			MessageID: id,
			ContextID: req.SessionID,
			Parts:     []protocol.Part{protocol.TextPart(req.Prompt)},
		},
		History: historyMessages(req.History, req.SessionID),
	}

	var result sendResult
	if err := c.sendRequest(ctx, "message/send", id, params, &result); err != nil {
		return nil, err
	}
	if result.Status != nil {
		switch result.Status.State {
		case "failed", "rejected", "canceled":
			return nil, errors.New("agent task ended in state %q", result.Status.State)
		}
	}
	return &backend.Response{Parts: result.parts()}, nil
}

func historyMessages(history []session.Message, contextID string) []Message {
	var out []Message
	for _, m := range history {
		role := RoleUser
		switch m.Role {
		case session.RoleSystem:
			continue
		case session.RoleAssistant:
			role = RoleAgent
		}
		out = append(out, Message{
			Kind:      "message",
			Role:      role,
			MessageID: uuid.New().String(),
			ContextID: contextID,
			Parts:     []protocol.Part{protocol.TextPart(m.Content)},
		})
	}
	return out
}

// sendRequest performs a synchronous JSON-RPC POST request.
func (c *Client) sendRequest(ctx context.Context, method, id string, params interface{}, target interface{}) error {
	logger := c.logger.With(zap.String("method", method), zap.String("requestID", id))

	reqBytes, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		return errors.Wrapf(err, "marshal JSON-RPC request for %s", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL(), bytes.NewReader(reqBytes))
	if err != nil {
		return errors.Wrapf(err, "create HTTP request for %s", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if len(c.extensions) > 0 {
		httpReq.Header.Set(ExtensionsHeader, strings.Join(c.extensions, ", "))
	}

	logger.Debug("Sending A2A request")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "HTTP request for %s failed", method)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return errors.New("HTTP error %d for %s: %s", httpResp.StatusCode, method, strings.TrimSpace(string(body)))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrapf(err, "decode JSON-RPC response for %s", method)
	}
	if rpcResp.JSONRPC != jsonRPCVersion {
		return errors.New("invalid JSON-RPC version: %s", rpcResp.JSONRPC)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	var gotID string
	if err := json.Unmarshal(rpcResp.ID, &gotID); err != nil || gotID != id {
		logger.Warn("JSON-RPC response ID mismatch", zap.String("received", string(rpcResp.ID)))
	}
	if rpcResp.Result == nil {
		return errors.New("JSON-RPC response missing result for %s", method)
	}
	if err := json.Unmarshal(*rpcResp.Result, target); err != nil {
		return errors.Wrapf(err, "unmarshal result for %s", method)
	}
	logger.Debug("A2A request successful")
	return nil
}

// FetchAgentCard retrieves the agent card from /.well-known/agent.json on
// the agent's host and caches it. A card that does not advertise the A2UI
// extension is logged but not rejected.
func (c *Client) FetchAgentCard(ctx context.Context) (*AgentCard, error) {
	base, err := url.Parse(c.BaseURL())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL")
	}
	wellKnownURL := fmt.Sprintf("%s://%s/.well-known/agent.json", base.Scheme, base.Host)
	c.logger.Debug("Fetching AgentCard", zap.String("url", wellKnownURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create AgentCard request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch AgentCard from %s", wellKnownURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to fetch AgentCard from %s: status code %d", wellKnownURL, resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, errors.Wrapf(err, "failed to parse AgentCard JSON from %s", wellKnownURL)
	}
	if card.Name == "" || card.URL == "" {
		return nil, errors.New("invalid AgentCard received: missing required fields (name, url)")
	}

	if cardURL, err := url.Parse(card.URL); err != nil {
		c.logger.Warn("AgentCard URL is invalid, keeping base URL", zap.String("cardURL", card.URL))
		card.URL = base.String()
	} else if !cardURL.IsAbs() {
		card.URL = base.ResolveReference(cardURL).String()
	}

	if !card.Supports(protocol.ExtensionURI) {
		c.logger.Warn("Agent does not advertise the A2UI extension", zap.String("agent", card.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.card = &card
	if c.trustCardURL && card.URL != c.baseURL {
		c.logger.Info("Updating client baseURL from AgentCard", zap.String("newURL", card.URL))
		c.baseURL = card.URL
	}
	cardCopy := card
	return &cardCopy, nil
}

// CachedAgentCard returns the last fetched card, or nil.
func (c *Client) CachedAgentCard() *AgentCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.card == nil {
		return nil
	}
	card := *c.card
	return &card
}

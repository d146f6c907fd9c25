package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/m4xw311/genui/agent"
	"github.com/m4xw311/genui/agent/acp"
	"github.com/m4xw311/genui/agent/terminal"
	"github.com/m4xw311/genui/backend"
	"github.com/m4xw311/genui/backend/a2a"
	"github.com/m4xw311/genui/backend/mcp"
	"github.com/m4xw311/genui/config"
	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/llm"
	"github.com/m4xw311/genui/logging"
	"github.com/m4xw311/genui/normalize"
	"github.com/m4xw311/genui/render"
	"github.com/m4xw311/genui/session"
)

func main() {
	configFlag := flag.String("config", "", "Path to an additional config file")
	acpFlag := flag.Bool("acp", false, "Serve the Agent Client Protocol over stdio")
	logLevelFlag := flag.String("log-level", "", "Log level, overrides log_level from config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *acpFlag, strings.Join(flag.Args(), " ")); err != nil {
		logger.Error("genui stopped with an error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "genui stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, acpMode bool, initialPrompt string) error {
	b, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	normalizer, err := normalize.New(normalize.Options{MimeTypes: cfg.Protocol.MimeTypes, Logger: logger.Named("normalize")})
	if err != nil {
		return err
	}

	var publishers render.Fanout
	if !acpMode {
		// ACP owns stdout; only the terminal mode previews surfaces there.
		publishers = append(publishers, render.NewTerminal(os.Stdout))
	}
	if cfg.Publish.Listen != "" {
		network, shutdown, err := servePublishers(cfg.Publish, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		publishers = append(publishers, network...)
	}

	a, err := agent.New(b,
		agent.WithPublisher(publishers),
		agent.WithNormalizer(normalizer),
		agent.WithTimeout(cfg.RequestTimeout),
		agent.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if acpMode {
		logger.Info("Starting genui in ACP mode", zap.String("backend", cfg.Backend))
		return acp.Run(ctx, a, bufio.NewReader(os.Stdin), bufio.NewWriter(os.Stdout), logger)
	}

	fmt.Println("genui is ready. Describe the UI you want, /new to start over, /quit to leave.")
	return terminal.New(a, session.New(), os.Stdin, os.Stdout).Run(ctx, initialPrompt)
}

// newBackend builds the configured backend and a function releasing it.
func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend.Backend, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendA2A:
		opts := []a2a.ClientOption{a2a.WithLogger(logger), a2a.WithExtensions(cfg.A2A.Extensions...)}
		if !cfg.TrustAgentCardURL() {
			opts = append(opts, a2a.DoNotTrustAgentCardURL())
		}
		client, err := a2a.New(cfg.A2A.URL, opts...)
		if err != nil {
			return nil, nil, err
		}
		cardCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := client.FetchAgentCard(cardCtx); err != nil {
			logger.Warn("Could not fetch agent card, using the configured URL", zap.Error(err))
		}
		return client, noop, nil

	case config.BackendMCP:
		server, err := mcp.Start(ctx, cfg.MCP.Name, cfg.MCP.Command, cfg.MCP.Args, cfg.MCP.Tool, logger)
		if err != nil {
			return nil, nil, err
		}
		return server, func() {
			if err := server.Close(); err != nil {
				logger.Warn("Failed to stop MCP server", zap.Error(err))
			}
		}, nil

	default:
		client, err := newLLMClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		b, err := backend.NewLLM(client, backend.WithMaxRetries(cfg.Retries()), backend.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil
	}
}

func newLLMClient(ctx context.Context, cfg *config.Config) (llm.LLMClient, error) {
	var client llm.LLMClient
	var err error
	switch cfg.LLMClient {
	case "gemini":
		client, err = llm.NewGeminiLLMClient(ctx, cfg.Model)
	case "openai":
		client, err = llm.NewOpenAILLMClient(ctx, cfg.Model)
	case "bedrock":
		client, err = llm.NewBedrockLLMClient(ctx, cfg.Model)
	case "anthropic":
		client, err = llm.NewAnthropicLLMClient(ctx, cfg.Model)
	case "mock":
		client = &llm.MockLLMClient{}
	default:
		return nil, errors.New("unknown llm client %q", cfg.LLMClient)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}
	return client, nil
}

// servePublishers starts the websocket and SSE endpoints on cfg.Listen.
func servePublishers(cfg config.Publish, logger *zap.Logger) ([]render.Publisher, func(), error) {
	hub := render.NewWebSocketHub(logger)
	events := render.NewSSEPublisher(logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.WebSocketPath, hub)
	mux.Handle(cfg.SSEPath, events)
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	ln, err := listen(cfg.Listen)
	if err != nil {
		events.Close()
		return nil, nil, errors.Wrapf(err, "failed to listen on %s", cfg.Listen)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("Publish server failed", zap.Error(err))
		}
	}()
	logger.Info("Publishing surfaces",
		zap.String("websocket", "ws://"+ln.Addr().String()+cfg.WebSocketPath),
		zap.String("sse", "http://"+ln.Addr().String()+cfg.SSEPath))

	shutdown := func() {
		events.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
		}
	}
	return []render.Publisher{hub, events}, shutdown, nil
}

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

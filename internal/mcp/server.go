// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive a drawloop run one tool call at a time.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/logging"
	"github.com/nvandessel/drawloop/internal/pool"
	"github.com/nvandessel/drawloop/internal/ratelimit"
)

// Server wraps the MCP SDK server and owns one driver. Tool calls are
// serialised by mu, so the driver only ever has one caller.
type Server struct {
	server *sdk.Server

	mu       sync.Mutex
	driver   *driver.Driver
	seed     uint64
	renderer driver.Renderer

	logger       *slog.Logger
	decisions    *logging.DecisionLogger
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "drawloop")
	Version string // Server version

	// Seed is used for the first run. Each drawloop_configure call may
	// override it; zero means a clock seed.
	Seed uint64

	// Renderer receives every step, e.g. the web chart. Nil means none.
	Renderer driver.Renderer

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	// Limits overrides the per-tool budgets. Nil means the defaults.
	Limits map[string]ratelimit.Rule

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

// NewServer creates a new MCP server with the drawloop tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		seed:         cfg.Seed,
		renderer:     cfg.Renderer,
		logger:       logger,
		decisions:    cfg.Decisions,
		toolLimiters: ratelimit.NewToolLimiters(cfg.Limits),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}
	s.driver = s.newDriver(cfg.Seed)

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// newDriver builds an idle driver over a fresh pool seeded with seed.
func (s *Server) newDriver(seed uint64) *driver.Driver {
	d := driver.New(pool.New(pool.NewSource(seed)), s.renderer)
	d.SetLogger(s.logger, s.decisions)
	return d
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server starting", "transport", "stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	_ = s.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

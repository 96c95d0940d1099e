// Package mcp serves sweep documents to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/ratelimit"
	"github.com/nvandessel/namsweep/internal/store"
)

// Server wraps the MCP SDK server with the sweep tools.
type Server struct {
	server       *sdk.Server
	store        store.ManifestStore
	root         string
	seed         int64
	logger       zerolog.Logger
	loader       *experiment.Loader
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	closeOnce    sync.Once
	closeErr     error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name, e.g. "namsweep"
	Version string
	Root    string // Project root; tools only read documents below it

	// Seed is the base seed for sweep_expand when the caller gives none. It
	// is used as is; zero is a valid seed.
	Seed int64

	Logger zerolog.Logger
}

// NewServer opens the project's manifest store and registers the tools.
func NewServer(cfg *Config) (*Server, error) {
	manifests, err := store.NewSQLiteManifestStore(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	logger := cfg.Logger.With().Str("component", "mcp").Logger()
	s := &Server{
		server:       mcpServer,
		store:        manifests,
		root:         cfg.Root,
		seed:         cfg.Seed,
		logger:       logger,
		loader:       experiment.NewLoader(logger),
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.Root),
	}
	s.registerTools()

	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
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

	s.logger.Info().Str("root", s.root).Msg("mcp server started")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the manifest store and audit log. It is safe to call more
// than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.store.Close()
		if err := s.auditLogger.Close(); s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

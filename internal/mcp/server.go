// Package mcp exposes the interpretation engine over the Model Context
// Protocol so LLM clients can run analyses and query the knowledge base
// as tools. The server speaks stdio, the transport MCP hosts spawn.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/service"
)

// Server wraps the MCP SDK server around the engine and knowledge base.
type Server struct {
	cfg    *domain.Config
	mcp    *mcp.Server
	logger *logrus.Logger
}

// NewServer builds the MCP server and registers the tool set.
func NewServer(cfg *domain.Config, kb domain.KnowledgeBase, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	name := cfg.MCP.ServerName
	if name == "" {
		name = "pgx-risk-engine"
	}
	version := cfg.MCP.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	tools := NewTools(service.NewEngine(kb, logger), kb, logger)
	tools.Register(srv)

	logger.WithFields(logrus.Fields{
		"server_name":    name,
		"server_version": version,
	}).Info("MCP server initialized")

	return &Server{cfg: cfg, mcp: srv, logger: logger}
}

// Run serves MCP over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

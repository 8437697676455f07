// Package mcp exposes the HR assistant to Model Context Protocol clients:
// grounded policy answers, the PTO balance lookup, leave submission, and
// the index status as a resource. It is started by `hrassist mcp`.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/hrassist-go/internal/hris"
	"github.com/54b3r/hrassist-go/internal/pipeline"
	"github.com/54b3r/hrassist-go/internal/rag"
	"github.com/54b3r/hrassist-go/internal/version"
)

// PolicyService answers policy questions and reports index state.
// *pipeline.Pipeline satisfies it.
type PolicyService interface {
	Answer(ctx context.Context, question string, k int) (*rag.Answer, error)
	Status(ctx context.Context) (pipeline.Status, error)
}

// Deps are the services behind the MCP tools.
type Deps struct {
	Policy PolicyService
	// HRIS is optional; without it the HRIS tools are not registered.
	HRIS hris.Client
	// EmployeeID is used when a tool call names no employee.
	EmployeeID string
	// TopK is the default number of excerpts per answer; zero defers to
	// the pipeline default.
	TopK   int
	Logger *slog.Logger
}

// Server is the MCP server for HR Assist.
type Server struct {
	deps   Deps
	log    *slog.Logger
	server *mcp.Server
}

// New builds a server with every tool and resource registered.
func New(deps Deps) (*Server, error) {
	if deps.Policy == nil {
		return nil, errors.New("mcp: policy service must not be nil")
	}
	if deps.EmployeeID == "" {
		deps.EmployeeID = hris.DefaultEmployeeID
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		deps: deps,
		log:  log,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "hrassist",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp: serving on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("mcp: serving streamable HTTP", slog.String("addr", "http://"+addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

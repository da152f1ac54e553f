// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/records"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
	log *records.Store
}

// New creates a new MCP server with all Raido tools registered.
func New(eng *engine.Engine, log *records.Store) *Server {
	s := &Server{eng: eng, log: log}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("set_document",
		mcp.WithDescription("Switch the active Markdown document whose image references are tracked. "+
			"An empty path clears the active document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative document path (e.g. notes/today.md)")),
	), s.setDocument)

	s.mcp.AddTool(mcp.NewTool("list_images",
		mcp.WithDescription("List the tracked image references of the active document: "+
			"local embeds pending upload and remote links pending download, with per-item status."),
	), s.listImages)

	s.mcp.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Re-read the active document and rebuild the tracked reference lists immediately."),
	), s.refresh)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Upload one local image embed to the bucket and rewrite the document "+
			"to reference its public URL."),
		mcp.WithString("raw", mcp.Required(), mcp.Description("Exact raw reference text (e.g. ![[photo.png]])")),
	), s.uploadImage)

	s.mcp.AddTool(mcp.NewTool("download_image",
		mcp.WithDescription("Download one remote image into the vault and rewrite the document "+
			"to a local embed."),
		mcp.WithString("raw", mcp.Required(), mcp.Description("Exact raw reference text (e.g. ![alt](https://...))")),
	), s.downloadImage)

	s.mcp.AddTool(mcp.NewTool("sync_images",
		mcp.WithDescription("Queue every eligible reference of the active document: "+
			"all idle or failed local embeds for upload and all remote links for download."),
	), s.syncImages)

	s.mcp.AddTool(mcp.NewTool("list_transfer_records",
		mcp.WithDescription("Read the durable transfer log: every completed upload and download "+
			"with file names, URLs, and checksums."),
	), s.listTransferRecords)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) setDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.eng.SetDocument(path)
	if path == "" {
		return mcp.NewToolResultText("active document cleared"), nil
	}
	snap := s.eng.Snapshot()
	return mcp.NewToolResultText(fmt.Sprintf("tracking %s: %d local, %d remote references",
		path, len(snap.Locals), len(snap.Remotes))), nil
}

func (s *Server) listImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.eng.Snapshot()
	if snap.Document == "" {
		return mcp.NewToolResultText("no active document"), nil
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) refresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.eng.Refresh()
	snap := s.eng.Snapshot()
	return mcp.NewToolResultText(fmt.Sprintf("refreshed: %d local, %d remote references",
		len(snap.Locals), len(snap.Remotes))), nil
}

func (s *Server) uploadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.eng.Upload(ctx, raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("upload queued: %s", raw)), nil
}

func (s *Server) downloadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.eng.Download(raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("download queued: %s", raw)), nil
}

func (s *Server) syncImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uploads, err := s.eng.UploadAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	downloads := s.eng.DownloadAll()
	return mcp.NewToolResultText(fmt.Sprintf("queued %d uploads, %d downloads", uploads, downloads)), nil
}

func (s *Server) listTransferRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.log.All()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("no transfers recorded"), nil
	}
	out, _ := json.MarshalIndent(recs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

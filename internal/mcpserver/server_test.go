package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/blob"
	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/testutil"
	"github.com/starford/raido/internal/transfer"
	"github.com/starford/raido/internal/vault"
)

func testServer(t *testing.T) (*Server, *vault.FS) {
	t.Helper()
	_, v := testutil.TestVault(t)
	recs := testutil.TestRecords(t)

	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(blobSrv.Close)

	snap := func() blob.Snapshot {
		return blob.Snapshot{
			AccountID:    "acct",
			APIToken:     "tok",
			Bucket:       "bucket",
			CustomDomain: "https://cdn.example.com",
			APIBase:      blobSrv.URL,
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := transfer.New(v, recs, nil, snap, "", logger)
	eng := engine.New(v, orch, func() string { return "https://cdn.example.com" }, logger,
		engine.WithDebounce(20*time.Millisecond),
		engine.WithDisplayDelay(50*time.Millisecond))
	t.Cleanup(eng.Close)

	return New(eng, recs), v
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so the
	// handler functions are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "set_document":
		result, err = srv.setDocument(ctx, req)
	case "list_images":
		result, err = srv.listImages(ctx, req)
	case "refresh":
		result, err = srv.refresh(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	case "download_image":
		result, err = srv.downloadImage(ctx, req)
	case "sync_images":
		result, err = srv.syncImages(ctx, req)
	case "list_transfer_records":
		result, err = srv.listTransferRecords(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSetDocumentAndListImages(t *testing.T) {
	srv, v := testServer(t)
	_ = v.Write("photo.png", []byte("img"))
	_ = v.Write("doc.md", []byte("![[photo.png]]\n"))

	r := callTool(t, srv, "set_document", map[string]interface{}{"path": "doc.md"})
	text := resultText(r)
	if text != "tracking doc.md: 1 local, 0 remote references" {
		t.Errorf("set_document result = %q", text)
	}

	r = callTool(t, srv, "list_images", map[string]interface{}{})
	text = resultText(r)
	if !strings.Contains(text, "![[photo.png]]") || !strings.Contains(text, `"status": "idle"`) {
		t.Errorf("list_images result = %q", text)
	}
}

func TestListImages_NoDocument(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_images", map[string]interface{}{})
	if resultText(r) != "no active document" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestUploadImageTool(t *testing.T) {
	srv, v := testServer(t)
	_ = v.Write("photo.png", []byte("img"))
	_ = v.Write("doc.md", []byte("![[photo.png]]\n"))
	callTool(t, srv, "set_document", map[string]interface{}{"path": "doc.md"})

	r := callTool(t, srv, "upload_image", map[string]interface{}{"raw": "![[photo.png]]"})
	if r.IsError {
		t.Fatalf("upload_image errored: %q", resultText(r))
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		data, err := v.Read("doc.md")
		if err == nil && strings.Contains(string(data), "https://cdn.example.com/photo.png") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("document not rewritten")
}

func TestUploadImageTool_NotTracked(t *testing.T) {
	srv, v := testServer(t)
	_ = v.Write("doc.md", []byte("no refs\n"))
	callTool(t, srv, "set_document", map[string]interface{}{"path": "doc.md"})

	r := callTool(t, srv, "upload_image", map[string]interface{}{"raw": "![[nope.png]]"})
	if !r.IsError {
		t.Error("expected error for untracked reference")
	}
}

func TestListTransferRecords_Empty(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_transfer_records", map[string]interface{}{})
	if resultText(r) != "no transfers recorded" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestSyncImagesTool(t *testing.T) {
	srv, v := testServer(t)
	_ = v.Write("a.png", []byte("a"))
	_ = v.Write("doc.md", []byte("![[a.png]]\n"))
	callTool(t, srv, "set_document", map[string]interface{}{"path": "doc.md"})

	r := callTool(t, srv, "sync_images", map[string]interface{}{})
	if resultText(r) != "queued 1 uploads, 0 downloads" {
		t.Errorf("result = %q", resultText(r))
	}
}

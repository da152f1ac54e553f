package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/raido/internal/blob"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/records"
	"github.com/starford/raido/internal/testutil"
	"github.com/starford/raido/internal/vault"
)

func testOrch(t *testing.T, handler http.Handler) (*Orchestrator, *vault.FS, *records.Store) {
	t.Helper()
	_, v := testutil.TestVault(t)
	recs := testutil.TestRecords(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	snap := func() blob.Snapshot {
		return blob.Snapshot{
			AccountID:    "acct",
			APIToken:     "tok",
			Bucket:       "bucket",
			CustomDomain: "https://cdn.example.com",
			APIBase:      srv.URL,
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(v, recs, nil, snap, "", logger), v, recs
}

func TestUpload_RecordFields(t *testing.T) {
	orch, v, recs := testOrch(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	data := []byte("img-bytes")
	_ = v.Write("assets/photo.png", data)
	_ = v.Write("notes/doc.md", []byte("![[photo.png]]\n"))

	item := models.LocalImage{
		RawText:      "![[photo.png]]",
		TargetPath:   "photo.png",
		ResolvedName: "photo.png",
		ResolvedPath: "assets/photo.png",
	}
	publicURL, err := orch.Upload(context.Background(), "https://cdn.example.com", "notes/doc.md", item)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if publicURL != "https://cdn.example.com/photo.png" {
		t.Errorf("public url = %q", publicURL)
	}

	all, err := recs.All()
	if err != nil || len(all) != 1 {
		t.Fatalf("records = %v, err = %v", all, err)
	}
	rec := all[0]
	sum := sha256.Sum256(data)
	if rec.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum = %q", rec.Checksum)
	}
	if rec.CustomURL != "https://cdn.example.com/photo.png" {
		t.Errorf("custom url = %q", rec.CustomURL)
	}
	if rec.SourcePath != "assets/photo.png" || rec.DocumentPath != "notes/doc.md" || rec.DocumentName != "doc.md" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestUpload_RewritesOnlyMatchingText(t *testing.T) {
	orch, v, _ := testOrch(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	_ = v.Write("a.png", []byte("a"))
	// The same raw text twice plus an unrelated embed.
	_ = v.Write("doc.md", []byte("![[a.png]]\nmiddle\n![[a.png]]\n![[other.png]]\n"))

	item := models.LocalImage{RawText: "![[a.png]]", ResolvedName: "a.png", ResolvedPath: "a.png"}
	if _, err := orch.Upload(context.Background(), "https://cdn.example.com", "doc.md", item); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	data, _ := v.Read("doc.md")
	text := string(data)
	if strings.Contains(text, "![[a.png]]") {
		t.Errorf("raw text left behind: %q", text)
	}
	if strings.Count(text, "https://cdn.example.com/a.png") != 2 {
		t.Errorf("both occurrences should be rewritten: %q", text)
	}
	if !strings.Contains(text, "![[other.png]]") {
		t.Errorf("unrelated embed touched: %q", text)
	}
}

func TestDownload_DefaultDirAndRecord(t *testing.T) {
	orch, v, recs := testOrch(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	}))

	// Downloads fetch item.URL directly; serve the bytes ourselves.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	item := models.RemoteImage{
		RawText:  "![pic](" + srv.URL + "/cat.jpg)",
		URL:      srv.URL + "/cat.jpg",
		FileName: "cat.jpg",
	}
	_ = v.Write("doc.md", []byte(item.RawText+"\n"))

	name, err := orch.Download(context.Background(), "doc.md", item)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if name != "cat.jpg" {
		t.Errorf("name = %q", name)
	}
	if data, err := v.Read("attachments/cat.jpg"); err != nil || string(data) != "jpeg" {
		t.Errorf("saved = %q, err = %v", data, err)
	}

	all, _ := recs.All()
	if len(all) != 1 || all[0].Kind != models.RecordDownload || all[0].SavedPath != "attachments/cat.jpg" {
		t.Errorf("records = %+v", all)
	}
}

func TestUpload_LogFailureDoesNotUndoRewrite(t *testing.T) {
	_, v := testutil.TestVault(t)
	// A store whose parent "directory" is a regular file: appends fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	_ = os.WriteFile(blocker, []byte("x"), 0o644)
	recs := records.NewStore(filepath.Join(blocker, "records.json"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()
	snap := func() blob.Snapshot {
		return blob.Snapshot{AccountID: "a", APIToken: "t", Bucket: "b", CustomDomain: "https://cdn.example.com", APIBase: srv.URL}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := New(v, recs, nil, snap, "", logger)

	_ = v.Write("a.png", []byte("a"))
	_ = v.Write("doc.md", []byte("![[a.png]]\n"))
	item := models.LocalImage{RawText: "![[a.png]]", ResolvedName: "a.png", ResolvedPath: "a.png"}

	if _, err := orch.Upload(context.Background(), "https://cdn.example.com", "doc.md", item); err != nil {
		t.Fatalf("Upload should succeed despite log failure: %v", err)
	}
	data, _ := v.Read("doc.md")
	if !strings.Contains(string(data), "https://cdn.example.com/a.png") {
		t.Errorf("rewrite lost: %q", data)
	}
}

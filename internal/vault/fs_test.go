package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	v, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return v
}

func TestWriteAndRead(t *testing.T) {
	v := tempVault(t)
	content := []byte("# Hello\n![[photo.png]]\n")
	if err := v.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := v.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	v := tempVault(t)
	if err := v.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := v.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestTraversalBlocked(t *testing.T) {
	v := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := v.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := v.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftoverTemp(t *testing.T) {
	v := tempVault(t)
	_ = v.Write("atomic.md", []byte("original"))
	if err := v.Write("atomic.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := v.Read("atomic.md")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(v.root, ".raido-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestResolve(t *testing.T) {
	v := tempVault(t)
	_ = v.Write("notes/doc.md", []byte("x"))
	_ = v.Write("notes/near.png", []byte("img"))
	_ = v.Write("rooted.png", []byte("img"))
	_ = v.Write("deep/nested/far.png", []byte("img"))

	if got := v.Resolve("near.png", "notes"); got != "notes/near.png" {
		t.Errorf("doc-relative resolve = %q", got)
	}
	if got := v.Resolve("rooted.png", "notes"); got != "rooted.png" {
		t.Errorf("root resolve = %q", got)
	}
	if got := v.Resolve("far.png", ""); got != "deep/nested/far.png" {
		t.Errorf("walk resolve = %q", got)
	}
	if got := v.Resolve("missing.png", "notes"); got != "" {
		t.Errorf("missing resolve = %q, want empty", got)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	v := tempVault(t)
	for range 2 {
		if err := v.EnsureDir("a/b/c"); err != nil {
			t.Fatalf("EnsureDir: %v", err)
		}
	}
	info, err := os.Stat(filepath.Join(v.root, "a/b/c"))
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory, err=%v", err)
	}
}

func TestAvailableName(t *testing.T) {
	v := tempVault(t)
	if got := v.AvailableName("dl", "cat.jpg"); got != "cat.jpg" {
		t.Errorf("free name = %q, want cat.jpg", got)
	}

	_ = v.Write("dl/cat.jpg", []byte("x"))
	got := v.AvailableName("dl", "cat.jpg")
	if got == "cat.jpg" {
		t.Fatal("expected disambiguated name")
	}
	if !strings.HasPrefix(got, "cat-") || !strings.HasSuffix(got, ".jpg") {
		t.Errorf("disambiguated name = %q", got)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS("/tmp/raido-does-not-exist-" + t.Name()); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

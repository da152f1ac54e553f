package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/blob"
	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/testutil"
	"github.com/starford/raido/internal/transfer"
	"github.com/starford/raido/internal/vault"
)

// testEnv wires a router over a real engine with an httptest blob API.
func testEnv(t *testing.T, authToken string) (http.Handler, *vault.FS) {
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

	router := NewRouter(eng, recs, nil, authToken != "", authToken, nil)
	return router, v
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetDocumentAndListItems(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("photo.png", []byte("img"))
	_ = v.Write("doc.md", []byte("![[photo.png]]\n"))

	w := doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("set document: %d %s", w.Code, w.Body)
	}

	w = doJSON(t, router, http.MethodGet, "/items", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list items: %d", w.Code)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Document != "doc.md" || len(snap.Locals) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestUploadEndpoint(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("photo.png", []byte("img"))
	_ = v.Write("doc.md", []byte("![[photo.png]]\n"))
	doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})

	w := doJSON(t, router, http.MethodPost, "/uploads", map[string]string{"raw": "![[photo.png]]"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload: %d %s", w.Code, w.Body)
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

func TestUploadEndpoint_NotTracked(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("doc.md", []byte("no refs\n"))
	doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})

	w := doJSON(t, router, http.MethodPost, "/uploads", map[string]string{"raw": "![[nope.png]]"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUploadEndpoint_NoSourceFile(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("doc.md", []byte("![[missing.png]]\n"))
	doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})

	w := doJSON(t, router, http.MethodPost, "/uploads", map[string]string{"raw": "![[missing.png]]"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestRevealEndpoint(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("doc.md", []byte("intro\n![[a.png]]\n"))
	doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})

	// raw = "![[a.png]]", percent-encoded.
	w := doJSON(t, router, http.MethodGet, "/reveal?raw=%21%5B%5Ba.png%5D%5D", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reveal: %d %s", w.Code, w.Body)
	}
	var pos engine.Position
	if err := json.Unmarshal(w.Body.Bytes(), &pos); err != nil {
		t.Fatal(err)
	}
	if pos.Document != "doc.md" || pos.Line != 1 {
		t.Errorf("pos = %+v", pos)
	}

	w = doJSON(t, router, http.MethodGet, "/reveal?raw=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing reveal status = %d", w.Code)
	}
}

func TestRecordsEndpoint_FromLog(t *testing.T) {
	router, v := testEnv(t, "")
	_ = v.Write("photo.png", []byte("img"))
	_ = v.Write("doc.md", []byte("![[photo.png]]\n"))
	doJSON(t, router, http.MethodPost, "/document", map[string]string{"path": "doc.md"})
	doJSON(t, router, http.MethodPost, "/uploads", map[string]string{"raw": "![[photo.png]]"})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, router, http.MethodGet, "/records", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("records: %d", w.Code)
		}
		var resp struct {
			Total   int `json:"total"`
			Records []struct {
				FileName string `json:"fileName"`
				Kind     string `json:"kind"`
			} `json:"records"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total == 1 {
			if resp.Records[0].FileName != "photo.png" || resp.Records[0].Kind != "upload" {
				t.Errorf("record = %+v", resp.Records[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("record never appeared")
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}

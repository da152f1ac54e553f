package records

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/models"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "sub", "records.json"))
}

func TestAppendAndAll(t *testing.T) {
	s := tempStore(t)

	rec := models.TransferRecord{
		Kind:         models.RecordUpload,
		FileName:     "photo.png",
		SourcePath:   "assets/photo.png",
		PublicURL:    "https://cdn.example.com/photo.png",
		DocumentPath: "notes/doc.md",
		DocumentName: "doc.md",
		Timestamp:    time.Now().UTC(),
	}
	if err := s.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 1 || got[0].FileName != "photo.png" {
		t.Errorf("records = %+v", got)
	}
}

func TestLogSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	s := NewStore(path)
	_ = s.Append(models.TransferRecord{Kind: models.RecordDownload, FileName: "a.jpg", RemoteURL: "https://x.test/a.jpg"})
	_ = s.Append(models.TransferRecord{Kind: models.RecordUpload, FileName: "b.png"})

	// A fresh store hydrates from disk.
	fresh := NewStore(path)
	got, err := fresh.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 2 || got[0].FileName != "a.jpg" || got[1].FileName != "b.png" {
		t.Errorf("records = %+v", got)
	}
}

func TestLogIsPrettyPrintedArray(t *testing.T) {
	s := tempStore(t)
	_ = s.Append(models.TransferRecord{Kind: models.RecordUpload, FileName: "a.png"})

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("log is not pretty-printed")
	}
	var entries []models.TransferRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("log is not a JSON array: %v", err)
	}
}

func TestMissingFileIsEmptyLog(t *testing.T) {
	s := tempStore(t)
	got, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty log, got %+v", got)
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	s := tempStore(t)
	for _, name := range []string{"1.png", "2.png", "3.png"} {
		if err := s.Append(models.TransferRecord{Kind: models.RecordUpload, FileName: name}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := s.All()
	if len(got) != 3 || got[0].FileName != "1.png" || got[2].FileName != "3.png" {
		t.Errorf("order = %+v", got)
	}
}

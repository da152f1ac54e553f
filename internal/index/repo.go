package index

import (
	"fmt"
	"time"

	"github.com/starford/raido/internal/models"
)

// Insert appends one record to the index.
func (db *DB) Insert(rec models.TransferRecord) error {
	url := rec.PublicURL
	saved := rec.SourcePath
	if rec.Kind == models.RecordDownload {
		url = rec.RemoteURL
		saved = rec.SavedPath
	}
	_, err := db.conn.Exec(`
		INSERT INTO transfers (kind, file_name, url, saved_path, document_path, document_name, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Kind, rec.FileName, url, saved, rec.DocumentPath, rec.DocumentName, rec.Checksum, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("index: insert record: %w", err)
	}
	return nil
}

// Row is one indexed transfer entry.
type Row struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	FileName     string    `json:"fileName"`
	URL          string    `json:"url"`
	SavedPath    string    `json:"savedPath"`
	DocumentPath string    `json:"documentPath"`
	DocumentName string    `json:"documentName"`
	Checksum     string    `json:"checksum,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// List returns entries newest first, optionally filtered by kind and
// containing document, with the total count before pagination.
func (db *DB) List(limit, offset int, kind, document string) ([]Row, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE 1=1"
	args := []any{}
	if kind != "" {
		where += " AND kind = ?"
		args = append(args, kind)
	}
	if document != "" {
		where += " AND document_path = ?"
		args = append(args, document)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM transfers `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count: %w", err)
	}

	query := `SELECT id, kind, file_name, url, saved_path, document_path, document_name, checksum, created_at
		FROM transfers ` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Kind, &r.FileName, &r.URL, &r.SavedPath,
			&r.DocumentPath, &r.DocumentName, &r.Checksum, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Wipe removes every indexed entry (used before a rebuild).
func (db *DB) Wipe() error {
	if _, err := db.conn.Exec(`DELETE FROM transfers`); err != nil {
		return fmt.Errorf("index: wipe: %w", err)
	}
	return nil
}

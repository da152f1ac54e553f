package index

import (
	"log/slog"

	"github.com/starford/raido/internal/records"
)

// Rebuild wipes the index and reloads it from the durable log. Called
// once at startup so queries reflect records written by earlier runs.
func Rebuild(db *DB, store *records.Store, logger *slog.Logger) error {
	entries, err := store.All()
	if err != nil {
		return err
	}
	if err := db.Wipe(); err != nil {
		return err
	}
	for _, rec := range entries {
		if err := db.Insert(rec); err != nil {
			logger.Warn("index: rebuild insert failed",
				slog.String("file", rec.FileName),
				slog.String("error", err.Error()))
		}
	}
	logger.Debug("index: rebuilt", slog.Int("records", len(entries)))
	return nil
}

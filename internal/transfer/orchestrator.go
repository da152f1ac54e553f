// Package transfer executes single transfers end to end: moving bytes
// through the blob client, rewriting the document, and appending to the
// transfer log. Sequencing, status transitions, and retry live in the
// engine; this package performs exactly one operation at a time.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/blob"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/records"
	"github.com/starford/raido/internal/vault"
)

// DefaultDownloadDir is used when no download folder is configured.
const DefaultDownloadDir = "attachments"

// SnapshotFunc returns the current immutable store settings. It is
// called once per operation (once per bulk batch for the base lookup),
// never mid-operation.
type SnapshotFunc func() blob.Snapshot

// Orchestrator coordinates the vault, the blob client, and the logs.
type Orchestrator struct {
	vault       vault.Vault
	log         *records.Store
	idx         *index.DB // optional
	snapshot    SnapshotFunc
	downloadDir string
	logger      *slog.Logger
}

// New creates an orchestrator. idx may be nil; downloadDir may be empty
// to use the default attachment location.
func New(v vault.Vault, log *records.Store, idx *index.DB, snapshot SnapshotFunc, downloadDir string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		vault:       v,
		log:         log,
		idx:         idx,
		snapshot:    snapshot,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// ResolveBase resolves the public base URL from a fresh settings
// snapshot. Callers resolve once per operation and abort before any
// item transitions when this fails.
func (o *Orchestrator) ResolveBase(ctx context.Context) (string, error) {
	return blob.NewClient(o.snapshot()).ResolveBase(ctx)
}

// Upload transfers one resolved local reference and rewrites docPath.
// Returns the public URL the document now points at.
func (o *Orchestrator) Upload(ctx context.Context, base, docPath string, item models.LocalImage) (string, error) {
	if item.ResolvedPath == "" {
		return "", apperr.ErrNoSourceFile
	}

	data, err := o.vault.Read(item.ResolvedPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrNoSourceFile, err)
	}

	key := item.ResolvedName
	if key == "" {
		key = filepath.Base(item.ResolvedPath)
	}

	cfg := o.snapshot()
	publicURL, err := blob.NewClient(cfg).Upload(ctx, base, data, key, mimeFor(key))
	if err != nil {
		return "", err
	}

	embed := fmt.Sprintf("![%s](%s)", key, publicURL)
	if err := o.rewrite(docPath, item.RawText, embed); err != nil {
		return "", err
	}

	customURL := ""
	if cfg.CustomDomain != "" {
		customURL = strings.TrimSuffix(cfg.CustomDomain, "/") + "/" + url.PathEscape(key)
	}
	o.appendRecord(models.TransferRecord{
		Kind:         models.RecordUpload,
		FileName:     key,
		SourcePath:   item.ResolvedPath,
		PublicURL:    publicURL,
		CustomURL:    customURL,
		DocumentPath: docPath,
		DocumentName: path.Base(docPath),
		Checksum:     checksum.Sum(data),
		Timestamp:    time.Now().UTC(),
	})

	o.logger.Info("uploaded image",
		slog.String("file", key),
		slog.String("url", publicURL),
		slog.String("document", docPath))
	return publicURL, nil
}

// Download fetches one remote reference into the vault and rewrites
// docPath. Returns the saved file name (possibly disambiguated).
func (o *Orchestrator) Download(ctx context.Context, docPath string, item models.RemoteImage) (string, error) {
	data, err := blob.NewClient(o.snapshot()).Download(ctx, item.URL)
	if err != nil {
		return "", err
	}

	dir := o.downloadDir
	if dir == "" {
		dir = DefaultDownloadDir
	}
	if err := o.vault.EnsureDir(dir); err != nil {
		return "", err
	}

	name := o.vault.AvailableName(dir, item.FileName)
	savedPath := path.Join(dir, name)
	if err := o.vault.Write(savedPath, data); err != nil {
		return "", err
	}

	if err := o.rewrite(docPath, item.RawText, fmt.Sprintf("![[%s]]", name)); err != nil {
		return "", err
	}

	o.appendRecord(models.TransferRecord{
		Kind:         models.RecordDownload,
		FileName:     name,
		SavedPath:    savedPath,
		RemoteURL:    item.URL,
		DocumentPath: docPath,
		DocumentName: path.Base(docPath),
		Checksum:     checksum.Sum(data),
		Timestamp:    time.Now().UTC(),
	})

	o.logger.Info("downloaded image",
		slog.String("file", name),
		slog.String("url", item.URL),
		slog.String("document", docPath))
	return name, nil
}

// rewrite replaces every literal occurrence of raw in the live document
// buffer. Two references sharing identical raw text are rewritten
// together; identity is the raw text itself.
func (o *Orchestrator) rewrite(docPath, raw, replacement string) error {
	content, err := o.vault.Read(docPath)
	if err != nil {
		return fmt.Errorf("transfer: read document: %w", err)
	}
	updated := strings.ReplaceAll(string(content), raw, replacement)
	if err := o.vault.Write(docPath, []byte(updated)); err != nil {
		return fmt.Errorf("transfer: rewrite document: %w", err)
	}
	return nil
}

// appendRecord logs the transfer. The rewrite has already happened; a
// log failure is reported but does not undo it.
func (o *Orchestrator) appendRecord(rec models.TransferRecord) {
	if err := o.log.Append(rec); err != nil {
		o.logger.Warn("record append failed",
			slog.String("file", rec.FileName),
			slog.String("error", err.Error()))
		return
	}
	if o.idx != nil {
		if err := o.idx.Insert(rec); err != nil {
			o.logger.Warn("record index insert failed",
				slog.String("file", rec.FileName),
				slog.String("error", err.Error()))
		}
	}
}

func mimeFor(name string) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

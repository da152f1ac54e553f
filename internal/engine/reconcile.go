package engine

import (
	"path"
	"path/filepath"

	"github.com/starford/raido/internal/extract"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/vault"
)

// reconcileLocals merges freshly extracted local references with the
// previous tracked list. Items are keyed by raw text: a match carries
// the previous status and error message forward and refreshes only the
// line number and file resolution; unseen raw texts become new idle
// items; tracked items absent from the extraction are dropped silently.
// Done rows are the exception: a successful transfer rewrites its own
// raw text out of the document, so they linger until the removal timer
// drops them.
func reconcileLocals(matches []extract.LocalMatch, prev []*models.LocalImage, v vault.Vault, docPath string) []*models.LocalImage {
	byRaw := make(map[string]*models.LocalImage, len(prev))
	for _, item := range prev {
		byRaw[item.RawText] = item
	}

	docDir := path.Dir(docPath)
	if docDir == "." {
		docDir = ""
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]*models.LocalImage, 0, len(matches))
	for _, m := range matches {
		seen[m.RawText] = struct{}{}
		resolved := v.Resolve(m.TargetPath, docDir)
		name := m.TargetPath
		if resolved != "" {
			name = filepath.Base(resolved)
		}

		item := &models.LocalImage{
			RawText:      m.RawText,
			TargetPath:   m.TargetPath,
			ResolvedName: name,
			ResolvedPath: resolved,
			Status:       models.StatusIdle,
			Line:         m.Line,
		}
		if old, ok := byRaw[m.RawText]; ok {
			item.Status = old.Status
			item.ErrMessage = old.ErrMessage
		}
		out = append(out, item)
	}
	for _, old := range prev {
		if _, ok := seen[old.RawText]; ok {
			continue
		}
		if old.Status == models.StatusDone {
			out = append(out, old)
		}
	}
	return out
}

// reconcileRemotes is the remote-reference counterpart of
// reconcileLocals. Filename derivation and origin classification are
// recomputed from the fresh extraction.
func reconcileRemotes(matches []extract.RemoteMatch, prev []*models.RemoteImage) []*models.RemoteImage {
	byRaw := make(map[string]*models.RemoteImage, len(prev))
	for _, item := range prev {
		byRaw[item.RawText] = item
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]*models.RemoteImage, 0, len(matches))
	for _, m := range matches {
		seen[m.RawText] = struct{}{}
		item := &models.RemoteImage{
			RawText:     m.RawText,
			AltText:     m.AltText,
			URL:         m.URL,
			FileName:    m.FileName,
			KnownOrigin: m.KnownOrigin,
			Status:      models.StatusIdle,
			Line:        m.Line,
		}
		if old, ok := byRaw[m.RawText]; ok {
			item.Status = old.Status
			item.ErrMessage = old.ErrMessage
		}
		out = append(out, item)
	}
	for _, old := range prev {
		if _, ok := seen[old.RawText]; ok {
			continue
		}
		if old.Status == models.StatusDone {
			out = append(out, old)
		}
	}
	return out
}

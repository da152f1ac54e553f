// Package models defines the domain types for Raido.
package models

// Status is the transfer state of a tracked reference.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusTransferring Status = "transferring"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// LocalImage is one occurrence of a local wiki-style image embed in the
// active document. RawText is the identity key: duplicate occurrences of
// the same literal link collapse to a single tracked item.
type LocalImage struct {
	RawText      string `json:"raw_text"`
	TargetPath   string `json:"target_path"`
	ResolvedName string `json:"resolved_name"`
	// ResolvedPath is the vault-relative path of the source file, or
	// empty when the reference could not be resolved.
	ResolvedPath string `json:"resolved_path,omitempty"`
	Status       Status `json:"status"`
	Line         int    `json:"line"`
	ErrMessage   string `json:"error,omitempty"`
}

// RemoteImage is one occurrence of a standard remote image embed.
type RemoteImage struct {
	RawText  string `json:"raw_text"`
	AltText  string `json:"alt_text"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	// KnownOrigin is true when the URL already points at the configured
	// custom domain or a managed-storage hostname.
	KnownOrigin bool   `json:"known_origin"`
	Status      Status `json:"status"`
	Line        int    `json:"line"`
	ErrMessage  string `json:"error,omitempty"`
}

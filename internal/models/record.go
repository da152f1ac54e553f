package models

import "time"

// Record kinds.
const (
	RecordUpload   = "upload"
	RecordDownload = "download"
)

// TransferRecord is one immutable audit entry in the durable log.
// Upload records carry SourcePath, PublicURL, and CustomURL; download
// records carry SavedPath and RemoteURL. Records are created only on a
// successful transfer and are never mutated or deleted.
type TransferRecord struct {
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`

	SourcePath string `json:"sourcePath,omitempty"`
	PublicURL  string `json:"publicUrl,omitempty"`
	// CustomURL is empty when no custom domain is configured.
	CustomURL string `json:"customUrl,omitempty"`

	SavedPath string `json:"savedPath,omitempty"`
	RemoteURL string `json:"remoteUrl,omitempty"`

	DocumentPath string    `json:"documentPath"`
	DocumentName string    `json:"documentName"`
	Checksum     string    `json:"checksum,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

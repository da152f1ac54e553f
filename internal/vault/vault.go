// Package vault defines the document and file collaborator contracts.
package vault

// Vault is the interface for vault file operations consumed by the
// engine and the transfer orchestrator.
type Vault interface {
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
	// EnsureDir creates dir and all intermediate segments, tolerating
	// already-exists.
	EnsureDir(dir string) error
	// Resolve maps a link target to an existing vault-relative file path,
	// trying fromDir first, then the vault root, then a walk by base name.
	// It returns "" when nothing matches.
	Resolve(name, fromDir string) string
	// AvailableName returns a file name under dir that does not collide
	// with an existing file, disambiguating name if needed.
	AvailableName(dir, name string) string
}

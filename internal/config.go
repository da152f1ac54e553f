package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/blob"
)

var httpSchemeRe = regexp.MustCompile(`^https?://`)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultAPIBase is the management API endpoint used when none is
// configured.
const DefaultAPIBase = "https://api.cloudflare.com/client/v4"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Store     StoreConfig       `yaml:"store"`
	Transfers TransfersConfig   `yaml:"transfers"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// Snapshot captures the current store settings as an immutable value.
// Transfers read settings only through snapshots taken at operation
// start.
func (c *Config) Snapshot() blob.Snapshot {
	apiBase := c.Store.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return blob.Snapshot{
		AccountID:    c.Store.AccountID,
		APIToken:     c.Store.APIToken,
		Bucket:       c.Store.Bucket,
		CustomDomain: c.Store.CustomDomain,
		APIBase:      apiBase,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StoreConfig holds the object-storage bucket settings. Credentials may
// be left empty: transfers then fail per-item with a configuration
// error instead of blocking startup.
type StoreConfig struct {
	AccountID    string `yaml:"account_id"`
	APIToken     string `yaml:"api_token"`
	Bucket       string `yaml:"bucket"`
	CustomDomain string `yaml:"custom_domain"`
	APIBase      string `yaml:"api_base"`
}

// Validate normalizes the store configuration. Fields are trimmed and
// the custom domain loses any trailing slash so URL joining stays
// predictable.
func (c *StoreConfig) Validate() error {
	c.AccountID = strings.TrimSpace(c.AccountID)
	c.APIToken = strings.TrimSpace(c.APIToken)
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.CustomDomain = strings.TrimSuffix(strings.TrimSpace(c.CustomDomain), "/")
	c.APIBase = strings.TrimSuffix(strings.TrimSpace(c.APIBase), "/")

	if c.CustomDomain != "" {
		return validation.ValidateStruct(c,
			validation.Field(&c.CustomDomain,
				validation.Match(httpSchemeRe).Error("must start with http:// or https://")),
		)
	}
	return nil
}

// TransfersConfig holds transfer behavior settings.
type TransfersConfig struct {
	// DownloadDir is the vault-relative folder downloads are saved to.
	DownloadDir string `yaml:"download_dir"`
	// RecordsPath is the transfer log location. Empty means the
	// per-user default outside the vault.
	RecordsPath string `yaml:"records_path"`
}

// SQLiteConfig holds the transfer record index database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./raido.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// Package config provides configuration loading and management for the manifest sync service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/manifest-sync/internal/telemetry"
)

// EnvPrefix is the prefix of environment variables read by the CLI.
const EnvPrefix = "MANIFEST_SYNC"

const (
	// ManifestTypeHTTP fetches the manifest from an HTTP(S) URL
	ManifestTypeHTTP = "http"

	// ManifestTypeGit reads the manifest from a file in a Git repository
	ManifestTypeGit = "git"

	// ManifestTypeFile reads the manifest from the local filesystem
	ManifestTypeFile = "file"
)

const (
	// StorageTypeDatabase stores version records in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeFile stores version records in a local JSON file
	StorageTypeFile = "file"
)

const (
	// SinkTypeHTTP posts location deltas to an HTTP endpoint
	SinkTypeHTTP = "http"

	// SinkTypeLog writes location deltas to the log
	SinkTypeLog = "log"
)

// Defaults applied by LoadConfig when a value is not set.
const (
	DefaultBranch          = "main"
	DefaultCatalogInfoPath = "catalog-info.yaml"
	DefaultTargetTemplate  = "https://bitbucket.org/{workspace}/{repoSlug}/src/{branch}/{path}"
	DefaultSyncInterval    = 30 * time.Minute
	DefaultSyncTimeout     = 5 * time.Minute
	DefaultManifestTimeout = 30 * time.Second
	DefaultStorageFilePath = "./data/versions.json"
	DefaultSinkTimeout     = 30 * time.Second
	DefaultSinkMaxRetries  = 3
	DefaultLogLevel        = "info"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Manifest    ManifestConfig     `yaml:"manifest"`
	Catalog     CatalogConfig      `yaml:"catalog,omitempty"`
	Sync        SyncConfig         `yaml:"sync,omitempty"`
	Storage     StorageConfig      `yaml:"storage,omitempty"`
	Credentials []CredentialConfig `yaml:"credentials,omitempty"`
	Sink        SinkConfig         `yaml:"sink,omitempty"`
	Telemetry   *telemetry.Config  `yaml:"telemetry,omitempty"`
	Logging     LoggingConfig      `yaml:"logging,omitempty"`
}

// ManifestConfig defines where the manifest is read from
type ManifestConfig struct {
	// URL is the manifest location. For git manifests it is the repository URL,
	// for file manifests a path or file:// URL.
	URL string `yaml:"url"`

	// Type is one of http, git or file. Defaults to http.
	Type string `yaml:"type,omitempty"`

	// Git holds settings for git manifests
	Git *GitConfig `yaml:"git,omitempty"`

	// Timeout bounds a single manifest download (e.g. "30s")
	Timeout Duration `yaml:"timeout,omitempty"`
}

// GitConfig defines Git manifest settings
type GitConfig struct {
	// Branch is the branch to read; the remote HEAD is used when empty
	Branch string `yaml:"branch,omitempty"`

	// Path is the path of the manifest file within the repository
	Path string `yaml:"path"`
}

// CatalogConfig controls how location targets are built
type CatalogConfig struct {
	DefaultBranch          string `yaml:"defaultBranch,omitempty"`
	DefaultCatalogInfoPath string `yaml:"defaultCatalogInfoPath,omitempty"`

	// TargetTemplate may reference {workspace}, {repoSlug}, {branch} and {path}
	TargetTemplate string `yaml:"targetTemplate,omitempty"`
}

// SyncConfig defines the reconciliation schedule
type SyncConfig struct {
	Interval Duration `yaml:"interval,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`

	// StatusFile persists the last pass status across restarts when set
	StatusFile string `yaml:"statusFile,omitempty"`
}

// StorageConfig selects the version store backend
type StorageConfig struct {
	Type     string          `yaml:"type,omitempty"`
	File     *FileConfig     `yaml:"file,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// FileConfig defines the file store location
type FileConfig struct {
	Path string `yaml:"path"`
}

// CredentialConfig binds credentials to a URL prefix
type CredentialConfig struct {
	URLPrefix string `yaml:"urlPrefix"`

	// Type is basic or bearer. Defaults to basic.
	Type     string `yaml:"type,omitempty"`
	Username string `yaml:"username,omitempty"`

	// SecretFile is the path to a file holding the password or token
	SecretFile string `yaml:"secretFile"`
}

// SinkConfig selects where location deltas are published
type SinkConfig struct {
	Type string          `yaml:"type,omitempty"`
	HTTP *HTTPSinkConfig `yaml:"http,omitempty"`
}

// HTTPSinkConfig defines the HTTP sink endpoint
type HTTPSinkConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	TokenFile  string   `yaml:"tokenFile,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty"`

	// MaxRetries is nil when unset; an explicit 0 disables retries
	MaxRetries *uint `yaml:"maxRetries,omitempty"`
}

// LoggingConfig controls log verbosity
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime Duration `yaml:"connMaxLifetime,omitempty"`
}

// Duration is a time.Duration that unmarshals from a YAML duration string
type Duration time.Duration

// UnmarshalYAML parses strings such as "30s" or "1h"
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LoadConfig loads, defaults and validates configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Manifest.Type == "" {
		c.Manifest.Type = ManifestTypeHTTP
	}
	if c.Manifest.Timeout == 0 {
		c.Manifest.Timeout = Duration(DefaultManifestTimeout)
	}
	if c.Catalog.DefaultBranch == "" {
		c.Catalog.DefaultBranch = DefaultBranch
	}
	if c.Catalog.DefaultCatalogInfoPath == "" {
		c.Catalog.DefaultCatalogInfoPath = DefaultCatalogInfoPath
	}
	if c.Catalog.TargetTemplate == "" {
		c.Catalog.TargetTemplate = DefaultTargetTemplate
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(DefaultSyncInterval)
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = Duration(DefaultSyncTimeout)
	}
	if c.Storage.Type == "" {
		c.Storage.Type = StorageTypeFile
	}
	if c.Storage.Type == StorageTypeFile && c.Storage.File == nil {
		c.Storage.File = &FileConfig{Path: DefaultStorageFilePath}
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkTypeLog
	}
	if c.Sink.HTTP != nil {
		if c.Sink.HTTP.Timeout == 0 {
			c.Sink.HTTP.Timeout = Duration(DefaultSinkTimeout)
		}
		if c.Sink.HTTP.MaxRetries == nil {
			retries := uint(DefaultSinkMaxRetries)
			c.Sink.HTTP.MaxRetries = &retries
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	var errs []error

	if err := c.Manifest.validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Catalog.DefaultBranch) == "" {
		errs = append(errs, fmt.Errorf("catalog.defaultBranch cannot be blank"))
	}
	if c.Sync.Interval < 0 || c.Sync.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sync.interval and sync.timeout must be positive"))
	}
	if err := c.Storage.validate(); err != nil {
		errs = append(errs, err)
	}
	for i, cred := range c.Credentials {
		if err := cred.validate(); err != nil {
			errs = append(errs, fmt.Errorf("credentials[%d]: %w", i, err))
		}
	}
	if err := c.Sink.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %s", c.Logging.Level))
	}

	return errors.Join(errs...)
}

func (m *ManifestConfig) validate() error {
	if m.URL == "" {
		return fmt.Errorf("manifest.url is required")
	}
	switch m.Type {
	case ManifestTypeHTTP:
		u, err := url.Parse(m.URL)
		if err != nil {
			return fmt.Errorf("manifest.url is invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("manifest.url must use http or https, got %q", u.Scheme)
		}
	case ManifestTypeGit:
		if m.Git == nil || m.Git.Path == "" {
			return fmt.Errorf("manifest.git.path is required for git manifests")
		}
	case ManifestTypeFile:
	default:
		return fmt.Errorf("manifest.type must be one of http, git, file; got %s", m.Type)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Type {
	case StorageTypeFile:
		if s.File == nil || s.File.Path == "" {
			return fmt.Errorf("storage.file.path is required")
		}
	case StorageTypeDatabase:
		if s.Database == nil {
			return fmt.Errorf("storage.database is required for database storage")
		}
		return s.Database.validate()
	default:
		return fmt.Errorf("storage.type must be one of database, file; got %s", s.Type)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("storage.database.host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("storage.database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("storage.database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("storage.database.database is required")
	}
	return nil
}

func (c *CredentialConfig) validate() error {
	if c.URLPrefix == "" {
		return fmt.Errorf("urlPrefix is required")
	}
	if c.SecretFile == "" {
		return fmt.Errorf("secretFile is required")
	}
	switch c.Type {
	case "", "basic":
		if c.Username == "" {
			return fmt.Errorf("username is required for basic credentials")
		}
	case "bearer":
	default:
		return fmt.Errorf("type must be basic or bearer, got %s", c.Type)
	}
	return nil
}

func (s *SinkConfig) validate() error {
	switch s.Type {
	case SinkTypeLog:
	case SinkTypeHTTP:
		if s.HTTP == nil || s.HTTP.Endpoint == "" {
			return fmt.Errorf("sink.http.endpoint is required for http sinks")
		}
	default:
		return fmt.Errorf("sink.type must be one of http, log; got %s", s.Type)
	}
	return nil
}

// ReadSecretFile reads a secret from path, trimming surrounding whitespace
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetPassword returns the database password read from PasswordFile
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile == "" {
		return "", fmt.Errorf("no database password configured: set storage.database.passwordFile")
	}
	return ReadSecretFile(d.PasswordFile)
}

// GetConnectionString builds a PostgreSQL connection URL.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

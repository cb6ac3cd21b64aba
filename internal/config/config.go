package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

// Storage URI schemes
const (
	SchemeGDrive = "gdrive"
	SchemeS3     = "s3"
	SchemeMemory = "memory"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Mount      MountConfig      `yaml:"mount"`
	Cache      CacheConfig      `yaml:"cache"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Network    NetworkConfig    `yaml:"network"`
	Storage    StorageConfig    `yaml:"storage"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"`
	// Rotation applies only to log_file; 0 disables it
	LogMaxSizeMB  int `yaml:"log_max_size_mb"`
	LogMaxBackups int `yaml:"log_max_backups"`
	// 0 disables the metrics endpoint
	MetricsPort int `yaml:"metrics_port"`
}

// MountConfig represents how the filesystem is presented to the host
type MountConfig struct {
	MountPoint   string        `yaml:"mount_point"`
	FSName       string        `yaml:"fsname"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// CacheConfig represents metadata cache configuration. Zero TTLs never
// expire.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	ListingTTL time.Duration `yaml:"listing_ttl"`
}

// FilesystemConfig selects read semantics
type FilesystemConfig struct {
	LegacyReads bool `yaml:"legacy_reads"`
	AllowBinary bool `yaml:"allow_binary"`
}

// NetworkConfig represents network configuration
type NetworkConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// StorageConfig selects and configures the remote backend
type StorageConfig struct {
	URI    string       `yaml:"uri"`
	GDrive GDriveConfig `yaml:"gdrive"`
	S3     S3Config     `yaml:"s3"`
}

// GDriveConfig locates the OAuth2 client secrets and token
type GDriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	AuthListen      string `yaml:"auth_listen"`
}

// S3Config represents S3 connection settings
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// StorageTarget is a parsed storage URI
type StorageTarget struct {
	Scheme string
	Bucket string
	Prefix string
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			LogFormat:     "console",
			LogMaxSizeMB:  100,
			LogMaxBackups: 3,
			MetricsPort:   9100,
		},
		Mount: MountConfig{
			FSName:       "gdrivefs",
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
		},
		Storage: StorageConfig{
			URI: "gdrive://",
			GDrive: GDriveConfig{
				CredentialsFile: "~/.config/gdrivefs/credentials.json",
				TokenFile:       "~/.config/gdrivefs/token.json",
				AuthListen:      "127.0.0.1:8085",
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").WithContext("path", filename).WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").WithContext("path", filename).WithCause(err)
	}

	return nil
}

// LoadFromEnv loads configuration from GDRIVEFS_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("GDRIVEFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("GDRIVEFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("GDRIVEFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if err := envInt("GDRIVEFS_METRICS_PORT", &c.Global.MetricsPort); err != nil {
		return err
	}

	// Mount settings
	if val := os.Getenv("GDRIVEFS_MOUNT_POINT"); val != "" {
		c.Mount.MountPoint = val
	}
	if err := envBool("GDRIVEFS_ALLOW_OTHER", &c.Mount.AllowOther); err != nil {
		return err
	}

	// Cache and filesystem settings
	if err := envDuration("GDRIVEFS_CACHE_TTL", &c.Cache.TTL); err != nil {
		return err
	}
	if err := envDuration("GDRIVEFS_LISTING_TTL", &c.Cache.ListingTTL); err != nil {
		return err
	}
	if err := envBool("GDRIVEFS_LEGACY_READS", &c.Filesystem.LegacyReads); err != nil {
		return err
	}
	if err := envBool("GDRIVEFS_ALLOW_BINARY", &c.Filesystem.AllowBinary); err != nil {
		return err
	}

	// Network settings
	if err := envInt("GDRIVEFS_RETRY_MAX_ATTEMPTS", &c.Network.Retry.MaxAttempts); err != nil {
		return err
	}

	// Storage settings
	if val := os.Getenv("GDRIVEFS_STORAGE_URI"); val != "" {
		c.Storage.URI = val
	}
	if val := os.Getenv("GDRIVEFS_CREDENTIALS_FILE"); val != "" {
		c.Storage.GDrive.CredentialsFile = val
	}
	if val := os.Getenv("GDRIVEFS_TOKEN_FILE"); val != "" {
		c.Storage.GDrive.TokenFile = val
	}
	if val := os.Getenv("GDRIVEFS_S3_REGION"); val != "" {
		c.Storage.S3.Region = val
	}
	if val := os.Getenv("GDRIVEFS_S3_ENDPOINT"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("GDRIVEFS_S3_ACCESS_KEY_ID"); val != "" {
		c.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("GDRIVEFS_S3_SECRET_ACCESS_KEY"); val != "" {
		c.Storage.S3.SecretAccessKey = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Global.LogFormat != "console" && c.Global.LogFormat != "json" {
		return invalid("invalid log_format: %s (must be console or json)", c.Global.LogFormat)
	}
	if c.Global.LogMaxSizeMB < 0 || c.Global.LogMaxBackups < 0 {
		return invalid("log rotation limits cannot be negative")
	}
	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return invalid("metrics_port out of range: %d", c.Global.MetricsPort)
	}

	if c.Cache.TTL < 0 || c.Cache.ListingTTL < 0 {
		return invalid("cache ttl values cannot be negative")
	}
	if c.Mount.AttrTimeout < 0 || c.Mount.EntryTimeout < 0 {
		return invalid("mount timeouts cannot be negative")
	}

	if c.Network.Retry.MaxAttempts <= 0 {
		return invalid("retry max_attempts must be greater than 0")
	}
	if c.Network.Retry.BaseDelay < 0 || c.Network.Retry.MaxDelay < c.Network.Retry.BaseDelay {
		return invalid("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	if c.Network.CircuitBreaker.Enabled && c.Network.CircuitBreaker.FailureThreshold <= 0 {
		return invalid("circuit_breaker failure_threshold must be greater than 0")
	}

	target, err := ParseStorageURI(c.Storage.URI)
	if err != nil {
		return err
	}
	if target.Scheme == SchemeGDrive && c.Storage.GDrive.TokenFile == "" {
		return invalid("storage.gdrive.token_file is required for gdrive storage")
	}
	if target.Scheme == SchemeS3 && (c.Storage.S3.AccessKeyID == "") != (c.Storage.S3.SecretAccessKey == "") {
		return invalid("storage.s3 access_key_id and secret_access_key must be set together")
	}

	return nil
}

// ParseStorageURI parses gdrive://, s3://bucket[/prefix] and memory://.
func ParseStorageURI(uri string) (StorageTarget, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return StorageTarget{}, invalid("invalid storage uri %q: %v", uri, err)
	}

	target := StorageTarget{Scheme: u.Scheme}
	switch u.Scheme {
	case SchemeGDrive, SchemeMemory:
		if u.Host != "" || strings.Trim(u.Path, "/") != "" {
			return StorageTarget{}, invalid("storage uri %q takes no host or path", uri)
		}
	case SchemeS3:
		if u.Host == "" {
			return StorageTarget{}, invalid("storage uri %q is missing the bucket", uri)
		}
		target.Bucket = u.Host
		target.Prefix = strings.Trim(u.Path, "/")
	default:
		return StorageTarget{}, invalid("unsupported storage scheme %q (use gdrive, s3 or memory)", u.Scheme)
	}
	return target, nil
}

// ExpandPath replaces a leading "~/" with the home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func invalid(format string, args ...interface{}) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).WithComponent("config")
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return invalid("%s: %q is not an integer", name, val)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return invalid("%s: %q is not a boolean", name, val)
	}
	*dst = b
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return invalid("%s: %q is not a duration", name, val)
	}
	*dst = d
	return nil
}

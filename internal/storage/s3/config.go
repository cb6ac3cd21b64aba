package s3

import (
	"time"
)

// Config represents S3 backend configuration
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// SDK-level attempts per request. Retries across requests belong to
	// the resilient client.
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// NewDefaultConfig creates a new S3 configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     1,
		RequestTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	defaults := NewDefaultConfig()
	if c.Region == "" {
		c.Region = defaults.Region
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
}

// HasStaticCredentials reports whether an access key pair is configured.
func (c *Config) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

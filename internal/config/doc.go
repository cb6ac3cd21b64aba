/*
Package config loads and validates gdrivefs configuration.

Sources are applied in increasing precedence: compiled-in defaults
(NewDefault), a YAML file (LoadFromFile), GDRIVEFS_* environment
variables (LoadFromEnv) and finally command-line flags, which the
gdrivefs command applies directly to the Configuration.

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

# File Layout

	global:
	  log_level: INFO        # DEBUG, INFO, WARN, ERROR
	  log_file: ""           # empty logs to stderr
	  log_format: console    # console or json
	  log_max_size_mb: 100   # rotate log_file past this size, 0 never
	  log_max_backups: 3
	  metrics_port: 9100     # 0 disables /metrics
	mount:
	  mount_point: /mnt/drive
	  fsname: gdrivefs
	  allow_other: false
	  attr_timeout: 1s
	  entry_timeout: 1s
	cache:
	  ttl: 0s                # 0 never expires
	  listing_ttl: 0s
	filesystem:
	  legacy_reads: false
	  allow_binary: false
	network:
	  retry: {max_attempts: 3, base_delay: 200ms, max_delay: 5s}
	  circuit_breaker: {enabled: true, failure_threshold: 5, timeout: 30s}
	storage:
	  uri: gdrive://         # gdrive://, s3://bucket[/prefix], memory://
	  gdrive:
	    credentials_file: ~/.config/gdrivefs/credentials.json
	    token_file: ~/.config/gdrivefs/token.json
	    auth_listen: 127.0.0.1:8085
	  s3:
	    region: us-east-1
	    endpoint: ""
	    force_path_style: false

# Environment Variables

GDRIVEFS_LOG_LEVEL, GDRIVEFS_LOG_FILE, GDRIVEFS_LOG_FORMAT,
GDRIVEFS_METRICS_PORT, GDRIVEFS_MOUNT_POINT, GDRIVEFS_ALLOW_OTHER,
GDRIVEFS_CACHE_TTL, GDRIVEFS_LISTING_TTL, GDRIVEFS_LEGACY_READS,
GDRIVEFS_ALLOW_BINARY, GDRIVEFS_RETRY_MAX_ATTEMPTS, GDRIVEFS_STORAGE_URI,
GDRIVEFS_CREDENTIALS_FILE, GDRIVEFS_TOKEN_FILE, GDRIVEFS_S3_REGION,
GDRIVEFS_S3_ENDPOINT, GDRIVEFS_S3_ACCESS_KEY_ID and
GDRIVEFS_S3_SECRET_ACCESS_KEY. Values that do not parse are reported as
INVALID_CONFIG errors naming the variable.

Paths beginning with "~/" are expanded with ExpandPath when they are used.
*/
package config

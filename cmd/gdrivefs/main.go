// gdrivefs mounts a Google Drive account, an S3 bucket or an in-memory tree
// as a FUSE filesystem.
//
// Usage:
//
//	gdrivefs [flags] [MOUNTPOINT]
//	gdrivefs auth [--config FILE]
//
// Configuration is read from compiled-in defaults, then the --config file,
// then GDRIVEFS_* environment variables, then flags. SIGINT and SIGTERM
// unmount the filesystem before exiting.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/adapter"
	"github.com/gdrivefs/gdrivefs/internal/config"
	"github.com/gdrivefs/gdrivefs/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	storage     string
	logLevel    string
	logFile     string
	metricsPort int
	legacyReads bool
	cacheTTL    time.Duration
	debug       bool
}

func newFlagSet(name string, opts *options, output io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flagSet.StringVar(&opts.storage, "storage", "", "storage URI: gdrive://, s3://bucket[/prefix] or memory://")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flagSet.StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")
	flagSet.IntVar(&opts.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	flagSet.BoolVar(&opts.legacyReads, "legacy-reads", false, "return whole files at offset 0 and nothing after")
	flagSet.DurationVar(&opts.cacheTTL, "cache-ttl", 0, "how long fetched metadata stays valid (0 never expires)")
	flagSet.BoolVarP(&opts.debug, "debug", "d", false, "log every FUSE request")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func run(ctx context.Context, args []string, output io.Writer) error {
	if len(args) > 0 && args[0] == "auth" {
		return runAuth(ctx, args[1:], output)
	}

	var opts options
	flagSet := newFlagSet("gdrivefs", &opts, output)
	if err := flagSet.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, output)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, output)
		return nil
	}

	positional := flagSet.Args()
	if len(positional) > 1 {
		return fmt.Errorf("expected one MOUNTPOINT argument, got %d", len(positional))
	}

	cfg, err := loadConfig(&opts, flagSet)
	if err != nil {
		return err
	}

	mountPoint := cfg.Mount.MountPoint
	if len(positional) == 1 {
		mountPoint = positional[0]
	}
	if mountPoint == "" {
		printHelp(flagSet, output)
		return fmt.Errorf("MOUNTPOINT is required")
	}
	mountPoint = config.ExpandPath(mountPoint)

	logger, err := logging.New(logging.Config{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		File:       config.ExpandPath(cfg.Global.LogFile),
		MaxSizeMB:  cfg.Global.LogMaxSizeMB,
		MaxBackups: cfg.Global.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := adapter.New(ctx, "", mountPoint, cfg, adapter.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	served := make(chan struct{})
	go func() {
		a.Wait()
		close(served)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-served:
		logger.Info("filesystem was unmounted externally")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func runAuth(ctx context.Context, args []string, output io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("gdrivefs auth", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	if err := flagSet.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if len(flagSet.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Args()[0])
	}

	cfg, err := loadConfig(&opts, flagSet)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Global.LogLevel, Format: cfg.Global.LogFormat})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	authenticator, err := adapter.NewAuthenticator(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := authenticator.Authorize(ctx); err != nil {
		return err
	}

	fmt.Fprintf(output, "Token saved to %s\n", config.ExpandPath(cfg.Storage.GDrive.TokenFile))
	return nil
}

// loadConfig applies defaults, the config file, the environment and then
// every flag the user set explicitly.
func loadConfig(opts *options, flagSet *pflag.FlagSet) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if opts.configPath != "" {
		if err := cfg.LoadFromFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		f := flagSet.Lookup(name)
		return f != nil && f.Changed
	}
	if changed("storage") {
		cfg.Storage.URI = opts.storage
	}
	if changed("log-level") {
		cfg.Global.LogLevel = opts.logLevel
	}
	if changed("log-file") {
		cfg.Global.LogFile = opts.logFile
	}
	if changed("metrics-port") {
		cfg.Global.MetricsPort = opts.metricsPort
	}
	if changed("legacy-reads") {
		cfg.Filesystem.LegacyReads = opts.legacyReads
	}
	if changed("cache-ttl") {
		cfg.Cache.TTL = opts.cacheTTL
	}
	if changed("debug") {
		cfg.Mount.Debug = opts.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printHelp(flagSet *pflag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, `gdrivefs mounts remote storage as a filesystem.

Usage:
  gdrivefs [flags] [MOUNTPOINT]
  gdrivefs auth [--config FILE]

MOUNTPOINT defaults to mount.mount_point from the configuration.

Examples:
  # Mount Google Drive (runs the browser authorization on first use)
  gdrivefs ~/drive

  # Mount a bucket prefix with metrics on :9100
  gdrivefs --storage s3://archive/team --metrics-port 9100 /mnt/archive

  # Authorize without mounting
  gdrivefs auth

Flags:
`)
	flagSet.PrintDefaults()
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rybkr/logarc/internal/errs"
)

// Loader reads configuration from layered sources: struct defaults, an
// optional config file, environment variables (LOGARC_ prefixed), and
// finally explicit overrides (e.g. CLI flags). Later sources win.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader seeded with Default()'s values and ready to
// read environment variables.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("LOGARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, Default())
	return &Loader{v: v}
}

// setDefaults registers every key of the default Config with viper, one
// SetDefault call per key listed by hand, so viper's own defaults match
// Default().
func setDefaults(v *viper.Viper, defaults Config) {
	v.SetDefault("extraction.max_depth", defaults.Extraction.MaxDepth)
	v.SetDefault("extraction.max_file_size", defaults.Extraction.MaxFileSize)
	v.SetDefault("extraction.max_total_size", defaults.Extraction.MaxTotalSize)
	v.SetDefault("extraction.max_workspace_size", defaults.Extraction.MaxWorkspaceSize)
	v.SetDefault("extraction.buffer_size", defaults.Extraction.BufferSize)
	v.SetDefault("extraction.dir_batch_size", defaults.Extraction.DirBatchSize)
	v.SetDefault("extraction.max_parallel_files", defaults.Extraction.MaxParallelFiles)

	v.SetDefault("security.compression_ratio_threshold", defaults.Security.CompressionRatioThreshold)
	v.SetDefault("security.exponential_backoff_threshold", defaults.Security.ExponentialBackoffThreshold)
	v.SetDefault("security.enable_zip_bomb_detection", defaults.Security.EnableZipBombDetection)

	v.SetDefault("paths.enable_long_paths", defaults.Paths.EnableLongPaths)
	v.SetDefault("paths.shortening_threshold", defaults.Paths.ShorteningThreshold)
	v.SetDefault("paths.hash_algorithm", defaults.Paths.HashAlgorithm)
	v.SetDefault("paths.hash_length", defaults.Paths.HashLength)

	v.SetDefault("performance.temp_dir_ttl_hours", defaults.Performance.TempDirTTLHours)
	v.SetDefault("performance.log_retention_days", defaults.Performance.LogRetentionDays)
	v.SetDefault("performance.enable_streaming", defaults.Performance.EnableStreaming)
	v.SetDefault("performance.directory_batch_size", defaults.Performance.DirectoryBatchSize)
	v.SetDefault("performance.parallel_files_per_archive", defaults.Performance.ParallelFilesPerArchive)

	v.SetDefault("audit.enable_audit_logging", defaults.Audit.EnableAuditLogging)
	v.SetDefault("audit.log_format", defaults.Audit.LogFormat)
	v.SetDefault("audit.log_level", defaults.Audit.LogLevel)
	v.SetDefault("audit.log_security_events", defaults.Audit.LogSecurityEvents)

	v.SetDefault("cache.max_capacity", defaults.Cache.MaxCapacity)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.tti", defaults.Cache.TTI)
	v.SetDefault("cache.enable_l2", defaults.Cache.EnableL2)
	v.SetDefault("cache.l2_url", defaults.Cache.L2URL)
	v.SetDefault("cache.compression_threshold", defaults.Cache.CompressionThreshold)
	v.SetDefault("cache.enable_compression", defaults.Cache.EnableCompression)

	v.SetDefault("search.timeout_ms", defaults.Search.TimeoutMS)
	v.SetDefault("search.max_results", defaults.Search.MaxResults)
	v.SetDefault("search.writer_heap_bytes", defaults.Search.WriterHeapBytes)
}

// LoadFile merges a YAML config file into the loader, if it exists. A
// missing file is not an error: the layered defaults/env still apply.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.IoError, "stat config file", err).WithPath(path)
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return errs.Wrap(errs.Validation, "parse config file", err).WithPath(path)
	}
	return nil
}

// LoadUserConfig merges ~/.logarc.yaml, if present.
func (l *Loader) LoadUserConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return l.LoadFile(filepath.Join(home, ".logarc.yaml"))
}

// ApplyOverrides applies explicit key/value overrides (dotted key ->
// value), the highest-precedence layer, typically CLI flags.
func (l *Loader) ApplyOverrides(overrides map[string]any) {
	for key, value := range overrides {
		if value != nil {
			l.v.Set(key, value)
		}
	}
}

// Build decodes the layered sources into a Config. It does not validate:
// callers should pass the result through Validate before using it.
func (l *Loader) Build() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	return cfg, nil
}

// Load runs the full layered precedence (defaults < user config file <
// project config file < environment < overrides) and returns the decoded,
// not-yet-validated Config.
func Load(projectConfigPath string, overrides map[string]any) (Config, error) {
	l := NewLoader()
	if err := l.LoadUserConfig(); err != nil {
		return Config{}, err
	}
	if err := l.LoadFile(projectConfigPath); err != nil {
		return Config{}, err
	}
	l.ApplyOverrides(overrides)
	return l.Build()
}

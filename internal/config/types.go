// Package config loads and validates the engine's configuration from
// layered sources (defaults, file, environment, CLI overrides) into one
// typed Config, and serves reads of the current value to the rest of the
// process. A config update is validated as a whole before it replaces the
// previous value: a single bad field rejects the entire update and leaves
// the running configuration untouched.
package config

import "time"

// Config is the full set of recognized configuration keys.
type Config struct {
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Security    SecurityConfig    `mapstructure:"security"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Search      SearchConfig      `mapstructure:"search"`
}

// ExtractionConfig controls the extraction engine's budgets and
// concurrency.
type ExtractionConfig struct {
	MaxDepth         int   `mapstructure:"max_depth" validate:"gte=1,lte=20"`
	MaxFileSize      int64 `mapstructure:"max_file_size" validate:"gt=0"`
	MaxTotalSize     int64 `mapstructure:"max_total_size" validate:"gt=0"`
	MaxWorkspaceSize int64 `mapstructure:"max_workspace_size" validate:"gt=0"`
	BufferSize       int   `mapstructure:"buffer_size" validate:"gt=0"`
	DirBatchSize     int   `mapstructure:"dir_batch_size" validate:"gt=0"`
	MaxParallelFiles int   `mapstructure:"max_parallel_files" validate:"gte=1,lte=8"`
}

// SecurityConfig controls the security detector's thresholds.
type SecurityConfig struct {
	CompressionRatioThreshold   float64 `mapstructure:"compression_ratio_threshold" validate:"gt=0"`
	ExponentialBackoffThreshold float64 `mapstructure:"exponential_backoff_threshold" validate:"gt=0"`
	EnableZipBombDetection      bool    `mapstructure:"enable_zip_bomb_detection"`
}

// PathsConfig controls virtual-path shortening.
type PathsConfig struct {
	EnableLongPaths     bool    `mapstructure:"enable_long_paths"`
	ShorteningThreshold float64 `mapstructure:"shortening_threshold" validate:"gt=0,lte=1"`
	HashAlgorithm       string  `mapstructure:"hash_algorithm" validate:"oneof=SHA256 SHA512"`
	HashLength          int     `mapstructure:"hash_length" validate:"gte=8,lte=32"`
}

// PerformanceConfig controls temp-file lifetime, log retention, and the
// streaming/batching knobs that overlap in meaning with ExtractionConfig's
// dir_batch_size/max_parallel_files (the spec documents both; this engine
// treats Performance's values as the effective ones when both are set and
// differ, since they're the newer, more general names).
type PerformanceConfig struct {
	TempDirTTLHours        int  `mapstructure:"temp_dir_ttl_hours" validate:"gte=1"`
	LogRetentionDays       int  `mapstructure:"log_retention_days" validate:"gte=1"`
	EnableStreaming        bool `mapstructure:"enable_streaming"`
	DirectoryBatchSize     int  `mapstructure:"directory_batch_size" validate:"gte=1"`
	ParallelFilesPerArchive int `mapstructure:"parallel_files_per_archive" validate:"gte=1,lte=8"`
}

// AuditConfig controls structured logging and security-event logging.
type AuditConfig struct {
	EnableAuditLogging bool   `mapstructure:"enable_audit_logging"`
	LogFormat          string `mapstructure:"log_format" validate:"oneof=json text"`
	LogLevel           string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogSecurityEvents  bool   `mapstructure:"log_security_events"`
}

// CacheConfig controls the multi-tier result cache.
type CacheConfig struct {
	MaxCapacity          int           `mapstructure:"max_capacity" validate:"gt=0"`
	TTL                  time.Duration `mapstructure:"ttl" validate:"gt=0"`
	TTI                  time.Duration `mapstructure:"tti" validate:"gt=0"`
	EnableL2             bool          `mapstructure:"enable_l2"`
	L2URL                string        `mapstructure:"l2_url"`
	CompressionThreshold int           `mapstructure:"compression_threshold" validate:"gte=0"`
	EnableCompression    bool          `mapstructure:"enable_compression"`
}

// SearchConfig controls the search engine's query budgets.
type SearchConfig struct {
	TimeoutMS       int   `mapstructure:"timeout_ms" validate:"gt=0"`
	MaxResults      int   `mapstructure:"max_results" validate:"gt=0"`
	WriterHeapBytes int64 `mapstructure:"writer_heap_bytes" validate:"gt=0"`
}

// Default returns the documented default configuration, matching each
// component package's own DefaultConfig values field for field.
func Default() Config {
	return Config{
		Extraction: ExtractionConfig{
			MaxDepth:         10,
			MaxFileSize:      100 << 20,
			MaxTotalSize:     10 << 30,
			MaxWorkspaceSize: 100 << 30,
			BufferSize:       64 << 10,
			DirBatchSize:     10,
			MaxParallelFiles: 4,
		},
		Security: SecurityConfig{
			CompressionRatioThreshold:   100.0,
			ExponentialBackoffThreshold: 50.0,
			EnableZipBombDetection:      true,
		},
		Paths: PathsConfig{
			EnableLongPaths:     true,
			ShorteningThreshold: 0.9,
			HashAlgorithm:       "SHA256",
			HashLength:          16,
		},
		Performance: PerformanceConfig{
			TempDirTTLHours:         24,
			LogRetentionDays:        30,
			EnableStreaming:         true,
			DirectoryBatchSize:      10,
			ParallelFilesPerArchive: 4,
		},
		Audit: AuditConfig{
			EnableAuditLogging: true,
			LogFormat:          "text",
			LogLevel:           "info",
			LogSecurityEvents:  true,
		},
		Cache: CacheConfig{
			MaxCapacity:          500,
			TTL:                  10 * time.Minute,
			TTI:                  2 * time.Minute,
			EnableL2:             false,
			CompressionThreshold: 64 * 1024,
			EnableCompression:    true,
		},
		Search: SearchConfig{
			TimeoutMS:       200,
			MaxResults:      100,
			WriterHeapBytes: 64 << 20,
		},
	}
}

package config

import (
	"time"

	"github.com/rybkr/logarc/internal/cache"
	"github.com/rybkr/logarc/internal/extract"
	"github.com/rybkr/logarc/internal/pathmgr"
	"github.com/rybkr/logarc/internal/search"
	"github.com/rybkr/logarc/internal/security"
)

// ExtractConfig builds an extract.Config from the Extraction section,
// preferring Performance's directory_batch_size/parallel_files_per_archive
// when they differ from Extraction's own dir_batch_size/max_parallel_files.
func (c Config) ExtractConfig() extract.Config {
	dirBatch := c.Extraction.DirBatchSize
	if c.Performance.DirectoryBatchSize > 0 {
		dirBatch = c.Performance.DirectoryBatchSize
	}
	parallel := c.Extraction.MaxParallelFiles
	if c.Performance.ParallelFilesPerArchive > 0 {
		parallel = c.Performance.ParallelFilesPerArchive
	}
	return extract.Config{
		MaxDepth:         c.Extraction.MaxDepth,
		MaxFileSize:      c.Extraction.MaxFileSize,
		MaxTotalSize:     c.Extraction.MaxTotalSize,
		MaxWorkspaceSize: c.Extraction.MaxWorkspaceSize,
		BufferSize:       c.Extraction.BufferSize,
		DirBatchSize:     dirBatch,
		MaxParallelFiles: parallel,
	}
}

// SecurityConfigValue builds a security.Config from the Security section.
// The forbidden-extension list isn't a recognized config key (the spec
// leaves it a fixed list), so it's taken from security.DefaultConfig.
func (c Config) SecurityConfigValue() security.Config {
	defaults := security.DefaultConfig()
	return security.Config{
		EnableZipBombDetection:      c.Security.EnableZipBombDetection,
		CompressionRatioThreshold:   c.Security.CompressionRatioThreshold,
		ExponentialBackoffThreshold: c.Security.ExponentialBackoffThreshold,
		ForbiddenExtensions:         defaults.ForbiddenExtensions,
		MaxDepth:                    c.Extraction.MaxDepth,
		MaxFileCount:                defaults.MaxFileCount,
		MaxTotalBytes:               c.Extraction.MaxTotalSize,
	}
}

// PathConfig builds a pathmgr.Config from the Paths section. A workspace
// with long-path support disabled lowers the component ceiling to
// HashLength+8 bytes and the total ceiling to four times that, so any path
// with a longer component or a longer total is shortened.
func (c Config) PathConfig() pathmgr.Config {
	algorithm := pathmgr.SHA256
	if c.Paths.HashAlgorithm == "SHA512" {
		algorithm = pathmgr.SHA512
	}
	maxComponent := 255
	maxTotal := 4096
	if !c.Paths.EnableLongPaths {
		maxComponent = c.Paths.HashLength + 8
		maxTotal = maxComponent * 4
	}
	return pathmgr.Config{
		MaxComponentLength: maxComponent,
		MaxTotalLength:     maxTotal,
		HashLength:         c.Paths.HashLength,
		Algorithm:          algorithm,
	}
}

// CacheConfigValue builds a cache.Config from the Cache section.
func (c Config) CacheConfigValue() cache.Config {
	return cache.Config{
		MaxCapacity:          c.Cache.MaxCapacity,
		TTL:                  c.Cache.TTL,
		TTI:                  c.Cache.TTI,
		EnableL2:             c.Cache.EnableL2,
		L2URL:                c.Cache.L2URL,
		CompressionThreshold: c.Cache.CompressionThreshold,
		EnableCompression:    c.Cache.EnableCompression,
	}
}

// SearchConfigValue builds a search.Config from the Search section, taking
// the partition/regex-cache/suggestion tuning this engine doesn't expose
// as top-level keys from search.DefaultConfig.
func (c Config) SearchConfigValue() search.Config {
	defaults := search.DefaultConfig()
	return search.Config{
		WriterHeapBytes: int(c.Search.WriterHeapBytes),
		TimeoutMS:       c.Search.TimeoutMS,
		MaxResults:      c.Search.MaxResults,
		PartitionSize:   defaults.PartitionSize,
		RegexCacheSize:  defaults.RegexCacheSize,
		MaxSuggestions:  defaults.MaxSuggestions,
	}
}

// TempDirTTL returns the performance section's temp directory lifetime as
// a time.Duration.
func (c Config) TempDirTTL() time.Duration {
	return time.Duration(c.Performance.TempDirTTLHours) * time.Hour
}

// LogRetention returns the performance section's log retention window as a
// time.Duration.
func (c Config) LogRetention() time.Duration {
	return time.Duration(c.Performance.LogRetentionDays) * 24 * time.Hour
}

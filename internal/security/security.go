// Package security rejects malicious or runaway archive entries before
// they consume unbounded resources: zip bombs, path traversal, forbidden
// extensions, and budget exhaustion. Every rejection is reported as an
// Event (to Detector.OnEvent, when set) in addition to the returned error, so a caller (the
// extraction engine) can both abort the offending entry and notify
// observers without re-deriving the diagnostic detail.
package security

import (
	"strings"
	"time"

	"github.com/rybkr/logarc/internal/errs"
)

// Severity classifies how serious a security event is.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
)

func (s Severity) String() string {
	if s == SeverityCritical {
		return "critical"
	}
	return "warning"
}

// Event is emitted whenever a check in this package rejects an entry.
type Event struct {
	ArchivePath string
	Type        errs.Code
	Severity    Severity
	Message     string
	Diagnostic  map[string]any
	Occurred    time.Time
}

// Config holds the thresholds and budgets the Detector enforces.
type Config struct {
	EnableZipBombDetection    bool
	CompressionRatioThreshold float64 // uncompressed/compressed above this is a bomb
	ExponentialBackoffThreshold float64 // carried from configuration; no check in this package reads it, so there is no throttling below CompressionRatioThreshold

	ForbiddenExtensions map[string]struct{}

	MaxDepth      int
	MaxFileCount  int64
	MaxTotalBytes int64
}

// DefaultConfig matches spec's documented security defaults.
func DefaultConfig() Config {
	return Config{
		EnableZipBombDetection:      true,
		CompressionRatioThreshold:   100.0,
		ExponentialBackoffThreshold: 50.0,
		ForbiddenExtensions:         map[string]struct{}{".exe": {}, ".dll": {}, ".so": {}, ".bat": {}, ".cmd": {}},
		MaxDepth:                    10,
		MaxFileCount:                1_000_000,
		MaxTotalBytes:               10 * 1 << 30, // 10 GiB
	}
}

// Detector applies Config's rules and reports every rejection as an Event
// via OnEvent, if set.
type Detector struct {
	cfg     Config
	OnEvent func(Event)
}

// New returns a Detector enforcing cfg.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) emit(archivePath string, code errs.Code, severity Severity, message string, diag map[string]any) {
	if d.OnEvent == nil {
		return
	}
	d.OnEvent(Event{
		ArchivePath: archivePath,
		Type:        code,
		Severity:    severity,
		Message:     message,
		Diagnostic:  diag,
		Occurred:    time.Now(),
	})
}

// CheckCompressionRatio rejects an entry whose uncompressed size is
// disproportionate to its compressed size, the classic zip-bomb signature.
func (d *Detector) CheckCompressionRatio(archivePath string, compressedSize, uncompressedSize int64) error {
	if !d.cfg.EnableZipBombDetection || compressedSize <= 0 {
		return nil
	}
	ratio := float64(uncompressedSize) / float64(compressedSize)
	if ratio > d.cfg.CompressionRatioThreshold {
		d.emit(archivePath, errs.ZipBombDetected, SeverityCritical, "compression ratio exceeds zip-bomb threshold",
			map[string]any{"ratio": ratio, "threshold": d.cfg.CompressionRatioThreshold,
				"compressed_size": compressedSize, "uncompressed_size": uncompressedSize})
		return errs.New(errs.ZipBombDetected, "entry compression ratio exceeds configured threshold").
			WithPath(archivePath).WithContext("ratio", ratio)
	}
	return nil
}

// CheckPath rejects a virtual path that attempts traversal outside the
// workspace root or contains characters disallowed on the host filesystem.
func (d *Detector) CheckPath(archivePath, virtualPath string) error {
	clean := strings.TrimPrefix(virtualPath, "/")
	for _, comp := range strings.Split(clean, "/") {
		if comp == ".." {
			d.emit(archivePath, errs.PathTraversalAttempt, SeverityCritical, "virtual path escapes workspace root",
				map[string]any{"path": virtualPath})
			return errs.New(errs.PathTraversalAttempt, "path contains a traversal component").
				WithPath(virtualPath)
		}
		if strings.ContainsAny(comp, "\x00") {
			d.emit(archivePath, errs.PathTraversalAttempt, SeverityCritical, "virtual path contains a null byte",
				map[string]any{"path": virtualPath})
			return errs.New(errs.PathTraversalAttempt, "path contains a disallowed character").
				WithPath(virtualPath)
		}
	}
	if strings.HasPrefix(virtualPath, "//") {
		d.emit(archivePath, errs.PathTraversalAttempt, SeverityCritical, "virtual path is absolute outside the workspace",
			map[string]any{"path": virtualPath})
		return errs.New(errs.PathTraversalAttempt, "path is absolute").WithPath(virtualPath)
	}
	return nil
}

// CheckExtension rejects entries whose extension is in the configured
// forbidden set.
func (d *Detector) CheckExtension(archivePath, name string) error {
	ext := strings.ToLower(extOf(name))
	if _, forbidden := d.cfg.ForbiddenExtensions[ext]; forbidden {
		d.emit(archivePath, errs.ForbiddenExtension, SeverityWarning, "entry extension is forbidden",
			map[string]any{"name": name, "extension": ext})
		return errs.New(errs.ForbiddenExtension, "entry extension is in the forbidden set").
			WithPath(name).WithContext("extension", ext)
	}
	return nil
}

func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx:]
}

// Budget tracks the cumulative state of a single archive's extraction and
// is checked after every entry.
type Budget struct {
	Depth     int
	FileCount int64
	TotalBytes int64
}

// CheckBudget rejects extraction once the archive's cumulative depth, file
// count, or byte budget is exceeded.
func (d *Detector) CheckBudget(archivePath string, b Budget) error {
	if b.Depth >= d.cfg.MaxDepth {
		d.emit(archivePath, errs.DepthLimitExceeded, SeverityWarning, "max extraction depth reached",
			map[string]any{"depth": b.Depth, "max_depth": d.cfg.MaxDepth})
		return errs.New(errs.DepthLimitExceeded, "maximum extraction depth reached").
			WithPath(archivePath).WithContext("depth", b.Depth)
	}
	if b.FileCount > d.cfg.MaxFileCount {
		d.emit(archivePath, errs.QuotaExceeded, SeverityCritical, "file count budget exceeded",
			map[string]any{"file_count": b.FileCount, "max_file_count": d.cfg.MaxFileCount})
		return errs.New(errs.QuotaExceeded, "archive exceeded its file count budget").WithPath(archivePath)
	}
	if b.TotalBytes > d.cfg.MaxTotalBytes {
		d.emit(archivePath, errs.QuotaExceeded, SeverityCritical, "byte budget exceeded",
			map[string]any{"total_bytes": b.TotalBytes, "max_total_bytes": d.cfg.MaxTotalBytes})
		return errs.New(errs.QuotaExceeded, "archive exceeded its total byte budget").WithPath(archivePath)
	}
	return nil
}

package extract

import "bytes"

// Format is an archive container type, detected by magic bytes rather than
// by file extension (a renamed or extensionless archive must still be
// recognized).
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatGzip
	FormatZstd
	FormatRar
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatRar:
		return "rar"
	default:
		return "unknown"
	}
}

var (
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	zipSpan   = []byte("PK\x07\x08")
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	rarMagic4 = []byte("Rar!\x1a\x07\x00")
	rarMagic5 = []byte("Rar!\x1a\x07\x01\x00")
)

// tarHeaderUstarOffset is where the "ustar" magic sits inside a 512-byte
// tar header block, per POSIX.1-1988.
const tarHeaderUstarOffset = 257

// DetectFormat inspects a bounded header read (at least 512 bytes when
// available) and returns the archive format it recognizes, or
// FormatUnknown if header matches no known container.
func DetectFormat(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmpty), bytes.HasPrefix(header, zipSpan):
		return FormatZip
	case bytes.HasPrefix(header, rarMagic5), bytes.HasPrefix(header, rarMagic4):
		return FormatRar
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	case len(header) >= tarHeaderUstarOffset+5 && bytes.Equal(header[tarHeaderUstarOffset:tarHeaderUstarOffset+5], []byte("ustar")):
		return FormatTar
	default:
		return FormatUnknown
	}
}

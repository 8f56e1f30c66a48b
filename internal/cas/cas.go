// Package cas implements the content-addressable blob store: hash-addressed
// storage on disk, fanned out by the first two hex characters of the SHA-256
// digest the way Git fans out loose objects under .git/objects/<aa>/<rest>.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rybkr/logarc/internal/errs"
)

// streamWindow is the buffer size used for incremental hashing of large
// inputs, capping peak memory at O(window) regardless of input size.
const streamWindow = 64 * 1024

// HashLen is the length of a lowercase-hex SHA-256 digest.
const HashLen = sha256.Size * 2

// Store is a hash-addressed blob store rooted at a single directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errs.Wrap(errs.IoError, "create objects root", err).WithPath(dir)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) pathFor(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

// Path returns the on-disk path of the object named by hash, for callers
// that need random access (e.g. opening a nested zip archive via ReaderAt)
// rather than a full read into memory.
func (s *Store) Path(hash string) string {
	return s.pathFor(hash)
}

// Store hashes bytes, writes them atomically if not already present, and
// returns the hash. Concurrent stores of identical bytes are safe: at most
// one rename wins and the losers observe the existing file.
func (s *Store) Store(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	dest := s.pathFor(hash)
	if _, err := os.Stat(dest); err == nil {
		return hash, nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", errs.Wrap(errs.IoError, "create fan-out directory", err).WithPath(dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", errs.Wrap(errs.IoError, "create temp file", err).WithPath(dir)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", errs.Wrap(errs.IoError, "write temp file", err).WithPath(tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", errs.Wrap(errs.IoError, "flush temp file", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return "", errs.Wrap(errs.IoError, "close temp file", err).WithPath(tmpPath)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		// Another writer may have won the race; treat an existing target as success.
		if _, statErr := os.Stat(dest); statErr == nil {
			return hash, nil
		}
		return "", errs.Wrap(errs.IoError, "rename into place", err).WithPath(dest)
	}

	return hash, nil
}

// StoreStreaming hashes and stores src incrementally, never buffering more
// than streamWindow bytes at a time. Intended for inputs >= 1 MiB.
func (s *Store) StoreStreaming(src io.Reader) (hash string, size int64, err error) {
	hasher := sha256.New()

	tmpDir := filepath.Join(s.root, ".incoming")
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return "", 0, errs.Wrap(errs.IoError, "create incoming directory", err).WithPath(tmpDir)
	}

	tmp, err := os.CreateTemp(tmpDir, ".tmp-*")
	if err != nil {
		return "", 0, errs.Wrap(errs.IoError, "create temp file", err).WithPath(tmpDir)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	buf := make([]byte, streamWindow)
	mw := io.MultiWriter(tmp, hasher)
	n, copyErr := io.CopyBuffer(mw, src, buf)
	if copyErr != nil {
		_ = tmp.Close()
		return "", 0, errs.Wrap(errs.IoError, "stream into temp file", copyErr).WithPath(tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", 0, errs.Wrap(errs.IoError, "flush temp file", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errs.Wrap(errs.IoError, "close temp file", err).WithPath(tmpPath)
	}

	hash = hex.EncodeToString(hasher.Sum(nil))
	dest := s.pathFor(hash)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", 0, errs.Wrap(errs.IoError, "create fan-out directory", err).WithPath(filepath.Dir(dest))
	}

	if _, statErr := os.Stat(dest); statErr == nil {
		return hash, n, nil
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			return hash, n, nil
		}
		return "", 0, errs.Wrap(errs.IoError, "rename into place", err).WithPath(dest)
	}

	return hash, n, nil
}

// Read loads the full blob named by hash.
func (s *Store) Read(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "object not found").WithPath(hash)
		}
		return nil, errs.Wrap(errs.IoError, "read object", err).WithPath(hash)
	}
	return data, nil
}

// Open returns a reader over the blob named by hash; the caller must Close it.
func (s *Store) Open(hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "object not found").WithPath(hash)
		}
		return nil, errs.Wrap(errs.IoError, "open object", err).WithPath(hash)
	}
	return f, nil
}

// Exists reports whether hash names an on-disk object.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.pathFor(hash))
	return err == nil
}

// Size returns the declared size of the object named by hash.
func (s *Store) Size(hash string) (int64, error) {
	info, err := os.Stat(s.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errs.New(errs.NotFound, "object not found").WithPath(hash)
		}
		return 0, errs.Wrap(errs.IoError, "stat object", err).WithPath(hash)
	}
	return info.Size(), nil
}

// TotalSize sums the size of every object under the store's root.
func (s *Store) TotalSize() (uint64, error) {
	var total uint64
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errs.Wrap(errs.IoError, "walk objects root", err).WithPath(s.root)
	}
	return total, nil
}

// Delete removes the blob named by hash. It is not an error to delete a
// hash that does not exist.
func (s *Store) Delete(hash string) error {
	if err := os.Remove(s.pathFor(hash)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.IoError, "delete object", err).WithPath(hash)
	}
	return nil
}

// Rehash recomputes the digest of the object named by hash and reports
// whether it matches, used by workspace validation.
func (s *Store) Rehash(hash string) (bool, int64, error) {
	data, err := s.Read(hash)
	if err != nil {
		return false, 0, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == hash, int64(len(data)), nil
}

// GCUnreferenced walks the objects tree and removes any blob whose hash is
// not present in referenced. It returns the number of blobs removed and the
// number of bytes freed. Ref-counting itself lives in the metadata index;
// this is the disk-side sweep once the index has computed the live set.
func (s *Store) GCUnreferenced(referenced map[string]struct{}) (removed int, freed int64, err error) {
	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		prefix := filepath.Base(filepath.Dir(path))
		hash := prefix + d.Name()
		if len(hash) != HashLen {
			return nil
		}
		if _, live := referenced[hash]; live {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return rmErr
		}
		removed++
		freed += info.Size()
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return removed, freed, nil
		}
		return removed, freed, errs.Wrap(errs.IoError, "gc objects root", err).WithPath(s.root)
	}
	return removed, freed, nil
}

// ValidHash reports whether s is a syntactically valid lowercase-hex SHA-256 digest.
func ValidHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && s == strings.ToLower(s)
}

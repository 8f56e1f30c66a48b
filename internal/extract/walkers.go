package extract

import (
	"archive/tar"
	"archive/zip"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// walkEntry is one entry yielded by an archiveWalker: a name, declared
// sizes (compressed size is -1 when the format doesn't track it
// separately), and a reader valid until the next call to Next.
type walkEntry struct {
	Name             string
	IsDir            bool
	UncompressedSize int64
	CompressedSize   int64 // -1 if the format has no separate compressed size
	Open             func() (io.ReadCloser, error)
}

// archiveWalker yields entries from an opened archive in the order its
// underlying format exposes them. Next returns io.EOF when exhausted.
type archiveWalker interface {
	Next() (walkEntry, error)
}

// zipWalker supports independent, concurrent reads per entry because zip
// is a random-access container (backed by a ReaderAt).
type zipWalker struct {
	files []*zip.File
	pos   int
}

func newZipWalker(r io.ReaderAt, size int64) (*zipWalker, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return &zipWalker{files: zr.File}, nil
}

func (w *zipWalker) Next() (walkEntry, error) {
	if w.pos >= len(w.files) {
		return walkEntry{}, io.EOF
	}
	f := w.files[w.pos]
	w.pos++
	return walkEntry{
		Name:             f.Name,
		IsDir:            f.FileInfo().IsDir(),
		UncompressedSize: int64(f.UncompressedSize64),
		CompressedSize:   int64(f.CompressedSize64),
		Open:             func() (io.ReadCloser, error) { return f.Open() },
	}, nil
}

// tarWalker is forward-only: entries share a single underlying reader and
// must be consumed before the next Next() call, so terminal files from a
// tar stream are stored sequentially rather than concurrently.
type tarWalker struct {
	tr *tar.Reader
}

func newTarWalker(r io.Reader) *tarWalker {
	return &tarWalker{tr: tar.NewReader(r)}
}

func (w *tarWalker) Next() (walkEntry, error) {
	hdr, err := w.tr.Next()
	if err != nil {
		return walkEntry{}, err
	}
	tr := w.tr
	return walkEntry{
		Name:             hdr.Name,
		IsDir:            hdr.Typeflag == tar.TypeDir,
		UncompressedSize: hdr.Size,
		CompressedSize:   -1,
		Open:             func() (io.ReadCloser, error) { return io.NopCloser(tr), nil },
	}, nil
}

// rarWalker is forward-only for the same reason as tarWalker.
type rarWalker struct {
	rr *rardecode.Reader
}

func newRarWalker(r io.Reader) (*rarWalker, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &rarWalker{rr: rr}, nil
}

func (w *rarWalker) Next() (walkEntry, error) {
	hdr, err := w.rr.Next()
	if err != nil {
		return walkEntry{}, err
	}
	rr := w.rr
	return walkEntry{
		Name:             hdr.Name,
		IsDir:            hdr.IsDir,
		UncompressedSize: hdr.UnPackedSize,
		CompressedSize:   -1,
		Open:             func() (io.ReadCloser, error) { return io.NopCloser(rr), nil },
	}, nil
}

package compress

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Entry is a single regular file inside an archive
type Entry struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Reader iterates the regular files of a .tar.gz stream
type Reader struct {
	file io.Closer
	gz   *gzip.Reader
	tr   *tar.Reader
	done bool
}

// Open opens the archive at path for iteration
func Open(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	r.file = f
	return r, nil
}

// NewReader wraps a gzip-compressed tar stream
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip header: %w", err)
	}
	return &Reader{gz: gz, tr: tar.NewReader(gz)}, nil
}

// Next advances to the next regular file, skipping directories, links and
// hidden or metadata members (names starting with "." or "__").
func (r *Reader) Next() (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}

	for {
		hdr, err := r.tr.Next()
		if errors.Is(err, io.EOF) {
			r.done = true
			return Entry{}, io.EOF
		}
		if err != nil {
			return Entry{}, fmt.Errorf("failed to read archive entry: %w", err)
		}

		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		if isHidden(hdr.Name) {
			continue
		}

		return Entry{Name: hdr.Name, Size: hdr.Size, Reader: r.tr}, nil
	}
}

// Close releases the gzip stream and the underlying file if any
func (r *Reader) Close() error {
	err := r.gz.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// isHidden reports whether any path element marks the member as metadata
func isHidden(name string) bool {
	for _, part := range strings.Split(path.Clean(name), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
		if strings.HasPrefix(part, "__") {
			return true
		}
	}
	return false
}

// Stem returns the base name of an entry without directories or extension
func Stem(name string) string {
	base := path.Base(name)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

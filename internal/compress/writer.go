package compress

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultFileMode is the permission recorded for packed files
const DefaultFileMode = 0644

// File is an archive member to be packed
type File struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// TarGzWriter appends members to a gzip-compressed tar stream
type TarGzWriter struct {
	gz *gzip.Writer
	tw *tar.Writer
}

// NewTarGzWriter starts an archive on w
func NewTarGzWriter(w io.Writer) *TarGzWriter {
	gz := gzip.NewWriter(w)
	return &TarGzWriter{gz: gz, tw: tar.NewWriter(gz)}
}

// Add appends one member
func (w *TarGzWriter) Add(f File) error {
	return writeMember(w.tw, f)
}

// Close finishes the tar and gzip streams; it does not close the
// underlying writer.
func (w *TarGzWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		w.gz.Close()
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// WriteTarGz packs files into a gzip-compressed tar, preserving order
func WriteTarGz(w io.Writer, files []File) error {
	tgz := NewTarGzWriter(w)
	for _, f := range files {
		if err := tgz.Add(f); err != nil {
			tgz.Close()
			return err
		}
	}
	return tgz.Close()
}

// CreateTarGz writes files to a new archive at filePath
func CreateTarGz(filePath string, files []File) error {
	out, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := WriteTarGz(out, files); err != nil {
		out.Close()
		os.Remove(filePath)
		return err
	}
	return out.Close()
}

func writeMember(tw *tar.Writer, f File) error {
	modTime := f.ModTime
	if modTime.IsZero() {
		modTime = time.Unix(0, 0)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     f.Name,
		Mode:     DefaultFileMode,
		Size:     int64(len(f.Data)),
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", f.Name, err)
	}
	if _, err := tw.Write(f.Data); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}

package dataset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytget/plastic-in-river/internal/compress"
)

// pngBytes returns a w x h opaque PNG filled with shade
func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// tarGz packs files into an in-memory archive and opens a reader on it
func tarGz(t *testing.T, files []compress.File) *compress.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, compress.WriteTarGz(&buf, files))
	r, err := compress.NewReader(&buf)
	require.NoError(t, err)
	return r
}

// fixture describes one split as parallel image/annotation members
type fixture struct {
	images      []compress.File
	annotations []compress.File
}

func newFixture(t *testing.T, annotations ...string) fixture {
	t.Helper()
	var f fixture
	for i, text := range annotations {
		f.images = append(f.images, compress.File{
			Name: fmt.Sprintf("images/%04d.png", i),
			Data: pngBytes(t, 3+i, 2, uint8(10*i)),
		})
		f.annotations = append(f.annotations, compress.File{
			Name: fmt.Sprintf("annotations/%04d.txt", i),
			Data: []byte(text),
		})
	}
	return f
}

func (f fixture) load(t *testing.T, opts ...Option) *Examples {
	t.Helper()
	return Load(tarGz(t, f.images), tarGz(t, f.annotations), opts...)
}

// writeArchives stores the fixture as images/annotations archives in dir
func (f fixture) writeArchives(t *testing.T, dir string) (string, string) {
	t.Helper()
	images := filepath.Join(dir, "images.tar.gz")
	annotations := filepath.Join(dir, "annotations.tar.gz")
	require.NoError(t, compress.CreateTarGz(images, f.images))
	require.NoError(t, compress.CreateTarGz(annotations, f.annotations))
	return images, annotations
}

// fakeDownloader serves local paths from a table and records requests
type fakeDownloader struct {
	paths    map[string]string
	requests []map[string]string
	err      error
}

func (d *fakeDownloader) Download(_ context.Context, urls map[string]string) (map[string]string, error) {
	d.requests = append(d.requests, urls)
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]string, len(urls))
	for key := range urls {
		if p, ok := d.paths[key]; ok {
			out[key] = p
		}
	}
	return out, nil
}

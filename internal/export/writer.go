// Package export writes loaded splits back to disk: archives in the published
// layout (optionally downscaled), a JSON Lines listing and box previews.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/compress"
	"github.com/ytget/plastic-in-river/internal/model"
	"github.com/ytget/plastic-in-river/internal/picture"
)

// Output names inside the export directory
const (
	ImagesArchive      = "images.tar.gz"
	AnnotationsArchive = "annotations.tar.gz"
	PreviewDir         = "previews"
	JSONLExt           = ".jsonl"
)

// DefaultJPEGQuality is used when re-encoding JPEG images
const DefaultJPEGQuality = 90

// ErrNoImage is returned for records loaded without image decoding
var ErrNoImage = errors.New("record has no decoded image")

// Options controls what WriteSplit produces
type Options struct {
	// MaxSide downscales images whose longer side exceeds it; 0 keeps size
	MaxSide int
	// Previews writes a PNG with the boxes drawn for every record
	Previews bool
	// JPEGQuality applies to images re-encoded as JPEG
	JPEGQuality int
}

// Result lists what WriteSplit wrote
type Result struct {
	Split              model.Split `json:"split"`
	Records            int         `json:"records"`
	Items              int         `json:"items"`
	ImagesArchive      string      `json:"images_archive"`
	AnnotationsArchive string      `json:"annotations_archive"`
	JSONL              string      `json:"jsonl"`
	PreviewDir         string      `json:"preview_dir,omitempty"`
}

// Writer exports splits under a root directory
type Writer struct {
	dir  string
	opts Options
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, opts Options) *Writer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	return &Writer{dir: dir, opts: opts}
}

// jsonRecord is one JSON Lines entry; the image is summarized by its shape
type jsonRecord struct {
	Index          int                `json:"index"`
	ImageName      string             `json:"image_name"`
	AnnotationName string             `json:"annotation_name"`
	Image          imageShape         `json:"image"`
	Litter         []model.LitterItem `json:"litter"`
}

type imageShape struct {
	Shape [3]int `json:"shape"`
}

// splitOutput holds the open streams of one split
type splitOutput struct {
	imagesFile      *os.File
	annotationsFile *os.File
	jsonlFile       *os.File
	images          *compress.TarGzWriter
	annotations     *compress.TarGzWriter
	jsonl           *bufio.Writer
}

// WriteSplit drains records into {dir}/{split}/images.tar.gz,
// {dir}/{split}/annotations.tar.gz and {dir}/{split}.jsonl. Records must
// carry decoded images.
func (w *Writer) WriteSplit(split model.Split, records iter.Seq2[int, model.Record]) (res Result, err error) {
	splitDir := filepath.Join(w.dir, string(split))
	res = Result{
		Split:              split,
		ImagesArchive:      filepath.Join(splitDir, ImagesArchive),
		AnnotationsArchive: filepath.Join(splitDir, AnnotationsArchive),
		JSONL:              filepath.Join(w.dir, string(split)+JSONLExt),
	}
	if w.opts.Previews {
		res.PreviewDir = filepath.Join(splitDir, PreviewDir)
	}

	if err := os.MkdirAll(splitDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create export directory: %w", err)
	}
	if res.PreviewDir != "" {
		if err := os.MkdirAll(res.PreviewDir, 0755); err != nil {
			return res, fmt.Errorf("failed to create preview directory: %w", err)
		}
	}

	out, err := openSplitOutput(res)
	if err != nil {
		return res, err
	}
	defer func() {
		if closeErr := out.close(); err == nil {
			err = closeErr
		}
	}()

	enc := json.NewEncoder(out.jsonl)
	for i, rec := range records {
		if err := w.writeRecord(out, enc, res.PreviewDir, i, rec); err != nil {
			return res, fmt.Errorf("record %d: %w", i, err)
		}
		res.Records++
		res.Items += len(rec.Litter)
	}
	return res, nil
}

func (w *Writer) writeRecord(out *splitOutput, enc *json.Encoder, previewDir string, idx int, rec model.Record) error {
	if rec.Image == nil {
		return ErrNoImage
	}

	img, scale := picture.Thumbnail(rec.Image, w.opts.MaxSide)
	items := rec.Litter
	if items == nil {
		items = []model.LitterItem{}
	}
	if scale != 1 {
		items = picture.ScaleItems(items, scale)
	}

	imageName := rec.ImageName
	if imageName == "" {
		imageName = fmt.Sprintf("images/%06d.png", idx)
	}
	imageName, data, err := w.encodeImage(imageName, img)
	if err != nil {
		return err
	}
	if err := out.images.Add(compress.File{Name: imageName, Data: data}); err != nil {
		return err
	}

	annotationName := rec.AnnotationName
	if annotationName == "" {
		annotationName = path.Join("annotations", compress.Stem(imageName)+".txt")
	}
	var buf bytes.Buffer
	if err := annotation.Format(&buf, items); err != nil {
		return fmt.Errorf("failed to format annotations: %w", err)
	}
	if err := out.annotations.Add(compress.File{Name: annotationName, Data: buf.Bytes()}); err != nil {
		return err
	}

	b := img.Bounds()
	line := jsonRecord{
		Index:          idx,
		ImageName:      imageName,
		AnnotationName: annotationName,
		Image:          imageShape{Shape: [3]int{b.Dy(), b.Dx(), rec.Image.Channels}},
		Litter:         items,
	}
	if err := enc.Encode(line); err != nil {
		return fmt.Errorf("failed to write json line: %w", err)
	}

	if previewDir != "" {
		preview := picture.DrawBoxes(img, items)
		previewPath := filepath.Join(previewDir, compress.Stem(imageName)+".png")
		if err := imaging.Save(preview, previewPath); err != nil {
			return fmt.Errorf("failed to save preview: %w", err)
		}
	}
	return nil
}

// encodeImage encodes img in the format of name. Formats imaging cannot
// write fall back to PNG and the name extension is changed accordingly.
func (w *Writer) encodeImage(name string, img image.Image) (string, []byte, error) {
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		format = imaging.PNG
		name = strings.TrimSuffix(name, path.Ext(name)) + ".png"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(w.opts.JPEGQuality)); err != nil {
		return "", nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return name, buf.Bytes(), nil
}

func openSplitOutput(res Result) (*splitOutput, error) {
	out := &splitOutput{}
	var err error
	if out.imagesFile, err = os.Create(res.ImagesArchive); err != nil {
		return nil, fmt.Errorf("failed to create images archive: %w", err)
	}
	if out.annotationsFile, err = os.Create(res.AnnotationsArchive); err != nil {
		out.imagesFile.Close()
		return nil, fmt.Errorf("failed to create annotations archive: %w", err)
	}
	if out.jsonlFile, err = os.Create(res.JSONL); err != nil {
		out.imagesFile.Close()
		out.annotationsFile.Close()
		return nil, fmt.Errorf("failed to create json lines file: %w", err)
	}

	out.images = compress.NewTarGzWriter(out.imagesFile)
	out.annotations = compress.NewTarGzWriter(out.annotationsFile)
	out.jsonl = bufio.NewWriter(out.jsonlFile)
	return out, nil
}

// close finishes every stream and joins their errors
func (o *splitOutput) close() error {
	return errors.Join(
		o.images.Close(),
		o.imagesFile.Close(),
		o.annotations.Close(),
		o.annotationsFile.Close(),
		o.jsonl.Flush(),
		o.jsonlFile.Close(),
	)
}

package dataset

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/compress"
	"github.com/ytget/plastic-in-river/internal/model"
	"github.com/ytget/plastic-in-river/internal/picture"
)

// ErrUnpaired is returned in PairByStem mode when one archive has more
// entries than the other.
var ErrUnpaired = errors.New("archive entry has no counterpart")

// Pairing selects how image and annotation entries are matched
type Pairing int

const (
	// PairByPosition matches the k-th image with the k-th annotation and
	// stops silently at the end of the shorter archive.
	PairByPosition Pairing = iota
	// PairByStem additionally requires matching file name stems and equal
	// entry counts.
	PairByStem
)

// String returns the configuration name of the pairing
func (p Pairing) String() string {
	if p == PairByStem {
		return "stem"
	}
	return "position"
}

// ParsePairing converts "position" or "stem" into a Pairing
func ParsePairing(name string) (Pairing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "position":
		return PairByPosition, nil
	case "stem":
		return PairByStem, nil
	}
	return PairByPosition, fmt.Errorf("unknown pairing %q", name)
}

// PairError reports two entries at the same position whose stems differ
type PairError struct {
	Index          int
	ImageName      string
	AnnotationName string
}

func (e *PairError) Error() string {
	return fmt.Sprintf("entry %d: image %q does not match annotation %q", e.Index, e.ImageName, e.AnnotationName)
}

// EntryError reports a failure while producing the record at Index
type EntryError struct {
	Index int
	Name  string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("entry %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

type options struct {
	pairing      Pairing
	mode         annotation.Mode
	decodeImages bool
}

func defaultOptions() options {
	return options{pairing: PairByPosition, mode: annotation.Lenient, decodeImages: true}
}

// Option configures Load
type Option func(*options)

// WithPairing sets how entries are matched
func WithPairing(p Pairing) Option {
	return func(o *options) { o.pairing = p }
}

// WithAnnotationMode sets how malformed annotation lines are handled
func WithAnnotationMode(m annotation.Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithImageDecoding turns pixel decoding on or off. With decoding off,
// records carry a nil image.
func WithImageDecoding(decode bool) Option {
	return func(o *options) { o.decodeImages = decode }
}

// Examples is a lazy, forward-only traversal of one split. It is not safe
// for concurrent use and cannot be restarted.
type Examples struct {
	images      compress.Iterator
	annotations compress.Iterator
	closers     []io.Closer
	opts        options

	produced int
	record   model.Record
	err      error
	done     bool
}

// Load pairs the entries of an image archive and an annotation archive
func Load(images, annotations compress.Iterator, opts ...Option) *Examples {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Examples{images: images, annotations: annotations, opts: o}
}

// Next advances to the next record. It returns false at the end of the
// shorter archive or on the first error; check Err afterwards.
func (e *Examples) Next() bool {
	if e.done {
		return false
	}
	idx := e.produced

	img, err := e.images.Next()
	if errors.Is(err, io.EOF) {
		if e.opts.pairing == PairByStem {
			return e.checkDrained(e.annotations, idx, "annotation")
		}
		return e.stop(nil)
	}
	if err != nil {
		return e.stop(&EntryError{Index: idx, Err: fmt.Errorf("image archive: %w", err)})
	}

	ann, err := e.annotations.Next()
	if errors.Is(err, io.EOF) {
		if e.opts.pairing == PairByStem {
			return e.stop(&EntryError{Index: idx, Name: img.Name, Err: fmt.Errorf("%w: image has no annotation", ErrUnpaired)})
		}
		return e.stop(nil)
	}
	if err != nil {
		return e.stop(&EntryError{Index: idx, Name: img.Name, Err: fmt.Errorf("annotation archive: %w", err)})
	}

	if e.opts.pairing == PairByStem && compress.Stem(img.Name) != compress.Stem(ann.Name) {
		return e.stop(&PairError{Index: idx, ImageName: img.Name, AnnotationName: ann.Name})
	}

	rec := model.Record{ImageName: img.Name, AnnotationName: ann.Name}
	if e.opts.decodeImages {
		pixels, err := picture.Decode(img.Reader)
		if err != nil {
			return e.stop(&EntryError{Index: idx, Name: img.Name, Err: err})
		}
		rec.Image = pixels
	}

	items, err := annotation.Parse(ann.Reader, e.opts.mode)
	if err != nil {
		return e.stop(&EntryError{Index: idx, Name: ann.Name, Err: err})
	}
	rec.Litter = items

	e.record = rec
	e.produced++
	return true
}

// checkDrained fails if the other archive still has entries
func (e *Examples) checkDrained(other compress.Iterator, idx int, what string) bool {
	entry, err := other.Next()
	if errors.Is(err, io.EOF) {
		return e.stop(nil)
	}
	if err != nil {
		return e.stop(&EntryError{Index: idx, Err: err})
	}
	return e.stop(&EntryError{Index: idx, Name: entry.Name, Err: fmt.Errorf("%w: %s has no image", ErrUnpaired, what)})
}

func (e *Examples) stop(err error) bool {
	e.done = true
	e.err = err
	e.record = model.Record{}
	return false
}

// Index returns the 0-based position of the current record
func (e *Examples) Index() int {
	return e.produced - 1
}

// Record returns the current record
func (e *Examples) Record() model.Record {
	return e.record
}

// Err returns the error that ended the traversal, if any
func (e *Examples) Err() error {
	return e.err
}

// All adapts the traversal to range-over-func. Errors are still reported by Err.
func (e *Examples) All() iter.Seq2[int, model.Record] {
	return func(yield func(int, model.Record) bool) {
		for e.Next() {
			if !yield(e.Index(), e.Record()) {
				return
			}
		}
	}
}

// Collect drains the traversal into a slice
func (e *Examples) Collect() ([]model.Record, error) {
	var records []model.Record
	for e.Next() {
		records = append(records, e.Record())
	}
	return records, e.Err()
}

// Close stops the traversal and releases any archives opened for it
func (e *Examples) Close() error {
	if !e.done {
		e.stop(nil)
	}
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

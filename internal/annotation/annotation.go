// Package annotation reads and writes the per-image litter annotation files:
// one item per line, "<label> <x1> <y1> <x2> <y2>", whitespace separated.
//
// Coordinates must be finite numbers; "nan" and "inf" tokens are rejected.
// A NaN coordinate in a parsed item therefore always means the line was too
// short to supply it.
package annotation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ytget/plastic-in-river/internal/model"
)

// FieldsPerLine is the number of tokens in a well formed line
const FieldsPerLine = 5

// maxLineSize bounds a single annotation line
const maxLineSize = 1024 * 1024

var (
	// ErrValue is wrapped by every token conversion or range failure
	ErrValue = errors.New("invalid annotation value")

	// ErrShortLine is returned in Strict mode for lines with fewer than five tokens
	ErrShortLine = fmt.Errorf("%w: too few fields", ErrValue)

	// ErrExtraFields is returned in Strict mode for lines with more than five tokens
	ErrExtraFields = fmt.Errorf("%w: too many fields", ErrValue)
)

// Mode selects how lines with a wrong number of tokens are treated
type Mode int

const (
	// Lenient keeps short lines as items whose missing coordinates are NaN
	// and ignores tokens past the fifth.
	Lenient Mode = iota
	// Strict rejects any line that does not have exactly five tokens.
	Strict
)

// String returns the configuration name of the mode
func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// ParseMode converts "lenient" or "strict" into a Mode
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return Lenient, fmt.Errorf("unknown annotation mode %q", name)
}

// LineError reports the line an annotation failure occurred on
type LineError struct {
	Line int // 1-based
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("annotation line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Parse reads an annotation file and returns its items in file order.
// Blank lines are skipped; an empty file yields an empty, non-nil slice.
func Parse(r io.Reader, mode Mode) ([]model.LitterItem, error) {
	// Decode as UTF-8, dropping a leading byte order mark
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	items := make([]model.LitterItem, 0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		item, err := ParseLine(line, mode)
		if err != nil {
			return nil, &LineError{Line: lineNo, Text: line, Err: err}
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}

	return items, nil
}

// ParseLine converts a single non-empty line into a litter item
func ParseLine(line string, mode Mode) (model.LitterItem, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return model.LitterItem{}, fmt.Errorf("%w: empty line", ErrShortLine)
	}
	if mode == Strict {
		if len(fields) < FieldsPerLine {
			return model.LitterItem{}, fmt.Errorf("%w: got %d", ErrShortLine, len(fields))
		}
		if len(fields) > FieldsPerLine {
			return model.LitterItem{}, fmt.Errorf("%w: got %d", ErrExtraFields, len(fields))
		}
	}

	label, err := parseLabel(fields[0])
	if err != nil {
		return model.LitterItem{}, err
	}

	item := model.LitterItem{Label: label}
	for i := range item.BBox {
		if i+1 >= len(fields) {
			item.BBox[i] = float32(math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(fields[i+1], 32)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return model.LitterItem{}, fmt.Errorf("%w: bbox value %q", ErrValue, fields[i+1])
		}
		item.BBox[i] = float32(v)
	}

	return item, nil
}

func parseLabel(token string) (model.Label, error) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w: label %q is not an integer", ErrValue, token)
	}
	label := model.Label(n)
	if !label.Valid() {
		return 0, fmt.Errorf("%w: label %d outside [0,%d]", ErrValue, n, model.NumLabels-1)
	}
	return label, nil
}

// Format writes items in the annotation file format, one line each
func Format(w io.Writer, items []model.LitterItem) error {
	bw := bufio.NewWriter(w)
	for _, item := range items {
		if _, err := fmt.Fprint(bw, int(item.Label)); err != nil {
			return err
		}
		for _, v := range item.BBox {
			if _, err := fmt.Fprint(bw, " ", strconv.FormatFloat(float64(v), 'f', -1, 32)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

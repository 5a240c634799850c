package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Label is the litter category of an annotated item
type Label int

const (
	LabelPlasticBag Label = iota
	LabelPlasticBottle
	LabelOtherPlasticWaste
	LabelNotPlasticWaste
)

// NumLabels is the number of litter categories
const NumLabels = 4

var labelNames = [NumLabels]string{
	"PLASTIC_BAG",
	"PLASTIC_BOTTLE",
	"OTHER_PLASTIC_WASTE",
	"NOT_PLASTIC_WASTE",
}

// LabelNames returns the category names indexed by label value
func LabelNames() []string {
	names := make([]string, NumLabels)
	copy(names, labelNames[:])
	return names
}

// Valid reports whether the label is inside the declared category range
func (l Label) Valid() bool {
	return l >= 0 && l < NumLabels
}

// String returns the category name, or Label(n) for out-of-range values
func (l Label) String() string {
	if !l.Valid() {
		return "Label(" + strconv.Itoa(int(l)) + ")"
	}
	return labelNames[l]
}

// ParseLabelName converts a category name into a Label
func ParseLabelName(name string) (Label, error) {
	for i, n := range labelNames {
		if n == name {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label name %q", name)
}

// BBox holds the four box coordinates x1, y1, x2, y2.
// Coordinates missing from a short annotation line are NaN.
type BBox [4]float32

// Complete reports whether all four coordinates are present
func (b BBox) Complete() bool {
	for _, v := range b {
		if math.IsNaN(float64(v)) {
			return false
		}
	}
	return true
}

// Width returns x2 - x1
func (b BBox) Width() float32 {
	return b[2] - b[0]
}

// Height returns y2 - y1
func (b BBox) Height() float32 {
	return b[3] - b[1]
}

// Scale multiplies every coordinate by f
func (b BBox) Scale(f float64) BBox {
	var out BBox
	for i, v := range b {
		out[i] = float32(float64(v) * f)
	}
	return out
}

// MarshalJSON writes the box as a four element array, non-finite values as null
func (b BBox) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a four element array, null as NaN
func (b *BBox) UnmarshalJSON(data []byte) error {
	var raw []*float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(b) {
		return fmt.Errorf("bbox must have %d values, got %d", len(b), len(raw))
	}
	for i, v := range raw {
		if v == nil {
			b[i] = float32(math.NaN())
			continue
		}
		b[i] = *v
	}
	return nil
}

// LitterItem is one annotated piece of litter in an image
type LitterItem struct {
	Label Label `json:"label"`
	BBox  BBox  `json:"bbox"`
}

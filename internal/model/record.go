package model

import (
	"encoding/json"
	"image"
	"image/color"
)

// PixelArray is a decoded image laid out as height x width x channels
// interleaved 8-bit samples. Channels is 1 (gray), 3 (RGB) or 4 (RGBA,
// non-premultiplied).
//
// The shape is always three dimensional: grayscale sources are [h, w, 1]
// rather than a two dimensional [h, w] array, and palette images are
// expanded to RGB or RGBA samples instead of keeping palette indices.
type PixelArray struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

// NewPixelArray allocates a zeroed array of the given shape
func NewPixelArray(height, width, channels int) *PixelArray {
	return &PixelArray{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]uint8, height*width*channels),
	}
}

// Shape returns [height, width, channels]
func (p *PixelArray) Shape() [3]int {
	return [3]int{p.Height, p.Width, p.Channels}
}

// Offset returns the index of the first sample of pixel (x, y)
func (p *PixelArray) Offset(x, y int) int {
	return (y*p.Width + x) * p.Channels
}

// ColorModel implements image.Image
func (p *PixelArray) ColorModel() color.Model {
	switch p.Channels {
	case 1:
		return color.GrayModel
	case 4:
		return color.NRGBAModel
	}
	return color.RGBAModel
}

// Bounds implements image.Image
func (p *PixelArray) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// At implements image.Image
func (p *PixelArray) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Bounds())) {
		return color.NRGBA{}
	}
	i := p.Offset(x, y)
	switch p.Channels {
	case 1:
		return color.Gray{Y: p.Pix[i]}
	case 4:
		return color.NRGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: p.Pix[i+3]}
	}
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 0xff}
}

type pixelArrayJSON struct {
	Shape [3]int `json:"shape"`
	Pix   []byte `json:"pix,omitempty"`
}

// MarshalJSON writes the shape and the base64 encoded samples
func (p *PixelArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(pixelArrayJSON{Shape: p.Shape(), Pix: p.Pix})
}

// UnmarshalJSON reads the form written by MarshalJSON
func (p *PixelArray) UnmarshalJSON(data []byte) error {
	var raw pixelArrayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Height, p.Width, p.Channels = raw.Shape[0], raw.Shape[1], raw.Shape[2]
	p.Pix = raw.Pix
	return nil
}

// Record is one dataset example: a decoded image and its litter annotations.
// The entry names identify the archive members it was built from and are
// not part of the serialized form.
type Record struct {
	Image  *PixelArray  `json:"image"`
	Litter []LitterItem `json:"litter"`

	ImageName      string `json:"-"`
	AnnotationName string `json:"-"`
}

// MarshalJSON writes {"image": ..., "litter": [...]} with litter never null
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := plain(r)
	if out.Litter == nil {
		out.Litter = []LitterItem{}
	}
	return json.Marshal(out)
}

// CountByLabel returns the number of litter items per label value
func (r Record) CountByLabel() [NumLabels]int {
	var counts [NumLabels]int
	for _, item := range r.Litter {
		if item.Label.Valid() {
			counts[item.Label]++
		}
	}
	return counts
}

// Package picture turns archive image entries into pixel arrays and renders
// derived images (thumbnails, annotation previews).
package picture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/ytget/plastic-in-river/internal/model"
)

// ErrDecode is wrapped by every image decoding failure
var ErrDecode = errors.New("cannot decode image")

// Decode reads an encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP), applies
// its EXIF orientation and returns the pixels.
func Decode(r io.Reader) (*model.PixelArray, error) {
	img, err := DecodeImage(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// DecodeImage is Decode without the conversion to a pixel array
func DecodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// FromImage copies img into a pixel array. Gray images get one channel,
// opaque images three, images with any transparency four.
func FromImage(img image.Image) *model.PixelArray {
	b := img.Bounds()
	channels := channelsOf(img)
	out := model.NewPixelArray(b.Dy(), b.Dx(), channels)

	// Fast path for the layout imaging produces after reorientation
	if src, ok := img.(*image.NRGBA); ok && channels == 4 {
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[out.Offset(0, y):out.Offset(0, y+1)], row[:b.Dx()*4])
		}
		return out
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				out.Pix[i] = color.GrayModel.Convert(c).(color.Gray).Y
				i++
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = n.R, n.G, n.B
			if channels == 4 {
				out.Pix[i+3] = n.A
			}
			i += channels
		}
	}
	return out
}

func channelsOf(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return 4
	}
	return 3
}

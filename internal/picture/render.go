package picture

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/nfnt/resize"

	"github.com/ytget/plastic-in-river/internal/model"
)

// BoxLineWidth is the stroke width of preview boxes in pixels
const BoxLineWidth = 2.0

// LabelColors are the preview stroke colours indexed by label
var LabelColors = [model.NumLabels]color.RGBA{
	{R: 0xe6, G: 0x19, B: 0x4b, A: 0xff}, // PLASTIC_BAG
	{R: 0x3c, G: 0xb4, B: 0x4b, A: 0xff}, // PLASTIC_BOTTLE
	{R: 0xff, G: 0xe1, B: 0x19, A: 0xff}, // OTHER_PLASTIC_WASTE
	{R: 0x43, G: 0x63, B: 0xd8, A: 0xff}, // NOT_PLASTIC_WASTE
}

// Thumbnail shrinks img so that neither side exceeds maxSide, keeping the
// aspect ratio. It returns the image and the factor box coordinates must be
// multiplied by. Images already small enough are returned unchanged.
func Thumbnail(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if maxSide <= 0 || longest <= maxSide {
		return img, 1
	}

	thumb := resize.Thumbnail(uint(maxSide), uint(maxSide), img, resize.Bilinear)
	scale := float64(thumb.Bounds().Dx()) / float64(b.Dx())
	return thumb, scale
}

// ScaleItems returns a copy of items with every box multiplied by scale
func ScaleItems(items []model.LitterItem, scale float64) []model.LitterItem {
	out := make([]model.LitterItem, len(items))
	for i, item := range items {
		out[i] = model.LitterItem{Label: item.Label, BBox: item.BBox.Scale(scale)}
	}
	return out
}

// DrawBoxes returns a copy of img with the litter boxes outlined in their
// label colour. Boxes with missing coordinates are skipped.
func DrawBoxes(img image.Image, items []model.LitterItem) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	gc := draw2dimg.NewGraphicContext(dst)
	gc.SetLineWidth(BoxLineWidth)
	for _, item := range items {
		if !item.BBox.Complete() || !item.Label.Valid() {
			continue
		}
		x1, y1, x2, y2 := float64(item.BBox[0]), float64(item.BBox[1]), float64(item.BBox[2]), float64(item.BBox[3])
		if math.IsInf(x1+y1+x2+y2, 0) {
			continue
		}
		gc.SetStrokeColor(LabelColors[item.Label])
		draw2dkit.Rectangle(gc, x1, y1, x2, y2)
		gc.Stroke()
	}
	return dst
}

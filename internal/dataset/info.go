package dataset

import (
	"fmt"

	"github.com/ytget/plastic-in-river/internal/model"
)

// Description is the published dataset description
const Description = `This dataset contains photos of rivers on which there may be waste. The waste items are annotated
through bounding boxes, and are assigned to one of the 4 following categories: plastic bottle, plastic bag,
another plastic waste, or non-plastic waste. Note that some photos may not contain any waste.`

// BBoxLength is the fixed number of coordinates in a box
const BBoxLength = 4

// DatasetInfo describes the dataset and the shape of its records
type DatasetInfo struct {
	Description string   `json:"description"`
	Homepage    string   `json:"homepage"`
	License     string   `json:"license"`
	Version     string   `json:"version"`
	Features    Features `json:"features"`
}

// Features is the record schema: an image and a sequence of litter items
type Features struct {
	Image  TypedFeature  `json:"image"`
	Litter LitterFeature `json:"litter"`
}

// TypedFeature is a leaf feature identified by its type only
type TypedFeature struct {
	Type string `json:"_type"`
}

// ValueFeature is a scalar of a fixed dtype
type ValueFeature struct {
	Dtype string `json:"dtype"`
	Type  string `json:"_type"`
}

// ClassLabelFeature is an integer restricted to named classes
type ClassLabelFeature struct {
	NumClasses int      `json:"num_classes"`
	Names      []string `json:"names"`
	Type       string   `json:"_type"`
}

// BBoxFeature is a fixed length sequence of float32 values
type BBoxFeature struct {
	Feature ValueFeature `json:"feature"`
	Length  int          `json:"length"`
	Type    string       `json:"_type"`
}

// LitterFeature is the variable length sequence of litter items
type LitterFeature struct {
	Feature struct {
		Label ClassLabelFeature `json:"label"`
		BBox  BBoxFeature       `json:"bbox"`
	} `json:"feature"`
	Type string `json:"_type"`
}

// NewFeatures returns the fixed record schema
func NewFeatures() Features {
	var f Features
	f.Image = TypedFeature{Type: "Image"}
	f.Litter.Type = "Sequence"
	f.Litter.Feature.Label = ClassLabelFeature{
		NumClasses: model.NumLabels,
		Names:      model.LabelNames(),
		Type:       "ClassLabel",
	}
	f.Litter.Feature.BBox = BBoxFeature{
		Feature: ValueFeature{Dtype: "float32", Type: "Value"},
		Length:  BBoxLength,
		Type:    "Sequence",
	}
	return f
}

// NewInfo returns the dataset description for version
func NewInfo(version string) DatasetInfo {
	return DatasetInfo{
		Description: Description,
		Version:     version,
		Features:    NewFeatures(),
	}
}

// Validate checks that rec conforms to the schema: every label is one of
// the declared classes. An image is required unless allowNoImage is set.
func (f Features) Validate(rec model.Record, allowNoImage bool) error {
	if rec.Image == nil && !allowNoImage {
		return fmt.Errorf("record has no image")
	}
	if rec.Image != nil {
		if want := rec.Image.Height * rec.Image.Width * rec.Image.Channels; len(rec.Image.Pix) != want {
			return fmt.Errorf("image has %d samples, shape %v needs %d", len(rec.Image.Pix), rec.Image.Shape(), want)
		}
	}
	for i, item := range rec.Litter {
		if int(item.Label) < 0 || int(item.Label) >= f.Litter.Feature.Label.NumClasses {
			return fmt.Errorf("litter[%d]: label %d outside %d classes", i, item.Label, f.Litter.Feature.Label.NumClasses)
		}
	}
	return nil
}

package model

import (
	"errors"
	"fmt"
)

// ErrUnknownSplit is returned when a split name is not one of the dataset splits
var ErrUnknownSplit = errors.New("unknown split")

// Split is a named partition of the dataset
type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "validation"
	SplitTest       Split = "test"
)

// Splits returns every split in generator order
func Splits() []Split {
	return []Split{SplitTrain, SplitTest, SplitValidation}
}

// ParseSplit converts a split name into a Split
func ParseSplit(name string) (Split, error) {
	switch s := Split(name); s {
	case SplitTrain, SplitValidation, SplitTest:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSplit, name)
}

// String returns the split name
func (s Split) String() string {
	return string(s)
}

// ResourceKind names one of the two archives published per split
type ResourceKind string

const (
	KindImages      ResourceKind = "images"
	KindAnnotations ResourceKind = "annotations"
)

// ResourceKinds returns both kinds, images first
func ResourceKinds() []ResourceKind {
	return []ResourceKind{KindImages, KindAnnotations}
}

// ResourceKey returns the download mapping key for a split and kind, e.g. "train_images"
func ResourceKey(split Split, kind ResourceKind) string {
	return string(split) + "_" + string(kind)
}

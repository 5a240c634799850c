// Package stats summarizes loaded splits: record and item counts, label
// frequencies and the distribution of box geometry.
package stats

import (
	"iter"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ytget/plastic-in-river/internal/model"
)

// Dist describes a sample of values
type Dist struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Summary is the aggregate of a split
type Summary struct {
	Records         int            `json:"records"`
	Items           int            `json:"items"`
	EmptyRecords    int            `json:"empty_records"`
	IncompleteBoxes int            `json:"incomplete_boxes"`
	LabelCounts     map[string]int `json:"label_counts"`
	BoxWidth        Dist           `json:"box_width"`
	BoxHeight       Dist           `json:"box_height"`
	BoxArea         Dist           `json:"box_area"`
	ImageWidth      Dist           `json:"image_width"`
	ImageHeight     Dist           `json:"image_height"`
}

// Accumulator collects records one at a time
type Accumulator struct {
	records      int
	items        int
	empty        int
	incomplete   int
	labels       [model.NumLabels]int
	widths       []float64
	heights      []float64
	areas        []float64
	imageWidths  []float64
	imageHeights []float64
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add folds one record into the totals
func (a *Accumulator) Add(rec model.Record) {
	a.records++
	if len(rec.Litter) == 0 {
		a.empty++
	}
	if rec.Image != nil {
		a.imageWidths = append(a.imageWidths, float64(rec.Image.Width))
		a.imageHeights = append(a.imageHeights, float64(rec.Image.Height))
	}

	for _, item := range rec.Litter {
		a.items++
		if item.Label.Valid() {
			a.labels[item.Label]++
		}
		if !item.BBox.Complete() {
			a.incomplete++
			continue
		}
		w, h := float64(item.BBox.Width()), float64(item.BBox.Height())
		a.widths = append(a.widths, w)
		a.heights = append(a.heights, h)
		a.areas = append(a.areas, w*h)
	}
}

// Summary computes the statistics of everything added so far
func (a *Accumulator) Summary() Summary {
	counts := make(map[string]int, model.NumLabels)
	for i, n := range a.labels {
		counts[model.Label(i).String()] = n
	}
	return Summary{
		Records:         a.records,
		Items:           a.items,
		EmptyRecords:    a.empty,
		IncompleteBoxes: a.incomplete,
		LabelCounts:     counts,
		BoxWidth:        describe(a.widths),
		BoxHeight:       describe(a.heights),
		BoxArea:         describe(a.areas),
		ImageWidth:      describe(a.imageWidths),
		ImageHeight:     describe(a.imageHeights),
	}
}

// Summarize drains records and returns their summary
func Summarize(records iter.Seq2[int, model.Record]) Summary {
	acc := NewAccumulator()
	for _, rec := range records {
		acc.Add(rec)
	}
	return acc.Summary()
}

// SummarizeSlice is Summarize over an in-memory split
func SummarizeSlice(records []model.Record) Summary {
	acc := NewAccumulator()
	for _, rec := range records {
		acc.Add(rec)
	}
	return acc.Summary()
}

func describe(values []float64) Dist {
	if len(values) == 0 {
		return Dist{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	d := Dist{
		Count:  len(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(sorted) == 1 {
		d.Mean = sorted[0]
		return d
	}
	d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	return d
}

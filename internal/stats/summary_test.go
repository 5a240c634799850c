package stats

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/plastic-in-river/internal/model"
)

func item(label model.Label, x1, y1, x2, y2 float32) model.LitterItem {
	return model.LitterItem{Label: label, BBox: model.BBox{x1, y1, x2, y2}}
}

func testRecords() []model.Record {
	nan := float32(math.NaN())
	return []model.Record{
		{
			Image: model.NewPixelArray(4, 6, 3),
			Litter: []model.LitterItem{
				item(model.LabelPlasticBag, 0, 0, 2, 2),
				item(model.LabelPlasticBottle, 1, 1, 5, 3),
			},
		},
		{
			Image:  model.NewPixelArray(8, 6, 3),
			Litter: []model.LitterItem{},
		},
		{
			Litter: []model.LitterItem{
				item(model.LabelPlasticBag, 0, 0, 6, 1),
				item(model.LabelNotPlasticWaste, 3, nan, nan, nan),
			},
		},
	}
}

func TestSummarizeSlice(t *testing.T) {
	s := SummarizeSlice(testRecords())

	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 4, s.Items)
	assert.Equal(t, 1, s.EmptyRecords)
	assert.Equal(t, 1, s.IncompleteBoxes)
	assert.Equal(t, map[string]int{
		"PLASTIC_BAG":         2,
		"PLASTIC_BOTTLE":      1,
		"OTHER_PLASTIC_WASTE": 0,
		"NOT_PLASTIC_WASTE":   1,
	}, s.LabelCounts)

	// widths 2, 4, 6
	assert.Equal(t, 3, s.BoxWidth.Count)
	assert.InDelta(t, 4.0, s.BoxWidth.Mean, 1e-9)
	assert.InDelta(t, 2.0, s.BoxWidth.StdDev, 1e-9)
	assert.Equal(t, 2.0, s.BoxWidth.Min)
	assert.Equal(t, 6.0, s.BoxWidth.Max)
	assert.Equal(t, 4.0, s.BoxWidth.Median)

	// areas 4, 8, 6
	assert.InDelta(t, 6.0, s.BoxArea.Mean, 1e-9)
	assert.Equal(t, 4.0, s.BoxArea.Min)

	assert.Equal(t, 2, s.ImageHeight.Count)
	assert.InDelta(t, 6.0, s.ImageHeight.Mean, 1e-9)
	assert.Equal(t, 6.0, s.ImageWidth.Max)
}

func TestSummarizeSeq(t *testing.T) {
	records := testRecords()
	seq := func(yield func(int, model.Record) bool) {
		for i, rec := range records {
			if !yield(i, rec) {
				return
			}
		}
	}
	assert.Equal(t, SummarizeSlice(records), Summarize(seq))
}

func TestSummarizeEmpty(t *testing.T) {
	s := SummarizeSlice(nil)
	assert.Zero(t, s.Records)
	assert.Equal(t, Dist{}, s.BoxArea)
	assert.Len(t, s.LabelCounts, model.NumLabels)
}

func TestDescribeSingleValue(t *testing.T) {
	d := describe([]float64{3})
	assert.Equal(t, Dist{Count: 1, Mean: 3, Min: 3, Median: 3, Max: 3}, d)
}

func TestSavePlots(t *testing.T) {
	acc := NewAccumulator()
	for _, rec := range testRecords() {
		acc.Add(rec)
	}

	dir := filepath.Join(t.TempDir(), "plots")
	paths, err := acc.SavePlots(dir, "train")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, slices.Contains(paths, filepath.Join(dir, LabelPlotFile)))

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestSavePlotsWithoutBoxes(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(model.Record{Litter: []model.LitterItem{}})

	paths, err := acc.SavePlots(t.TempDir(), "test")
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ytget/plastic-in-river/internal/model"
)

// Plot file names written by SavePlots
const (
	LabelPlotFile = "label_counts.png"
	AreaPlotFile  = "box_areas.png"
)

const histogramBins = 20

// SavePlots renders the label frequencies and the box area histogram as PNG
// files in dir and returns their paths.
func (a *Accumulator) SavePlots(dir, title string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	labelsFile := filepath.Join(dir, LabelPlotFile)
	if err := a.saveLabelPlot(labelsFile, title); err != nil {
		return nil, err
	}
	paths := []string{labelsFile}

	// A histogram needs at least one value
	if len(a.areas) == 0 {
		return paths, nil
	}
	areasFile := filepath.Join(dir, AreaPlotFile)
	if err := a.saveAreaPlot(areasFile, title); err != nil {
		return nil, err
	}
	return append(paths, areasFile), nil
}

func (a *Accumulator) saveLabelPlot(path, title string) error {
	p := plot.New()
	p.Title.Text = title + " labels"
	p.Y.Label.Text = "items"

	values := make(plotter.Values, model.NumLabels)
	for i, n := range a.labels {
		values[i] = float64(n)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return fmt.Errorf("failed to build label chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(model.LabelNames()...)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func (a *Accumulator) saveAreaPlot(path, title string) error {
	p := plot.New()
	p.Title.Text = title + " box areas"
	p.X.Label.Text = "area (px²)"
	p.Y.Label.Text = "items"

	hist, err := plotter.NewHist(plotter.Values(a.areas), histogramBins)
	if err != nil {
		return fmt.Errorf("failed to build area histogram: %w", err)
	}
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

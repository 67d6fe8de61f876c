package cli

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotSize is the edge length of the square scatter plot.
const plotSize = 6 * vg.Inch

// savePlot writes a scatter plot of the first two embedding dimensions.
// The image format follows the file extension (png, svg, pdf, ...).
func savePlot(filename, title string, embedding [][]float64) error {
	if len(embedding) == 0 || len(embedding[0]) < 2 {
		return fmt.Errorf("plot %s: need at least two embedding dimensions", filename)
	}

	xys := make(plotter.XYs, len(embedding))
	for i, row := range embedding {
		xys[i].X = row[0]
		xys[i].Y = row[1]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "component 1"
	p.Y.Label.Text = "component 2"

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("plot %s: %w", filename, err)
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter)

	if err := p.Save(plotSize, plotSize, filename); err != nil {
		return fmt.Errorf("plot %s: %w", filename, err)
	}
	return nil
}

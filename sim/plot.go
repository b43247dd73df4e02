package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewResidualPlot creates new plot of position and attitude residual norms over time.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * times and residuals have different lengths or are empty
// * any of the residuals has fewer than 6 elements
// * gonum plot fails to be created
func NewResidualPlot(times []float64, residuals []*mat.VecDense) (*plot.Plot, error) {
	if len(times) == 0 || len(times) != len(residuals) {
		return nil, fmt.Errorf("invalid data supplied: %d times, %d residuals", len(times), len(residuals))
	}

	pos := make(plotter.XYs, len(times))
	att := make(plotter.XYs, len(times))
	for i, r := range residuals {
		if r == nil || r.Len() < 6 {
			return nil, fmt.Errorf("invalid residual at %v", times[i])
		}
		data := r.RawVector().Data
		if inc := r.RawVector().Inc; inc != 1 {
			data = mat.Col(nil, 0, r)
		}
		pos[i].X, pos[i].Y = times[i], floats.Norm(data[0:3], 2)
		att[i].X, att[i].Y = times[i], floats.Norm(data[3:6], 2)
	}

	p := plot.New()

	p.Title.Text = "Pose residuals"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "residual norm"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	posScatter, err := plotter.NewScatter(pos)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	posScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	posScatter.Shape = draw.PyramidGlyph{}
	posScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(posScatter)
	p.Legend.Add("position", posScatter)

	attScatter, err := plotter.NewScatter(att)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	attScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	attScatter.Shape = draw.CrossGlyph{}
	attScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(attScatter)
	p.Legend.Add("attitude", attScatter)

	return p, nil
}

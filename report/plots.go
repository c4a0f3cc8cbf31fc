// Package report renders the training outputs people look at: ROC curves,
// confusion matrices, exploratory figures of the cleaned table and the model
// comparison CSVs.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

const figureSize = 5 * vg.Inch

// FileSafe turns a display name into a file-name fragment: spaces become
// underscores.
func FileSafe(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := p.Save(figureSize, figureSize, path); err != nil {
		return errors.Wrapf(err, "save figure %s", path)
	}
	return nil
}

// ROCCurve draws a ROC curve with the chance diagonal and the AUC in the
// legend.
func ROCCurve(path, title string, fpr, tpr []float64, auc float64) error {
	if len(fpr) != len(tpr) || len(fpr) == 0 {
		return errors.NewDimensionError("report.ROCCurve", len(fpr), len(tpr), 0)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(fpr))
	for i := range fpr {
		pts[i].X, pts[i].Y = fpr[i], tpr[i]
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "roc line")
	}
	curve.LineStyle.Color = plotutil.Color(0)
	curve.LineStyle.Width = vg.Points(2)

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "chance line")
	}
	chance.LineStyle.Color = color.Gray{Y: 128}
	chance.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(curve, chance)
	p.Legend.Add(fmt.Sprintf("AUC = %.3f", auc), curve)
	p.Legend.Add("chance", chance)
	p.Legend.Left = false
	p.Legend.Top = false
	return save(p, path)
}

// matrixGrid adapts a square matrix to plotter.GridXYZ: column j is x = j and
// row i is y = i.
type matrixGrid struct{ m *mat.Dense }

func (g matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matrixGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// annotatedHeatMap draws m with each cell value printed using format.
func annotatedHeatMap(path, title, xlabel, ylabel string, m *mat.Dense, names []string, format string) error {
	r, c := m.Dims()
	if r != c || r != len(names) || r == 0 {
		return errors.NewDimensionError("report.heatmap", len(names), r, 0)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel

	hm := plotter.NewHeatMap(matrixGrid{m}, palette.Heat(12, 1))
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	var cells plotter.XYs
	var text []string
	ticks := make([]plot.Tick, len(names))
	for i, name := range names {
		ticks[i] = plot.Tick{Value: float64(i), Label: name}
		for j := range names {
			cells = append(cells, plotter.XY{X: float64(j), Y: float64(i)})
			text = append(text, fmt.Sprintf(format, m.At(i, j)))
		}
	}
	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: cells, Labels: text})
	if err != nil {
		return errors.Wrap(err, "heat map labels")
	}
	p.Add(annotations)
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	return save(p, path)
}

// ConfusionMatrix draws cm (rows actual, columns predicted) as an annotated
// heat map.
func ConfusionMatrix(path, title string, cm *mat.Dense, labels []float64) error {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = fmt.Sprint(l)
	}
	return annotatedHeatMap(path, title, "Predicted", "Actual", cm, names, "%.0f")
}

// bars draws one bar per category.
func bars(path, title, ylabel string, names []string, values []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	chart, err := plotter.NewBarChart(plotter.Values(values), vg.Points(40))
	if err != nil {
		return errors.Wrap(err, "bar chart")
	}
	chart.Color = plotutil.Color(0)
	p.Add(chart)
	p.NominalX(names...)
	return save(p, path)
}

// overlaidHistograms draws one semi-transparent histogram per group.
func overlaidHistograms(path, title, xlabel string, names []string, groups [][]float64, bins int) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Count"
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		h, err := plotter.NewHist(plotter.Values(g), bins)
		if err != nil {
			return errors.Wrap(err, "histogram")
		}
		r, gr, b, _ := plotutil.Color(i).RGBA()
		h.FillColor = color.NRGBA{R: uint8(r >> 8), G: uint8(gr >> 8), B: uint8(b >> 8), A: 120}
		p.Add(h)
		p.Legend.Add(names[i], h)
	}
	return save(p, path)
}

// boxPlots draws one box per group at x = 0, 1, ...
func boxPlots(path, title, ylabel string, names []string, groups [][]float64) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	var shown []string
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(40), float64(len(shown)), plotter.Values(g))
		if err != nil {
			return errors.Wrap(err, "box plot")
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)
		shown = append(shown, names[i])
	}
	p.NominalX(shown...)
	return save(p, path)
}

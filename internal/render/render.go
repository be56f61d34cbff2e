// Package render draws result series and grouped observations as chart
// files with gonum/plot. The output format follows the file extension
// (png, svg, pdf, jpg, tif, eps).
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// ErrNoData is returned when nothing drawable was passed.
var ErrNoData = errors.New("nothing to plot")

// Options are the chart-wide settings.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	// Width and Height in inches. Zero uses 10x5, or a per-panel size for grids.
	Width, Height float64
	// Points marks every observation on line charts.
	Points bool
}

func (o Options) size(defW, defH float64) (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = defW
	}
	if h <= 0 {
		h = defH
	}
	return vg.Length(w) * vg.Inch, vg.Length(h) * vg.Inch
}

func newPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func format(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// save renders p and writes it atomically.
func save(p *plot.Plot, path string, w, h vg.Length) error {
	wt, err := p.WriterTo(w, h, format(path))
	if err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// saveGrid aligns plots[row][col] on one canvas; nil cells stay blank.
func saveGrid(plots [][]*plot.Plot, path string, w, h vg.Length) error {
	if len(plots) == 0 || len(plots[0]) == 0 {
		return ErrNoData
	}
	c, err := draw.NewFormattedCanvas(w, h, format(path))
	if err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for j := range plots {
		for i, p := range plots[j] {
			if p != nil {
				p.Draw(canvases[j][i])
			}
		}
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// fade returns the i-th palette color at the given opacity.
func fade(i int, alpha uint8) color.Color {
	r, g, b, _ := plotutil.Color(i).RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
}

// clean drops NaN values.
func clean(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

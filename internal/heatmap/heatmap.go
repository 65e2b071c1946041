// Package heatmap renders an aggregated search grid to an image file.
package heatmap

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/GoSim-25-26J-441/paramsearch/internal/aggregate"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// dpi matches the default resolution plot.Save renders raster images at
const dpi = 96

// cells draws every occupied cell as a filled rectangle in parameter space
type cells struct {
	res aggregate.Result
}

// Plot implements plot.Plotter
func (c cells) Plot(canvas draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&canvas)
	w := (c.res.X.High - c.res.X.Low) / float64(c.res.Grid.Width)
	h := (c.res.Y.High - c.res.Y.Low) / float64(c.res.Grid.Height)
	for _, cell := range c.res.Cells {
		x0 := c.res.X.Low + float64(cell.X)*w
		y0 := c.res.Y.Low + float64(cell.Y)*h
		canvas.FillPolygon(cell.Color, []vg.Point{
			{X: trX(x0), Y: trY(y0)},
			{X: trX(x0 + w), Y: trY(y0)},
			{X: trX(x0 + w), Y: trY(y0 + h)},
			{X: trX(x0), Y: trY(y0 + h)},
		})
	}
}

// DataRange implements plot.DataRanger
func (c cells) DataRange() (xmin, xmax, ymin, ymax float64) {
	return c.res.X.Low, c.res.X.High, c.res.Y.Low, c.res.Y.High
}

// Render writes res to path. The format follows the file extension.
func Render(res aggregate.Result, path string, widthPx, heightPx int) error {
	if widthPx <= 0 || heightPx <= 0 {
		return fmt.Errorf("invalid image size %dx%d", widthPx, heightPx)
	}
	if len(res.Cells) == 0 {
		return errors.New("nothing to render")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create heatmap dir: %w", err)
	}

	p := plot.New()
	p.BackgroundColor = color.White
	p.HideAxes()
	p.X.Min, p.X.Max = res.X.Low, res.X.High
	p.Y.Min, p.Y.Max = res.Y.Low, res.Y.High
	p.Add(cells{res: res})

	w := vg.Length(widthPx) * vg.Inch / dpi
	h := vg.Length(heightPx) * vg.Inch / dpi
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save heatmap %s: %w", path, err)
	}
	return nil
}

package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// Series is the yearly CO2 total of one service type.
type Series struct {
	Service string
	Totals  []YearTotal
}

// RenderChart draws one line per series, year on the x axis, and writes it to w as PNG.
func RenderChart(w io.Writer, title string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Total CO2 (kg)"
	p.X.Tick.Marker = plot.TickerFunc(yearTicks)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	lines := make([]interface{}, 0, 2*len(series))
	for _, s := range series {
		if len(s.Totals) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.Totals))
		for i, t := range s.Totals {
			xys[i].X = float64(t.Year)
			xys[i].Y = t.TotalCO2Kg
		}
		lines = append(lines, s.Service, xys)
	}
	if len(lines) > 0 {
		if err := plotutil.AddLinePoints(p, lines...); err != nil {
			return fmt.Errorf("failed to add lines: %w", err)
		}
	}

	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}

// yearTicks labels every whole year between min and max.
func yearTicks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for y := math.Ceil(min); y <= max; y++ {
		ticks = append(ticks, plot.Tick{Value: y, Label: strconv.Itoa(int(y))})
	}
	return ticks
}

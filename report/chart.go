package report

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an html page holding a bar chart of the table: one group of bars
// per row, one bar per formula, bounds in microseconds.  Failed bounds are drawn as zero.
func RenderChart(w io.Writer, title string, t *Table) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Flow",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "Latency bound",
			AxisLabel: &opts.AxisLabel{Show: true, Formatter: "{value} µs"},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithLegendOpts(opts.Legend{
			Show:   true,
			Right:  "1%",
			Top:    "10%",
			Orient: "vertical",
		}),
	)

	xAxis := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		xAxis = append(xAxis, rowName(row))
	}
	bar.SetXAxis(xAxis)

	for _, formula := range t.Formulas {
		items := make([]opts.BarData, 0, len(t.Rows))
		for _, row := range t.Rows {
			items = append(items, opts.BarData{Value: row.Bounds[formula] * 1e6})
		}
		bar.AddSeries(formula, items)
	}

	if err := bar.Render(w); err != nil {
		return errors.Wrapf(err, "rendering chart %s", title)
	}
	return nil
}

// rowName labels a row on the chart with the flow and, if set, the run's name
func rowName(row Row) string {
	if name := row.Labels["Name"]; len(name) > 0 {
		return row.Flow + " " + name
	}
	return row.Flow
}

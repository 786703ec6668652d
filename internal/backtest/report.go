package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderEquityHTML writes a self-contained HTML report: the equity curve with
// balance overlay, and the drawdown profile below it.
func RenderEquityHTML(w io.Writer, res *Result) error {
	if res == nil || len(res.Equity) == 0 {
		return fmt.Errorf("no equity snapshots to render")
	}

	xAxis := make([]string, 0, len(res.Equity))
	equity := make([]opts.LineData, 0, len(res.Equity))
	balance := make([]opts.LineData, 0, len(res.Equity))
	drawdown := make([]opts.LineData, 0, len(res.Equity))
	for _, e := range res.Equity {
		xAxis = append(xAxis, time.UnixMilli(e.Timestamp).UTC().Format("01-02 15:04"))
		equity = append(equity, opts.LineData{Value: e.Equity})
		balance = append(balance, opts.LineData{Value: e.Balance})
		drawdown = append(drawdown, opts.LineData{Value: -e.Drawdown * 100})
	}

	title := fmt.Sprintf("%s %s (%s): return %.2f%%, max DD %.2f%%, %d trades",
		res.Config.Symbol, res.Config.Profile, res.Config.Strategy,
		res.Stats.ReturnPct*100, res.Stats.MaxDrawdownPct*100, res.Stats.Trades)

	curve := charts.NewLine()
	curve.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "run " + res.Config.RunID}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	curve.SetXAxis(xAxis)
	curve.AddSeries("Equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	curve.AddSeries("Balance", balance, charts.WithLineStyleOpts(opts.LineStyle{Width: 1, Opacity: opts.Float(0.6)}))
	curve.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	dd := charts.NewLine()
	dd.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	dd.SetXAxis(xAxis)
	dd.AddSeries("Drawdown", drawdown, charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}))
	dd.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(curve, dd)
	return page.Render(w)
}

package main

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"
)

const (
	chartWidth  = "900px"
	chartHeight = "420px"
)

func barChart(title, subtitle string, labels []string, series string, values []int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(labels).AddSeries(series, lo.Map(values, func(v int, _ int) opts.BarData {
		return opts.BarData{Value: v}
	}))
	return bar
}

func sumTrend(s stats.DashboardSummary) *charts.Line {
	recent := slices.Clone(s.RecentDraws)
	slices.Reverse(recent)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Recent draw sums"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(lo.Map(recent, func(d stats.RecentDraw, _ int) string { return d.Date })).
		AddSeries("Sum", lo.Map(recent, func(d stats.RecentDraw, _ int) opts.LineData {
			return opts.LineData{Value: lo.Sum(d.Numbers)}
		})).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// HandleDashboard renders the summary of a game as an HTML page of charts.
func (h *LottoHTTPHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.summary(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}

	numbers := lo.Map(s.Frequency.Numbers, func(n int, _ int) string { return strconv.Itoa(n) })
	page := components.NewPage()
	page.PageTitle = g.Name
	page.AddCharts(
		barChart("Number frequency", "last "+strconv.Itoa(stats.FrequencyWindow)+" draws", numbers, "Draws", s.Frequency.Counts),
		barChart("Sum distribution", "last "+strconv.Itoa(stats.AnalysisWindow)+" draws", s.SumDistribution.Ranges, "Draws", s.SumDistribution.Counts),
		sumTrend(s),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, err.Error())
	}
}

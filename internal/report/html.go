package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

const (
	chartWidth  = "100%"
	chartHeight = "480px"
)

// statusSeries are the stacked bars of the evolution chart, bottom first.
var statusSeries = []struct {
	name   string
	metric model.VersionMetric
	color  string
}{
	{"Unchanged", model.VersionUnchangedClassCount, "#91cc75"},
	{"Modified", model.VersionModifiedClassCount, "#fac858"},
	{"New", model.VersionNewClassCount, "#5470c6"},
	{"Deleted", model.VersionDeletedClassCount, "#ee6666"},
}

// WriteHTML renders an interactive page with the class count over time and
// the evolution status breakdown per version.
func WriteHTML(w io.Writer, h *model.History) error {
	page := components.NewPage()
	page.PageTitle = h.Product() + " evolution"
	page.AddCharts(classCountChart(h), statusChart(h))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	return nil
}

func versionLabels(h *model.History) []string {
	labels := make([]string, 0, h.Len())

	for _, s := range h.Versions() {
		label := s.Label()
		if label == "" {
			label = fmt.Sprintf("#%d", s.RSN())
		}

		labels = append(labels, label)
	}

	return labels
}

func classCountChart(h *model.History) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Classes", Subtitle: h.Product()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "8%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Version"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)

	line.SetXAxis(versionLabels(h))

	for _, m := range []model.VersionMetric{model.VersionClassCount, model.VersionInterfaceCount} {
		data := make([]opts.LineData, 0, h.Len())
		for _, s := range h.Versions() {
			data = append(data, opts.LineData{Value: s.Metric(m)})
		}

		line.AddSeries(m.String(), data)
	}

	return line
}

func statusChart(h *model.History) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Evolution status", Subtitle: "Classes per status and version"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "8%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Version"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Classes"}),
	)

	bar.SetXAxis(versionLabels(h))

	for _, series := range statusSeries {
		data := make([]opts.BarData, 0, h.Len())
		for _, s := range h.Versions() {
			data = append(data, opts.BarData{Value: s.Metric(series.metric)})
		}

		bar.AddSeries(series.name, data,
			charts.WithBarChartOpts(opts.BarChart{Stack: "status"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: series.color}),
		)
	}

	return bar
}

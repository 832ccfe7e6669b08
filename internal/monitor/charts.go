package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// echartsAssetsPrefix is where rendered pages load the echarts scripts from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxVariation is the surface variation of isotropic scatter, the upper
// bound for any point.
const maxVariation = 1.0 / 3.0

// DefaultHistogramBins is the bin count used by the variation charts.
const DefaultHistogramBins = 20

// VariationHistogram buckets the non-degenerate surface variation values
// into bins equal-width bins over [0, 1/3]. labels holds the lower edge
// of each bin.
func VariationHistogram(out *pipeline.Output, bins int) (labels []string, counts []int) {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	width := maxVariation / float64(bins)
	counts = make([]int, bins)
	labels = make([]string, bins)
	for i := range labels {
		labels[i] = strconv.FormatFloat(float64(i)*width, 'f', 4, 64)
	}
	for _, v := range variationValues(out) {
		b := int(v / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	return labels, counts
}

// RenderVariationChart writes an HTML bar chart of the surface variation
// histogram of out.
func RenderVariationChart(w io.Writer, out *pipeline.Output, bins int) error {
	labels, counts := VariationHistogram(out, bins)
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}

	s := out.Summary()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Surface Variation", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Surface variation",
			Subtitle: fmt.Sprintf("k=%d points=%d degenerate=%d low_confidence=%d", out.Params.K, s.Points, s.Degenerate, s.LowConfidence),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "variation"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
	)
	bar.SetXAxis(labels).AddSeries("points", data)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)
	return page.Render(w)
}

// RenderSweepChart writes an HTML page with one line chart per sweep
// metric, indexed by k.
func RenderSweepChart(w io.Writer, points []pipeline.SweepPoint) error {
	x := make([]string, len(points))
	flips := make([]opts.LineData, len(points))
	disagree := make([]opts.LineData, len(points))
	lowConf := make([]opts.LineData, len(points))
	mean := make([]opts.LineData, len(points))
	stddev := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = strconv.Itoa(p.K)
		flips[i] = opts.LineData{Value: p.Summary.Flips}
		disagree[i] = opts.LineData{Value: p.DisagreeingEdges}
		lowConf[i] = opts.LineData{Value: p.Summary.LowConfidence}
		mean[i] = opts.LineData{Value: p.MeanVariation}
		stddev[i] = opts.LineData{Value: p.StdDevVariation}
	}

	newLine := func(title string) *charts.Line {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Normals k Sweep", Theme: "dark", Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
			charts.WithTitleOpts(opts.Title{Title: title}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "k"}),
		)
		line.SetXAxis(x)
		return line
	}

	orient := newLine("Orientation")
	orient.AddSeries("flips", flips).
		AddSeries("disagreeing edges", disagree).
		AddSeries("low confidence", lowConf)

	variation := newLine("Surface variation")
	variation.AddSeries("mean", mean).AddSeries("stddev", stddev)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(orient, variation)
	return page.Render(w)
}

func histogramBins(r *http.Request) (int, error) {
	v := r.URL.Query().Get("bins")
	if v == "" {
		return DefaultHistogramBins, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return 0, fmt.Errorf("invalid bins: %q", v)
	}
	return n, nil
}

func (s *Server) handleVariationChart(w http.ResponseWriter, r *http.Request) {
	bins, err := histogramBins(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.latest()
	if err != nil {
		s.writeJSONError(w, statusFor(err), err.Error())
		return
	}

	var buf bytes.Buffer
	if err := RenderVariationChart(&buf, out, bins); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

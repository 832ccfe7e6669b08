package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// errNoVariation is returned when every point is degenerate.
var errNoVariation = errors.New("no non-degenerate points to plot")

func variationPlot(out *pipeline.Output, bins int) (*plot.Plot, error) {
	values := variationValues(out)
	if len(values) == 0 {
		return nil, errNoVariation
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Surface variation (k=%d, %d points)", out.Params.K, len(values))
	p.X.Label.Text = "variation"
	p.Y.Label.Text = "points"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	h.LineStyle.Width = vg.Points(1)
	p.Add(h)
	return p, nil
}

// WriteVariationPNG renders the surface variation histogram of out as PNG.
func WriteVariationPNG(w io.Writer, out *pipeline.Output, bins int) error {
	p, err := variationPlot(out, bins)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveVariationPNG writes the histogram PNG to path on fsys.
func SaveVariationPNG(fsys fsutil.FileSystem, path string, out *pipeline.Output, bins int) error {
	return fsutil.WriteFileAtomic(fsys, path, func(w io.Writer) error {
		return WriteVariationPNG(w, out, bins)
	})
}

func (s *Server) handleVariationPNG(w http.ResponseWriter, r *http.Request) {
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
	if err := WriteVariationPNG(&buf, out, bins); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errNoVariation) {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSONError(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

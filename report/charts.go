// Package report renders engine statistics as charts.
package report

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/fatigo/engine"
	"github.com/YuminosukeSato/fatigo/modelstore"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// Default chart size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 4 * vg.Inch
)

// binMinutes is the width of a progression bin.
const binMinutes = 15

// ProgressionChart plots the mean fatigue score per elapsed-time bin.
// Empty bins are skipped.
func ProgressionChart(st personalization.Stats) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Fatigue progression"
	p.X.Label.Text = "Minutes into session"
	p.Y.Label.Text = "Mean fatigue score"
	p.Y.Min, p.Y.Max = 0, 100
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(st.Progression))
	for i, v := range st.Progression {
		if v < 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i * binMinutes), Y: v})
	}
	if len(pts) == 0 {
		return p, nil
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, errors.Wrap(err, "progression line")
	}
	p.Add(line, points)
	return p, nil
}

// HourlyChart plots mean productivity per hour of day. Hours without data
// are drawn as zero.
func HourlyChart(st personalization.Stats) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Productivity by hour"
	p.Y.Label.Text = "Productivity (1 - score/100)"
	p.Y.Min, p.Y.Max = 0, 1

	vals := make(plotter.Values, len(st.Hourly))
	labels := make([]string, len(st.Hourly))
	for h, v := range st.Hourly {
		if v > 0 {
			vals[h] = v
		}
		labels[h] = strconv.Itoa(h)
	}
	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "hourly bars")
	}
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

// ErrorChart plots the recorded MAE of every saved model version.
func ErrorChart(versions []modelstore.VersionInfo) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Model error by version"
	p.X.Label.Text = "Version"
	p.Y.Label.Text = "MAE"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(versions))
	for i, v := range versions {
		pts[i] = plotter.XY{X: float64(v.Version), Y: v.MAE}
	}
	if len(pts) == 0 {
		return p, nil
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, errors.Wrap(err, "error line")
	}
	p.Add(line, points)
	return p, nil
}

// Render writes p to w in the given format ("png", "svg", "pdf", ...).
func Render(p *plot.Plot, w io.Writer, format string) error {
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, format)
	if err != nil {
		return errors.Wrapf(err, "render %s", format)
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "write chart")
}

// WriteAll renders every chart of st into dir and returns the file paths.
func WriteAll(st engine.Stats, dir, format string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	charts := []struct {
		name  string
		build func() (*plot.Plot, error)
	}{
		{"progression", func() (*plot.Plot, error) { return ProgressionChart(st.Personalization) }},
		{"hourly", func() (*plot.Plot, error) { return HourlyChart(st.Personalization) }},
		{"model_error", func() (*plot.Plot, error) { return ErrorChart(st.Versions) }},
	}

	var paths []string
	for _, c := range charts {
		p, err := c.build()
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, c.name+"."+format)
		f, err := os.Create(path)
		if err != nil {
			return paths, errors.Wrapf(err, "create %s", path)
		}
		err = Render(p, f, format)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

package report

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/engine"
	"github.com/YuminosukeSato/fatigo/modelstore"
	"github.com/YuminosukeSato/fatigo/personalization"
)

func sampleStats() personalization.Stats {
	hourly := make([]float64, 24)
	for i := range hourly {
		hourly[i] = -1
	}
	hourly[9], hourly[14] = 0.8, 0.55
	return personalization.Stats{
		Progression: []float64{10, 18, 25, -1, 40, 48, -1, -1},
		Hourly:      hourly,
	}
}

func TestProgressionChartSkipsEmptyBins(t *testing.T) {
	p, err := ProgressionChart(sampleStats())
	require.NoError(t, err)
	assert.Equal(t, "Fatigue progression", p.Title.Text)

	var buf bytes.Buffer
	require.NoError(t, Render(p, &buf, "svg"))
	assert.Contains(t, buf.String(), "<svg")
}

func TestEmptyChartsRender(t *testing.T) {
	st := personalization.Stats{Progression: []float64{-1, -1}, Hourly: make([]float64, 24)}
	p, err := ProgressionChart(st)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Render(p, &buf, "svg"))

	p, err = ErrorChart(nil)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, Render(p, &buf, "svg"))
}

func TestHourlyChartPNG(t *testing.T) {
	p, err := HourlyChart(sampleStats())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(p, &buf, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestRenderUnknownFormat(t *testing.T) {
	p, err := ErrorChart([]modelstore.VersionInfo{{Version: 1, MAE: 4}, {Version: 2, MAE: 3}})
	require.NoError(t, err)
	assert.Error(t, Render(p, &bytes.Buffer{}, "bmp-ish"))
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	st := engine.Stats{
		Personalization: sampleStats(),
		Versions:        []modelstore.VersionInfo{{Version: 1, MAE: 6}, {Version: 2, MAE: 4.5}},
	}
	paths, err := WriteAll(st, dir, "svg")
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

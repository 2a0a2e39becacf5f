package psychometric

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

const tlxCSV = `participant_id,timestamp,mental_demand,physical_demand,temporal_demand,performance,effort,frustration,fatigue_score
p1,2026-03-02T10:00:00Z,80,20,70,40,75,60,72
p1,2026-03-02T11:00:00Z,60,10,50,60,55,30,48
p2,2026-03-02 12:00:00,30,10,20,80,35,10,22
`

const cfqCSV = `participant_id,physical_fatigue,psychological_fatigue,total_score,fatigue_score
a,14,8,22,66
b,3,2,5,15
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestLoader() *Loader {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return NewLoader(WithLogger(logger))
}

func TestLoadNASATLX(t *testing.T) {
	path := writeFile(t, "cogbeacon_nasatlx_multimodal.csv", tlxCSV)
	ds, err := newTestLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, SchemaNASATLX, ds.Schema)
	assert.Equal(t, "cogbeacon", ds.Meta.Organization)
	assert.Equal(t, "multimodal", ds.Meta.Features)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, 80.0, ds.Records[0].MentalDemand)
	assert.Equal(t, 72.0, ds.Records[0].FatigueScore)
	assert.False(t, ds.Records[2].Timestamp.IsZero())

	X, y := ds.Samples()
	require.Len(t, X, 3)
	assert.Equal(t, []float64{72, 48, 22}, y)
	for _, x := range X {
		assert.Len(t, x, features.ExtendedDim)
	}
}

func TestLoadCFQDetectedFromColumns(t *testing.T) {
	// file name does not follow the convention, detection uses columns only
	path := writeFile(t, "export.csv", cfqCSV)
	ds, err := newTestLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaCFQ, ds.Schema)
	assert.Equal(t, 33.0, ds.Records[0].TotalScale)
}

func TestCFQBimodalScale(t *testing.T) {
	path := writeFile(t, "lab_cfq_basic.csv", "physical_fatigue,psychological_fatigue,total_score,fatigue_score\n5,3,8,70\n1,1,2,20\n")
	ds, err := newTestLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, 11.0, ds.Records[0].TotalScale)
	v := SynthesizeFeatures(ds.Records[0])
	assert.InDelta(t, 8.0/11*100, v[features.LiveDim+6], 1e-9)
}

func TestLoadMissingColumns(t *testing.T) {
	path := writeFile(t, "lab_nasatlx_x.csv", "mental_demand,effort,fatigue_score\n10,10,10\n")
	_, err := newTestLoader().Load(path)
	require.Error(t, err)

	var derr *errors.DatasetError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "nasatlx", derr.Schema)
	assert.ElementsMatch(t, []string{"physical_demand", "temporal_demand", "performance", "frustration"}, derr.MissingColumns)
}

func TestLoadRejectsWholeFile(t *testing.T) {
	cases := map[string]struct {
		content string
		row     int
		column  string
	}{
		"out of range": {
			content: tlxCSV + "p3,,101,10,10,10,10,10,50\n",
			row:     4,
			column:  "mental_demand",
		},
		"non numeric": {
			content: strings.Replace(tlxCSV, ",72\n", ",high\n", 1),
			row:     1,
			column:  "fatigue_score",
		},
		"negative": {
			content: "physical_fatigue,psychological_fatigue,total_score,fatigue_score\n-1,2,3,4\n",
			row:     1,
			column:  "physical_fatigue",
		},
		"cfq bound": {
			content: "physical_fatigue,psychological_fatigue,total_score,fatigue_score\n1,13,3,4\n",
			row:     1,
			column:  "psychological_fatigue",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestLoader().Load(writeFile(t, "data.csv", tc.content))
			var derr *errors.DatasetError
			require.True(t, errors.As(err, &derr), "got %v", err)
			assert.Equal(t, tc.row, derr.Row)
			assert.Equal(t, tc.column, derr.Column)
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	for _, content := range []string{"", "mental_demand,physical_demand,temporal_demand,performance,effort,frustration,fatigue_score\n"} {
		_, err := newTestLoader().Load(writeFile(t, "empty.csv", content))
		var derr *errors.DatasetError
		assert.True(t, errors.As(err, &derr))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestBadTimestampIsWarnedNotRejected(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	content := strings.Replace(tlxCSV, "2026-03-02T10:00:00Z", "yesterday", 1)
	ds, err := NewLoader(WithLogger(logger)).Load(writeFile(t, "x_tlx_y.csv", content))
	require.NoError(t, err)
	assert.True(t, ds.Records[0].Timestamp.IsZero())
	assert.True(t, logger.ContainsMessage("Unparseable timestamp ignored"))
}

func TestStatistics(t *testing.T) {
	ds, err := newTestLoader().Load(writeFile(t, "cogbeacon_nasatlx_m.csv", tlxCSV))
	require.NoError(t, err)

	st := ds.Statistics()
	assert.Equal(t, 3, st.Samples)
	assert.Equal(t, 2, st.Participants)
	assert.InDelta(t, 142.0/3, st.Fatigue.Mean, 1e-9)
	assert.Equal(t, 22.0, st.Fatigue.Min)
	assert.Equal(t, 72.0, st.Fatigue.Max)
	assert.Greater(t, st.Fatigue.Std, 0.0)
	assert.Contains(t, st.Columns, ColMental)
}

func TestDetectTieBreakByFileName(t *testing.T) {
	header := map[string]int{}
	for i, c := range append(SchemaNASATLX.Required(), SchemaCFQ.Required()...) {
		header[c] = i
	}
	s, missing := detect(header, SchemaCFQ)
	assert.Equal(t, SchemaCFQ, s)
	assert.Empty(t, missing)

	s, _ = detect(header, "")
	assert.Equal(t, SchemaNASATLX, s)
}

func TestSamplesKeepRecordOrderOnLargeFiles(t *testing.T) {
	var b strings.Builder
	b.WriteString("mental_demand,physical_demand,temporal_demand,performance,effort,frustration,fatigue_score\n")
	for i := 0; i < 700; i++ {
		fmt.Fprintf(&b, "%d,10,20,50,%d,10,%d\n", i%101, (i*7)%101, i%101)
	}
	ds, err := newTestLoader().Load(writeFile(t, "big_nasatlx_synthetic.csv", b.String()))
	require.NoError(t, err)
	require.Equal(t, 700, ds.Len())

	X, y := ds.Samples()
	require.Len(t, X, 700)
	for i, rec := range ds.Records {
		assert.Equal(t, rec.FatigueScore, y[i])
		assert.Equal(t, SynthesizeFeatures(rec), X[i])
	}
}

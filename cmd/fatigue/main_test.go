package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	return filepath.Join(dir, "fatigo")
}

func TestSimulateThenVersions(t *testing.T) {
	data := isolate(t)

	out, err := run(t, "--data-dir", data, "simulate", "--sessions", "3", "--ticks", "6", "--start", "2026-03-02T09:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "rule_based")

	out, err = run(t, "--data-dir", data, "--json", "versions")
	require.NoError(t, err)
	var versions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	assert.Len(t, versions, 3)

	out, err = run(t, "--data-dir", data, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "samples")
	assert.Contains(t, out, "18")

	_, err = run(t, "--data-dir", data, "rollback", "2")
	require.NoError(t, err)
	_, err = run(t, "--data-dir", data, "rollback", "zero")
	assert.Error(t, err)
}

func TestTrainDatasetCommand(t *testing.T) {
	data := isolate(t)
	csv := filepath.Join(t.TempDir(), "lab_nasatlx_survey.csv")
	require.NoError(t, os.WriteFile(csv, []byte(
		"mental_demand,physical_demand,temporal_demand,performance,effort,frustration,fatigue_score\n"+
			"75,30,60,80,70,40,65\n40,10,30,70,35,20,30\n"), 0o644))

	out, err := run(t, "--data-dir", data, "--json", "train-dataset", csv)
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2.0, st["trained"])
	assert.Equal(t, 2.0, st["sample_count"])
}

func TestResetNeedsConfirmation(t *testing.T) {
	data := isolate(t)
	_, err := run(t, "--data-dir", data, "reset")
	assert.Error(t, err)

	out, err := run(t, "--data-dir", data, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cold start")
}

func TestPlotCommand(t *testing.T) {
	data := isolate(t)
	_, err := run(t, "--data-dir", data, "simulate", "--sessions", "2", "--ticks", "8")
	require.NoError(t, err)

	charts := filepath.Join(t.TempDir(), "charts")
	out, err := run(t, "--data-dir", data, "plot", "--out", charts, "--format", "svg")
	require.NoError(t, err)
	assert.Contains(t, out, "progression.svg")
	assert.FileExists(t, filepath.Join(charts, "hourly.svg"))
}

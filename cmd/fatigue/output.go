package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/YuminosukeSato/fatigo/engine"
	"github.com/YuminosukeSato/fatigo/modelstore"
	"github.com/YuminosukeSato/fatigo/personalization"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)

	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgMagenta, color.Bold)
	moderateColor = color.New(color.FgYellow)
	lowColor      = color.New(color.FgGreen)
)

func levelLabel(level string) string {
	switch personalization.Level(level) {
	case personalization.LevelCritical:
		return criticalColor.Sprint(level)
	case personalization.LevelHigh:
		return highColor.Sprint(level)
	case personalization.LevelModerate:
		return moderateColor.Sprint(level)
	default:
		return lowColor.Sprint(level)
	}
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable writes a right-aligned table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func printTraining(w io.Writer, st engine.TrainingStats) error {
	rows := [][]string{
		{"trained", strconv.Itoa(st.Trained)},
		{"total samples", strconv.Itoa(st.SampleCount)},
		{"model generation", strconv.Itoa(st.ModelVersion)},
		{"saved version", strconv.Itoa(st.SavedVersion)},
		{"ready", strconv.FormatBool(st.Ready)},
		{"mae", f2(st.Metrics.MAE)},
		{"rmse", f2(st.Metrics.RMSE)},
	}
	if ds := st.Dataset; ds != nil {
		rows = append(rows,
			[]string{"dataset", string(ds.Schema)},
			[]string{"organization", ds.Organization},
			[]string{"participants", strconv.Itoa(ds.Participants)},
			[]string{"fatigue mean", f2(ds.Fatigue.Mean)},
		)
	}
	return renderTable(w, []string{"Metric", "Value"}, rows)
}

func printStats(w io.Writer, st engine.Stats) error {
	perf := st.Model.Performance
	ps := st.Personalization
	rows := [][]string{
		{"feature space", st.FeatureSpace},
		{"samples", strconv.Itoa(perf.Samples)},
		{"ready", strconv.FormatBool(perf.Ready)},
		{"model generation", strconv.Itoa(perf.Version)},
		{"refits", strconv.Itoa(perf.Refits)},
		{"drift events", strconv.Itoa(perf.DriftCount)},
		{"recent mae", f2(perf.RecentMAE)},
		{"current version", strconv.Itoa(st.Model.Storage.CurrentVersion)},
		{"training trend", st.Model.Storage.Trend},
		{"sessions", strconv.Itoa(ps.Sessions)},
		{"stage", string(ps.Stage)},
		{"ml weight", f2(ps.MLWeight)},
		{"personalization", f2(ps.PersonalizationScore)},
		{"thresholds", fmt.Sprintf("%s / %s / %s / %s", f2(ps.Thresholds.Low), f2(ps.Thresholds.Moderate), f2(ps.Thresholds.High), f2(ps.Thresholds.Critical))},
		{"feedback", strconv.Itoa(ps.Feedback.Total)},
		{"degraded scores", strconv.Itoa(st.Degraded.Count)},
	}
	if err := renderTable(w, []string{"Metric", "Value"}, rows); err != nil {
		return err
	}
	if len(st.TopFeatures) == 0 {
		return nil
	}

	names := make([]string, 0, len(perf.MemberWeights))
	for name := range perf.MemberWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	var members [][]string
	for _, name := range names {
		members = append(members, []string{name, f2(perf.MemberWeights[name])})
	}
	if err := renderTable(w, []string{"Member", "Weight"}, members); err != nil {
		return err
	}

	var features [][]string
	for i, f := range st.TopFeatures {
		features = append(features, []string{strconv.Itoa(i + 1), f.Name, f2(f.Importance)})
	}
	return renderTable(w, []string{"Rank", "Feature", "Importance"}, features)
}

func printVersions(w io.Writer, versions []modelstore.VersionInfo) error {
	if len(versions) == 0 {
		_, err := fmt.Fprintln(w, "No saved model versions")
		return err
	}
	var rows [][]string
	for _, v := range versions {
		marker := ""
		if v.Current {
			marker = okColor.Sprint("*")
		}
		avail := "yes"
		if !v.Available {
			avail = warnColor.Sprint("no")
		}
		rows = append(rows, []string{
			marker + strconv.Itoa(v.Version),
			v.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(v.SampleCount),
			f2(v.MAE),
			f2(v.RMSE),
			f2(v.R2),
			avail,
		})
	}
	return renderTable(w, []string{"Version", "Saved", "Samples", "MAE", "RMSE", "R2", "Available"}, rows)
}

func printSimulation(w io.Writer, results []sessionResult) error {
	var rows [][]string
	for _, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(r.Session),
			f2(r.FinalScore),
			levelLabel(r.FinalLevel),
			r.Path,
			f2(r.MLWeight),
			strconv.Itoa(r.Samples),
			strconv.Itoa(r.Version),
		})
	}
	return renderTable(w, []string{"Session", "Final score", "Level", "Path", "ML weight", "Samples", "Version"}, rows)
}

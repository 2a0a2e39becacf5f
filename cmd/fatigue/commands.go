package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fatigo/engine"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/report"
)

func newTrainDatasetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train-dataset <file.csv>",
		Short: "Train the model on a NASA-TLX or CFQ dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			st, err := eng.TrainFromExternalDataset(args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			return printTraining(cmd.OutOrStdout(), st)
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show model, personalization and storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			st := eng.Stats()
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			return printStats(cmd.OutOrStdout(), st)
		},
	}
}

func newVersionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List saved model versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			versions, err := eng.Versions()
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), versions)
			}
			return printVersions(cmd.OutOrStdout(), versions)
		},
	}
}

func newRollbackCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <version>",
		Short: "Make a retained model version current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return errors.NewValidationError("version", "must be a positive integer", args[0])
			}
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.Rollback(v); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Rolled back to version %d\n", v)
			return nil
		},
	}
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the trained model, its history and the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset is irreversible, pass --yes to confirm")
			}
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.Reset(); err != nil {
				return err
			}
			okColor.Fprintln(cmd.OutOrStdout(), "Model and profile reset to cold start")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

type simulateOptions struct {
	sessions int
	ticks    int
	interval time.Duration
	seed     int64
	start    string
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Score and train synthetic sessions with rising fatigue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sim.sessions <= 0 || sim.ticks <= 0 || sim.interval <= 0 {
				return errors.NewValidationError("simulate", "sessions, ticks and interval must be positive", sim.sessions)
			}
			start := time.Now().Truncate(24 * time.Hour).Add(9 * time.Hour)
			if sim.start != "" {
				t, err := time.Parse(time.RFC3339, sim.start)
				if err != nil {
					return errors.NewValidationError("start", "must be RFC3339", sim.start)
				}
				start = t
			}
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			results, err := simulate(eng, start, sim)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return printSimulation(cmd.OutOrStdout(), results)
		},
	}
	f := cmd.Flags()
	f.IntVar(&sim.sessions, "sessions", 10, "number of sessions")
	f.IntVar(&sim.ticks, "ticks", 24, "scored ticks per session")
	f.DurationVar(&sim.interval, "interval", 5*time.Minute, "time between ticks")
	f.Int64Var(&sim.seed, "seed", 1, "random seed")
	f.StringVar(&sim.start, "start", "", "first session start (RFC3339)")
	return cmd
}

// sessionResult summarizes one simulated session.
type sessionResult struct {
	Session    int     `json:"session"`
	FinalScore float64 `json:"final_score"`
	FinalLevel string  `json:"final_level"`
	Path       string  `json:"path"`
	MLWeight   float64 `json:"ml_weight"`
	Samples    int     `json:"samples"`
	Version    int     `json:"saved_version"`
}

// simulate runs sessions one day apart where activity decays and blink
// rate drops as the session goes on.
func simulate(eng *engine.Engine, start time.Time, sim *simulateOptions) ([]sessionResult, error) {
	rng := rand.New(rand.NewSource(sim.seed))
	out := make([]sessionResult, 0, sim.sessions)
	for s := 0; s < sim.sessions; s++ {
		begin := start.AddDate(0, 0, s)
		eng.StartSession(begin)

		var last engine.FatigueScore
		for k := 0; k < sim.ticks; k++ {
			elapsed := time.Duration(k) * sim.interval
			progress := float64(k) / float64(sim.ticks)
			rate := 60*(1-0.6*progress) + rng.Float64()*4
			last = eng.CalculateScore(engine.SessionContext{
				Now:             begin.Add(elapsed),
				SessionDuration: elapsed,
				SinceBreak:      elapsed,
				Keyboard:        int(rate * 0.7),
				Mouse:           int(rate * 0.3),
				ActivityRate:    rate,
				HasBlink:        true,
				BlinkRate:       18 - 10*progress + rng.Float64(),
			})
		}
		st, err := eng.Train(nil)
		if err != nil {
			return out, errors.Wrapf(err, "session %d", s+1)
		}
		out = append(out, sessionResult{
			Session:    s + 1,
			FinalScore: last.Value,
			FinalLevel: string(last.Level),
			Path:       last.Factors.Path,
			MLWeight:   last.Factors.MLWeight,
			Samples:    st.SampleCount,
			Version:    st.SavedVersion,
		})
	}
	return out, nil
}

func newPlotCmd(opts *rootOptions) *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render progression, productivity and model error charts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openEngine(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			paths, err := report.WriteAll(eng.Stats(), dir, format)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", "charts", "output directory")
	cmd.Flags().StringVar(&format, "format", "png", "image format: png, svg, pdf")
	return cmd
}

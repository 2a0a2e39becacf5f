// Package features turns raw activity and blink samples into the fixed
// feature vectors consumed by the fatigue predictor.
package features

import (
	"strings"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// Vector は順序付きの特徴量ベクトル
type Vector = []float64

// LiveNames is the ordered layout of vectors extracted from live sessions.
var LiveNames = []string{
	// activity
	"activity_rate_1min",
	"activity_rate_5min",
	"activity_rate_15min",
	"keyboard_rate",
	"mouse_rate",
	"activity_variance",
	"activity_trend",
	"activity_decline_ratio",
	// eye
	"blink_rate",
	"blink_rate_5min_avg",
	"blink_rate_variance",
	"blink_rate_trend",
	"eye_strain_level",
	"blink_decline_ratio",
	// temporal
	"hour_sin",
	"hour_cos",
	"day_of_week",
	"is_weekend",
	"time_of_day_category",
	"session_elapsed_normalized",
	// session
	"session_duration_minutes",
	"time_since_break_minutes",
	"break_frequency",
	// historical
	"fatigue_5min_ago",
	"fatigue_15min_ago",
	"fatigue_avg_1hour",
	"fatigue_trend",
	"fatigue_variance",
}

// PsychometricNames are appended to LiveNames in the extended space.
var PsychometricNames = []string{
	"psy_mental_demand",
	"psy_physical_demand",
	"psy_temporal_demand",
	"psy_performance",
	"psy_effort",
	"psy_frustration",
	"psy_overall",
}

// Dimensions of the two feature spaces.
var (
	LiveDim     = len(LiveNames)
	ExtendedDim = len(LiveNames) + len(PsychometricNames)
)

// Space is the declared input space of the predictor.
type Space int

const (
	// SpaceExtended はライブ特徴量＋心理測定特徴量（デフォルト）
	SpaceExtended Space = iota
	// SpaceLive はライブ特徴量のみ
	SpaceLive
)

// String returns the configuration name of the space.
func (s Space) String() string {
	if s == SpaceLive {
		return "live"
	}
	return "extended"
}

// Dim returns the vector length of the space.
func (s Space) Dim() int {
	if s == SpaceLive {
		return LiveDim
	}
	return ExtendedDim
}

// Names returns a copy of the ordered feature names of the space.
func (s Space) Names() []string {
	names := append([]string(nil), LiveNames...)
	if s == SpaceExtended {
		names = append(names, PsychometricNames...)
	}
	return names
}

// Index returns the position of name in the space, or -1.
func (s Space) Index(name string) int {
	for i, n := range s.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

// ParseSpace parses "live" or "extended".
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extended":
		return SpaceExtended, nil
	case "live":
		return SpaceLive, nil
	default:
		return SpaceExtended, errors.NewValidationError("feature_space", "must be live or extended", s)
	}
}

// Extend fits a vector to the space. A live vector gains the neutral
// psychometric block (zeros, "no assessment") in the extended space.
// Any other length mismatch is a DimensionError.
func Extend(v Vector, space Space) (Vector, error) {
	switch {
	case len(v) == space.Dim():
		return v, nil
	case space == SpaceExtended && len(v) == LiveDim:
		out := make(Vector, ExtendedDim)
		copy(out, v)
		return out, nil
	default:
		return nil, errors.NewDimensionError("features.Extend", space.Dim(), len(v), 1)
	}
}

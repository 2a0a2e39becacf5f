package personalization

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// ProfileSchemaVersion is the current profile file version.
const ProfileSchemaVersion = 1

const (
	hoursPerDay      = 24
	progressionBins  = 8
	progressionWidth = 15 * time.Minute
	maxFeedback      = 100
)

// RunningMean is an incrementally updated mean.
type RunningMean struct {
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Add folds x into the mean.
func (r *RunningMean) Add(x float64) {
	r.Count++
	r.Mean += (x - r.Mean) / float64(r.Count)
}

// Feedback kinds.
const (
	FeedbackCorrection     = "correction"
	FeedbackDismissedAlert = "dismissed_alert"
	FeedbackTookBreak      = "took_break"
)

// FeedbackEntry is one user correction or reaction.
type FeedbackEntry struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Predicted float64 `json:"predicted"`
	Corrected float64 `json:"corrected,omitempty"`
	Note      string  `json:"note,omitempty"`
	// AdjustSensitivity marks actions that disagree with the alert level.
	AdjustSensitivity bool      `json:"adjust_sensitivity,omitempty"`
	At                time.Time `json:"at"`
}

// Profile はユーザーごとの個人化状態（JSONで永続化される）
type Profile struct {
	SchemaVersion int                          `json:"schema_version"`
	ID            string                       `json:"profile_id"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
	TotalSessions int                          `json:"total_sessions"`
	Thresholds    Thresholds                   `json:"thresholds"`
	Hourly        [hoursPerDay]RunningMean     `json:"hourly_productivity"`
	Progression   [progressionBins]RunningMean `json:"fatigue_progression"`
	Feedback      []FeedbackEntry              `json:"feedback"`
}

// NewProfile returns a profile with baseline defaults.
func NewProfile(now time.Time) *Profile {
	return &Profile{
		SchemaVersion: ProfileSchemaVersion,
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Thresholds:    BaseThresholds,
	}
}

// loadProfile reads path. A missing file is (nil, nil).
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read profile %s", path)
	}

	var probe struct {
		SchemaVersion *int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.NewCorruptStateError(path, err)
	}
	if probe.SchemaVersion == nil {
		return nil, errors.NewCorruptStateError(path, errors.New("schema_version missing"))
	}
	if *probe.SchemaVersion != ProfileSchemaVersion {
		return nil, errors.NewSchemaMismatchError(path, "schema_version", ProfileSchemaVersion, *probe.SchemaVersion)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.NewCorruptStateError(path, err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return &p, nil
}

// saveProfile writes p atomically via a temp file in the same directory.
func saveProfile(path string, p *Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode profile")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temp profile")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write profile")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync profile")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close profile")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

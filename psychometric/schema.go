// Package psychometric loads NASA-TLX and CFQ assessment datasets and maps
// their records onto the extended fatigue feature space.
package psychometric

import (
	"path/filepath"
	"strings"
)

// Schema identifies an assessment instrument.
type Schema string

// Supported schemas.
const (
	SchemaNASATLX Schema = "nasatlx"
	SchemaCFQ     Schema = "cfq"
)

// Column names.
const (
	ColParticipant = "participant_id"
	ColTimestamp   = "timestamp"
	ColFatigue     = "fatigue_score"

	ColMental      = "mental_demand"
	ColPhysical    = "physical_demand"
	ColTemporal    = "temporal_demand"
	ColPerformance = "performance"
	ColEffort      = "effort"
	ColFrustration = "frustration"

	ColPhysicalFatigue      = "physical_fatigue"
	ColPsychologicalFatigue = "psychological_fatigue"
	ColTotalScore           = "total_score"
)

// valueRange is an inclusive bound for a numeric column.
type valueRange struct{ min, max float64 }

var tlxRange = valueRange{0, 100}

// Required returns the mandatory numeric columns of the schema.
func (s Schema) Required() []string {
	switch s {
	case SchemaNASATLX:
		return []string{ColMental, ColPhysical, ColTemporal, ColPerformance, ColEffort, ColFrustration, ColFatigue}
	case SchemaCFQ:
		return []string{ColPhysicalFatigue, ColPsychologicalFatigue, ColTotalScore, ColFatigue}
	default:
		return nil
	}
}

// SourceTag is the training-sample source tag of the schema.
func (s Schema) SourceTag() string { return string(s) }

func (s Schema) rangeOf(column string) valueRange {
	switch column {
	case ColFatigue:
		return valueRange{0, 100}
	case ColPhysicalFatigue:
		return valueRange{0, 21}
	case ColPsychologicalFatigue:
		return valueRange{0, 12}
	case ColTotalScore:
		return valueRange{0, 33}
	default:
		return tlxRange
	}
}

// ParseSchema accepts the assessment spellings found in file names.
func ParseSchema(s string) (Schema, bool) {
	switch strings.ToLower(s) {
	case "nasatlx", "nasa-tlx", "tlx":
		return SchemaNASATLX, true
	case "cfq", "chalder":
		return SchemaCFQ, true
	default:
		return "", false
	}
}

// FileMeta is the metadata encoded in <organization>_<assessment>_<features>.csv.
type FileMeta struct {
	Organization string
	Assessment   string
	Features     string
}

// ParseFileName splits a dataset file name. ok is false when the name does
// not follow the convention.
func ParseFileName(path string) (FileMeta, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return FileMeta{}, false
	}
	return FileMeta{
		Organization: parts[0],
		Assessment:   parts[1],
		Features:     strings.Join(parts[2:], "_"),
	}, true
}

// detect picks the schema whose required columns are all present. When both
// or neither match, the file-name hint decides; otherwise the schema with
// the most columns present is reported with its missing list.
func detect(header map[string]int, hint Schema) (Schema, []string) {
	missingFor := func(s Schema) []string {
		var missing []string
		for _, c := range s.Required() {
			if _, ok := header[c]; !ok {
				missing = append(missing, c)
			}
		}
		return missing
	}
	tlxMissing := missingFor(SchemaNASATLX)
	cfqMissing := missingFor(SchemaCFQ)

	switch {
	case len(tlxMissing) == 0 && len(cfqMissing) == 0:
		if hint == SchemaCFQ {
			return SchemaCFQ, nil
		}
		return SchemaNASATLX, nil
	case len(tlxMissing) == 0:
		return SchemaNASATLX, nil
	case len(cfqMissing) == 0:
		return SchemaCFQ, nil
	}

	switch hint {
	case SchemaNASATLX:
		return SchemaNASATLX, tlxMissing
	case SchemaCFQ:
		return SchemaCFQ, cfqMissing
	}
	tlxPresent := len(SchemaNASATLX.Required()) - len(tlxMissing)
	cfqPresent := len(SchemaCFQ.Required()) - len(cfqMissing)
	if cfqPresent > tlxPresent {
		return SchemaCFQ, cfqMissing
	}
	return SchemaNASATLX, tlxMissing
}

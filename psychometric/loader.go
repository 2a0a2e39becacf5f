package psychometric

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fatigo/core/parallel"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// Record is one validated assessment row.
type Record struct {
	Schema        Schema
	Row           int
	ParticipantID string
	Timestamp     time.Time
	FatigueScore  float64

	// NASA-TLX (0-100)
	MentalDemand   float64
	PhysicalDemand float64
	TemporalDemand float64
	Performance    float64
	Effort         float64
	Frustration    float64

	// CFQ
	PhysicalFatigue      float64 // 0-21
	PsychologicalFatigue float64 // 0-12
	TotalScore           float64 // 0-33
	// TotalScale is 11 for bimodal and 33 for Likert scoring.
	TotalScale float64
}

// Dataset は検証済みの心理測定データセット
type Dataset struct {
	Path     string
	Meta     FileMeta
	Schema   Schema
	Records  []Record
	LoadedAt time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Loader reads psychometric CSV files.
type Loader struct {
	logger log.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(l log.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	ld := &Loader{logger: log.GetLoggerWithName("psychometric")}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load reads and validates a dataset file with the default loader.
func Load(path string) (*Dataset, error) {
	return NewLoader().Load(path)
}

// Load reads and validates path. Any invalid cell rejects the whole file.
func (ld *Loader) Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer f.Close()

	ds, err := ld.Read(path, f)
	if err != nil {
		return nil, err
	}
	ld.logger.Info("Loaded psychometric dataset",
		log.PathKey, path,
		log.SchemaKey, string(ds.Schema),
		log.SamplesKey, len(ds.Records),
		"organization", ds.Meta.Organization,
	)
	return ds, nil
}

// Read parses CSV content from r. path is used for metadata and errors.
func (ld *Loader) Read(path string, r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.NewDatasetError(path, "malformed csv: "+err.Error())
	}
	if len(rows) == 0 {
		return nil, errors.NewDatasetError(path, "empty file")
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}

	meta, _ := ParseFileName(path)
	hint, _ := ParseSchema(meta.Assessment)
	schema, missing := detect(header, hint)
	if len(missing) > 0 {
		return nil, errors.NewMissingColumnsError(path, string(schema), missing)
	}
	if len(rows) == 1 {
		return nil, errors.NewDatasetError(path, "no records")
	}

	ds := &Dataset{
		Path:     path,
		Meta:     meta,
		Schema:   schema,
		Records:  make([]Record, 0, len(rows)-1),
		LoadedAt: time.Now(),
	}
	for i, row := range rows[1:] {
		rec, err := ld.parseRow(path, schema, header, row, i+1)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}

	if schema == SchemaCFQ {
		maxTotal := 0.0
		for _, rec := range ds.Records {
			maxTotal = math.Max(maxTotal, rec.TotalScore)
		}
		// 合計点が11以下なら二値採点とみなす
		scale := 33.0
		if maxTotal <= 11 {
			scale = 11
		}
		for i := range ds.Records {
			ds.Records[i].TotalScale = scale
		}
	}
	return ds, nil
}

func (ld *Loader) parseRow(path string, schema Schema, header map[string]int, row []string, n int) (Record, error) {
	rec := Record{Schema: schema, Row: n}
	cell := func(col string) (string, bool) {
		idx, ok := header[col]
		if !ok || idx >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[idx]), true
	}
	num := func(col string) (float64, error) {
		raw, ok := cell(col)
		if !ok || raw == "" {
			return 0, errors.NewDatasetRowError(path, string(schema), n, col, "missing value")
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !errors.IsFinite(v) {
			return 0, errors.NewDatasetRowError(path, string(schema), n, col, "not a number: "+raw)
		}
		rg := schema.rangeOf(col)
		if v < rg.min || v > rg.max {
			return 0, errors.NewDatasetRowError(path, string(schema), n, col,
				"out of range ["+strconv.FormatFloat(rg.min, 'f', -1, 64)+", "+strconv.FormatFloat(rg.max, 'f', -1, 64)+"]: "+raw)
		}
		return v, nil
	}

	targets := map[string]*float64{ColFatigue: &rec.FatigueScore}
	switch schema {
	case SchemaNASATLX:
		targets[ColMental] = &rec.MentalDemand
		targets[ColPhysical] = &rec.PhysicalDemand
		targets[ColTemporal] = &rec.TemporalDemand
		targets[ColPerformance] = &rec.Performance
		targets[ColEffort] = &rec.Effort
		targets[ColFrustration] = &rec.Frustration
	case SchemaCFQ:
		targets[ColPhysicalFatigue] = &rec.PhysicalFatigue
		targets[ColPsychologicalFatigue] = &rec.PsychologicalFatigue
		targets[ColTotalScore] = &rec.TotalScore
	}
	// 必須列の順で検証し、最初の不正セルを報告する
	for _, col := range schema.Required() {
		v, err := num(col)
		if err != nil {
			return Record{}, err
		}
		*targets[col] = v
	}

	if id, ok := cell(ColParticipant); ok {
		rec.ParticipantID = id
	}
	if raw, ok := cell(ColTimestamp); ok && raw != "" {
		if ts, ok := parseTimestamp(raw); ok {
			rec.Timestamp = ts
		} else {
			ld.logger.Warn("Unparseable timestamp ignored", log.PathKey, path, "row", n, "value", raw)
		}
	}
	return rec, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// parallelThreshold is the record count above which synthesis is split
// across goroutines.
const parallelThreshold = 512

// Samples returns synthesized extended vectors and fatigue targets in
// record order.
func (d *Dataset) Samples() ([][]float64, []float64) {
	X := make([][]float64, len(d.Records))
	y := make([]float64, len(d.Records))
	parallel.ChunksAbove(len(d.Records), parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			X[i] = SynthesizeFeatures(d.Records[i])
			y[i] = d.Records[i].FatigueScore
		}
	})
	return X, y
}

// Summary is the mean and sample standard deviation of a column.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Statistics describes a loaded dataset.
type Statistics struct {
	Organization string             `json:"organization"`
	Schema       Schema             `json:"assessment_type"`
	Samples      int                `json:"sample_count"`
	Participants int                `json:"participant_count"`
	Fatigue      Summary            `json:"fatigue_score"`
	Columns      map[string]Summary `json:"columns"`
}

// Statistics computes dataset-level summaries.
func (d *Dataset) Statistics() Statistics {
	st := Statistics{
		Organization: d.Meta.Organization,
		Schema:       d.Schema,
		Samples:      len(d.Records),
		Columns:      make(map[string]Summary),
	}
	participants := make(map[string]struct{})
	for _, rec := range d.Records {
		if rec.ParticipantID != "" {
			participants[rec.ParticipantID] = struct{}{}
		}
	}
	st.Participants = len(participants)

	column := func(get func(Record) float64) Summary {
		vals := make([]float64, len(d.Records))
		for i, rec := range d.Records {
			vals[i] = get(rec)
		}
		return summarize(vals)
	}
	st.Fatigue = column(func(r Record) float64 { return r.FatigueScore })

	switch d.Schema {
	case SchemaNASATLX:
		st.Columns[ColMental] = column(func(r Record) float64 { return r.MentalDemand })
		st.Columns[ColPhysical] = column(func(r Record) float64 { return r.PhysicalDemand })
		st.Columns[ColTemporal] = column(func(r Record) float64 { return r.TemporalDemand })
		st.Columns[ColPerformance] = column(func(r Record) float64 { return r.Performance })
		st.Columns[ColEffort] = column(func(r Record) float64 { return r.Effort })
		st.Columns[ColFrustration] = column(func(r Record) float64 { return r.Frustration })
	case SchemaCFQ:
		st.Columns[ColPhysicalFatigue] = column(func(r Record) float64 { return r.PhysicalFatigue })
		st.Columns[ColPsychologicalFatigue] = column(func(r Record) float64 { return r.PsychologicalFatigue })
		st.Columns[ColTotalScore] = column(func(r Record) float64 { return r.TotalScore })
	}
	return st
}

func summarize(vals []float64) Summary {
	if len(vals) == 0 {
		return Summary{}
	}
	s := Summary{Min: vals[0], Max: vals[0]}
	for _, v := range vals {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if len(vals) == 1 {
		s.Mean = vals[0]
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	return s
}

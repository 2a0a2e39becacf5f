// Package drift provides concept drift detection over a stream of
// prediction outcomes.
package drift

import (
	"math"
	"sync"
)

// DDM (Drift Detection Method) tracks the error rate of a predictor and
// signals drift when it rises significantly above its historical minimum.
//
// Gama et al., "Learning with Drift Detection" (2004).
//
// A prediction is "incorrect" when its absolute error exceeds the
// configured tolerance. With p the error rate and s = sqrt(p(1-p)/n):
//   - warning when p + s > p_min + warningLevel * s_min
//   - drift when p + s > p_min + outControlLevel * s_min
type DDM struct {
	minNumInstances int
	warningLevel    float64
	outControlLevel float64
	errorTolerance  float64

	numInstances int
	numErrors    int
	errorRate    float64
	stdDev       float64

	minErrorRate float64
	minStdDev    float64

	warningDetected bool
	driftDetected   bool
	driftCount      int

	mu sync.RWMutex
}

// DriftDetectionResult is the outcome of a single update.
type DriftDetectionResult struct {
	WarningDetected bool
	DriftDetected   bool
	ErrorRate       float64
	// ConfidenceLevel is (p + s) / (p_min + s_min).
	ConfidenceLevel float64
}

// DDMOption configures a DDM.
type DDMOption func(*DDM)

// NewDDM creates a DDM with 30 warm-up instances, warning at 2σ, drift at 3σ
// and an absolute error tolerance of 10 score points.
func NewDDM(options ...DDMOption) *DDM {
	ddm := &DDM{
		minNumInstances: 30,
		warningLevel:    2.0,
		outControlLevel: 3.0,
		errorTolerance:  10.0,
		minErrorRate:    math.Inf(1),
		minStdDev:       math.Inf(1),
	}
	for _, opt := range options {
		opt(ddm)
	}
	return ddm
}

// WithDDMMinNumInstances sets the warm-up period.
func WithDDMMinNumInstances(n int) DDMOption {
	return func(ddm *DDM) { ddm.minNumInstances = n }
}

// WithDDMWarningLevel sets the warning multiplier.
func WithDDMWarningLevel(level float64) DDMOption {
	return func(ddm *DDM) { ddm.warningLevel = level }
}

// WithDDMOutControlLevel sets the drift multiplier.
func WithDDMOutControlLevel(level float64) DDMOption {
	return func(ddm *DDM) { ddm.outControlLevel = level }
}

// WithDDMErrorTolerance sets the absolute error above which a regression
// prediction counts as incorrect.
func WithDDMErrorTolerance(tol float64) DDMOption {
	return func(ddm *DDM) { ddm.errorTolerance = tol }
}

// Update records whether the latest prediction was correct.
func (ddm *DDM) Update(correct bool) *DriftDetectionResult {
	ddm.mu.Lock()
	defer ddm.mu.Unlock()

	ddm.numInstances++
	if !correct {
		ddm.numErrors++
	}

	if ddm.numInstances < ddm.minNumInstances {
		return &DriftDetectionResult{}
	}

	ddm.errorRate = float64(ddm.numErrors) / float64(ddm.numInstances)
	ddm.stdDev = math.Sqrt(ddm.errorRate * (1.0 - ddm.errorRate) / float64(ddm.numInstances))

	result := &DriftDetectionResult{ErrorRate: ddm.errorRate}

	currentLevel := ddm.errorRate + ddm.stdDev
	if currentLevel < ddm.minErrorRate+ddm.minStdDev {
		ddm.minErrorRate = ddm.errorRate
		ddm.minStdDev = ddm.stdDev
	}

	if base := ddm.minErrorRate + ddm.minStdDev; base > 0 {
		result.ConfidenceLevel = currentLevel / base
	} else {
		result.ConfidenceLevel = 1.0
	}

	ddm.warningDetected = currentLevel > ddm.minErrorRate+ddm.warningLevel*ddm.minStdDev
	result.WarningDetected = ddm.warningDetected

	if currentLevel > ddm.minErrorRate+ddm.outControlLevel*ddm.minStdDev {
		result.DriftDetected = true
		ddm.driftCount++
		// 新しい概念の学習に備えて統計を初期化
		ddm.resetLocked()
		ddm.driftDetected = true
	} else {
		ddm.driftDetected = false
	}

	return result
}

// UpdateWithPrediction records a regression outcome.
func (ddm *DDM) UpdateWithPrediction(predicted, actual float64) *DriftDetectionResult {
	return ddm.UpdateWithError(math.Abs(predicted - actual))
}

// UpdateWithError records an absolute error.
func (ddm *DDM) UpdateWithError(absError float64) *DriftDetectionResult {
	ddm.mu.RLock()
	tol := ddm.errorTolerance
	ddm.mu.RUnlock()
	return ddm.Update(absError <= tol)
}

// Reset clears all statistics including the drift counter.
func (ddm *DDM) Reset() {
	ddm.mu.Lock()
	defer ddm.mu.Unlock()
	ddm.resetLocked()
	ddm.driftDetected = false
	ddm.driftCount = 0
}

func (ddm *DDM) resetLocked() {
	ddm.numInstances = 0
	ddm.numErrors = 0
	ddm.errorRate = 0
	ddm.stdDev = 0
	ddm.minErrorRate = math.Inf(1)
	ddm.minStdDev = math.Inf(1)
	ddm.warningDetected = false
}

// GetStatistics returns a snapshot of the detector state.
func (ddm *DDM) GetStatistics() DDMStatistics {
	ddm.mu.RLock()
	defer ddm.mu.RUnlock()

	return DDMStatistics{
		NumInstances:    ddm.numInstances,
		NumErrors:       ddm.numErrors,
		ErrorRate:       ddm.errorRate,
		StdDev:          ddm.stdDev,
		WarningDetected: ddm.warningDetected,
		DriftDetected:   ddm.driftDetected,
		DriftCount:      ddm.driftCount,
	}
}

// DDMStatistics は検出器の統計情報
type DDMStatistics struct {
	NumInstances    int
	NumErrors       int
	ErrorRate       float64
	StdDev          float64
	WarningDetected bool
	DriftDetected   bool
	DriftCount      int
}

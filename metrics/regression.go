// Package metrics provides regression error metrics for evaluating the
// fatigue predictor.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// MaxError returns the largest absolute residual.
func MaxError(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MaxError", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var maxErr float64
	for i := 0; i < n; i++ {
		maxErr = math.Max(maxErr, math.Abs(yTrue.AtVec(i)-yPred.AtVec(i)))
	}
	return maxErr, nil
}

// R2Score は決定係数（R²）を計算する
// 目的変数が定数の場合はUndefinedMetricWarningを出して0を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}

	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2_score", "constant y_true", 0))
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// Report bundles the regression metrics reported for the predictor.
type Report struct {
	Samples  int     `json:"samples"`
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MaxError float64 `json:"max_error"`
	R2       float64 `json:"r2"`
}

// Evaluate computes every metric in Report for paired slices.
func Evaluate(yTrue, yPred []float64) (Report, error) {
	if len(yTrue) == 0 {
		return Report{}, errors.NewValueError("Evaluate", "empty vector")
	}
	if len(yTrue) != len(yPred) {
		return Report{}, errors.NewDimensionError("Evaluate", len(yTrue), len(yPred), 0)
	}
	t := mat.NewVecDense(len(yTrue), append([]float64(nil), yTrue...))
	p := mat.NewVecDense(len(yPred), append([]float64(nil), yPred...))

	r := Report{Samples: len(yTrue)}
	var err error
	if r.MAE, err = MAE(t, p); err != nil {
		return Report{}, err
	}
	if r.RMSE, err = RMSE(t, p); err != nil {
		return Report{}, err
	}
	if r.MaxError, err = MaxError(t, p); err != nil {
		return Report{}, err
	}
	if r.R2, err = R2Score(t, p); err != nil {
		return Report{}, err
	}
	return r, nil
}

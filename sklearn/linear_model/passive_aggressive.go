package linear_model

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

const passiveAggressiveName = "PassiveAggressiveRegressor"

// PassiveAggressiveRegressor は受動的攻撃的回帰モデル
// 誤差がepsilon以内なら更新せず（passive）、超えた場合は1サンプルで
// 誤差を打ち消す最小の更新をCで上限付きで行う（aggressive）。
type PassiveAggressiveRegressor struct {
	state *model.StateManager

	// ハイパーパラメータ
	C            float64 // 正則化パラメータ（1ステップの更新量の上限）
	epsilon      float64 // epsilon-insensitive損失のepsilon
	fitIntercept bool    // 切片を学習するか
	loss         string  // "epsilon_insensitive", "squared_epsilon_insensitive"

	// 学習パラメータ
	coef_      []float64
	intercept_ float64
	t_         int64 // 総ステップ数

	mu sync.RWMutex
}

// PassiveAggressiveOption は設定オプション
type PassiveAggressiveOption func(*PassiveAggressiveRegressor)

// NewPassiveAggressiveRegressor は新しいPassiveAggressiveRegressorを作成
func NewPassiveAggressiveRegressor(options ...PassiveAggressiveOption) *PassiveAggressiveRegressor {
	pa := &PassiveAggressiveRegressor{
		state:        model.NewStateManager(),
		C:            1.0,
		epsilon:      0.1,
		fitIntercept: true,
		loss:         "epsilon_insensitive",
	}
	for _, opt := range options {
		opt(pa)
	}
	return pa
}

// WithPAC は正則化パラメータを設定
func WithPAC(c float64) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveRegressor) { pa.C = c }
}

// WithPAEpsilon sets the insensitive band half-width.
func WithPAEpsilon(eps float64) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveRegressor) { pa.epsilon = eps }
}

// WithPAFitIntercept は切片学習の有無を設定
func WithPAFitIntercept(fit bool) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveRegressor) { pa.fitIntercept = fit }
}

// WithPALoss は損失関数を設定
func WithPALoss(loss string) PassiveAggressiveOption {
	return func(pa *PassiveAggressiveRegressor) { pa.loss = loss }
}

// PartialFit はミニバッチでモデルを逐次的に学習
func (pa *PassiveAggressiveRegressor) PartialFit(X, y mat.Matrix, sampleWeight []float64) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError("PassiveAggressiveRegressor.PartialFit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDimensionError("PartialFit", rows, yr, 0)
	}
	if sampleWeight != nil && len(sampleWeight) != rows {
		return errors.NewDimensionError("PartialFit", rows, len(sampleWeight), 0)
	}
	if err := pa.state.CheckFeatures("PartialFit", cols); err != nil {
		return err
	}
	if pa.coef_ == nil {
		pa.coef_ = make([]float64, cols)
	}

	xi := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(xi, i, X)
		w := 1.0
		if sampleWeight != nil {
			w = sampleWeight[i]
		}
		pa.updateWeights(xi, y.At(i, 0), w)
	}

	if err := errors.CheckNumericalStability("PassiveAggressiveRegressor.PartialFit", pa.coef_, int(pa.t_)); err != nil {
		errors.Warn(errors.NewConvergenceWarning(passiveAggressiveName, int(pa.t_), "coefficients became non-finite, resetting"))
		pa.resetLocked()
		return err
	}

	if nf, _ := pa.state.GetDimensions(); nf == 0 {
		pa.state.SetDimensions(cols, 0)
	}
	pa.state.AddSamples(rows)
	pa.state.SetFitted()
	return nil
}

// updateWeights は単一サンプルで重みを更新
func (pa *PassiveAggressiveRegressor) updateWeights(x []float64, y, sampleWeight float64) {
	pred := pa.intercept_
	for i, xi := range x {
		pred += pa.coef_[i] * xi
	}

	diff := math.Abs(y - pred)
	if diff <= pa.epsilon {
		pa.t_++
		return
	}

	// 切片を学習する場合は拡張ベクトル [x, 1] のノルムを使う
	sqnorm := dotProduct(x, x)
	if pa.fitIntercept {
		sqnorm += 1
	}
	c := pa.C * sampleWeight

	var tau float64
	switch pa.loss {
	case "squared_epsilon_insensitive":
		tau = (diff - pa.epsilon) / (sqnorm + 1.0/(2.0*c))
	default:
		// PA-I: 更新量をCで打ち切る
		tau = math.Min(c, (diff-pa.epsilon)/math.Max(sqnorm, 1e-12))
	}
	if y < pred {
		tau = -tau
	}

	for i, xi := range x {
		pa.coef_[i] += tau * xi
	}
	if pa.fitIntercept {
		pa.intercept_ += tau
	}
	pa.t_++
}

// Predict は入力データに対する予測を行う
func (pa *PassiveAggressiveRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	if err := pa.state.RequireFitted(passiveAggressiveName, "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := pa.state.CheckFeatures("Predict", cols); err != nil {
		return nil, err
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		pred := pa.intercept_
		for j := 0; j < cols; j++ {
			pred += X.At(i, j) * pa.coef_[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// IsFitted returns whether the model has been fitted.
func (pa *PassiveAggressiveRegressor) IsFitted() bool {
	return pa.state.IsFitted()
}

// Coef returns a copy of the coefficients.
func (pa *PassiveAggressiveRegressor) Coef() []float64 {
	pa.mu.RLock()
	defer pa.mu.RUnlock()
	return append([]float64(nil), pa.coef_...)
}

// Intercept returns the learned intercept.
func (pa *PassiveAggressiveRegressor) Intercept() float64 {
	pa.mu.RLock()
	defer pa.mu.RUnlock()
	return pa.intercept_
}

// Reset discards learned parameters.
func (pa *PassiveAggressiveRegressor) Reset() {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	pa.resetLocked()
}

func (pa *PassiveAggressiveRegressor) resetLocked() {
	pa.coef_ = nil
	pa.intercept_ = 0
	pa.t_ = 0
	pa.state.Reset()
}

// ExportWeights はモデルの重みをエクスポート
func (pa *PassiveAggressiveRegressor) ExportWeights() (*model.ModelWeights, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	if err := pa.state.RequireFitted(passiveAggressiveName, "ExportWeights"); err != nil {
		return nil, err
	}
	_, seen := pa.state.GetDimensions()
	w := &model.ModelWeights{
		ModelType:    passiveAggressiveName,
		Version:      weightsVersion,
		Coefficients: append([]float64(nil), pa.coef_...),
		Intercept:    pa.intercept_,
		IsFitted:     true,
		Hyperparameters: map[string]float64{
			"C":             pa.C,
			"epsilon":       pa.epsilon,
			"fit_intercept": boolToFloat(pa.fitIntercept),
		},
		State: map[string]float64{
			"t":         float64(pa.t_),
			"n_samples": float64(seen),
		},
	}
	w.Seal()
	return w, nil
}

// ImportWeights はモデルの重みをインポート
func (pa *PassiveAggressiveRegressor) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("ImportWeights", "weights cannot be nil")
	}
	if err := weights.Validate(passiveAggressiveName, 0); err != nil {
		return err
	}

	pa.mu.Lock()
	defer pa.mu.Unlock()

	if v, ok := weights.Hyperparameters["C"]; ok {
		pa.C = v
	}
	if v, ok := weights.Hyperparameters["epsilon"]; ok {
		pa.epsilon = v
	}
	if v, ok := weights.Hyperparameters["fit_intercept"]; ok {
		pa.fitIntercept = v != 0
	}
	pa.coef_ = append([]float64(nil), weights.Coefficients...)
	pa.intercept_ = weights.Intercept
	pa.t_ = int64(weights.State["t"])

	pa.state.Reset()
	if weights.IsFitted {
		pa.state.SetDimensions(len(pa.coef_), int(weights.State["n_samples"]))
		pa.state.SetFitted()
	}
	return nil
}

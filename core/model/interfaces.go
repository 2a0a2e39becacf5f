// Package model defines the capability interfaces shared by fatigo's
// estimators, the thread-safe fitted-state holder, weight export types and
// the gob envelope used for persisted model state.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// WeightExporter は重みをエクスポート可能なモデルのインターフェース
type WeightExporter interface {
	// ExportWeights はモデルの重みをエクスポート
	ExportWeights() (*ModelWeights, error)

	// ImportWeights はモデルの重みをインポート
	ImportWeights(weights *ModelWeights) error
}

// OnlineRegressor is a regressor that learns one mini-batch at a time.
// sampleWeight may be nil, meaning every row has weight 1.
type OnlineRegressor interface {
	Predictor
	WeightExporter

	// PartialFit performs one pass over the given rows.
	PartialFit(X, y mat.Matrix, sampleWeight []float64) error

	// IsFitted reports whether at least one update has been applied.
	IsFitted() bool

	// Reset discards learned parameters and keeps hyperparameters.
	Reset()

	// Coef returns a copy of the learned coefficients.
	Coef() []float64
}

// IncrementalTransformer is a transformer whose statistics can be fitted in
// batch and then refined sample by sample.
type IncrementalTransformer interface {
	Fit(X mat.Matrix) error
	PartialFit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

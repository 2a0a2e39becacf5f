package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
// gobとJSONの両方で往復できるよう、マップは数値のみを保持する。
type ModelWeights struct {
	// ModelType はモデルの種類（SGDRegressor, PassiveAggressiveRegressor等）
	ModelType string `json:"model_type"`

	// Version はモデル実装のバージョン（互換性チェック用）
	Version string `json:"version"`

	// Coefficients は重み係数
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]float64 `json:"hyperparameters"`

	// State is optimizer state needed to resume learning (step counters).
	State map[string]float64 `json:"state,omitempty"`

	// Checksum is the sha256 of coefficients and intercept.
	Checksum string `json:"checksum"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ComputeChecksum returns the sha256 digest of the learned parameters.
func (mw *ModelWeights) ComputeChecksum() string {
	data := make([]float64, 0, len(mw.Coefficients)+1)
	data = append(data, mw.Coefficients...)
	data = append(data, mw.Intercept)
	raw, _ := json.Marshal(data)
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:])
}

// Seal stores the current checksum.
func (mw *ModelWeights) Seal() {
	mw.Checksum = mw.ComputeChecksum()
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate(expectedType string, nFeatures int) error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if expectedType != "" && mw.ModelType != expectedType {
		return errors.NewValidationError("model_type", "model type mismatch, expected "+expectedType, mw.ModelType)
	}
	if mw.Version == "" {
		return errors.NewValidationError("version", "is required", mw.Version)
	}
	if !mw.IsFitted && len(mw.Coefficients) > 0 {
		return errors.NewValidationError("coefficients", "unfitted model should not have coefficients", len(mw.Coefficients))
	}
	if mw.IsFitted && len(mw.Coefficients) == 0 {
		return errors.NewValidationError("coefficients", "fitted model must have coefficients", 0)
	}
	if mw.IsFitted && nFeatures > 0 && len(mw.Coefficients) != nFeatures {
		return errors.NewDimensionError("ImportWeights", nFeatures, len(mw.Coefficients), 1)
	}
	for _, c := range mw.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.NewNumericalInstabilityError("ImportWeights", mw.Coefficients, 0)
		}
	}
	if mw.Checksum != "" && mw.Checksum != mw.ComputeChecksum() {
		return errors.NewValidationError("checksum", "weights may be corrupted", mw.Checksum)
	}
	return nil
}

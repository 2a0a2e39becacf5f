// Package preprocessing provides feature scaling for the fatigue predictor.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

var _ model.IncrementalTransformer = (*StandardScaler)(nil)

// minScale は標準偏差が0に近い特徴量に使うしきい値
const minScale = 1e-8

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する。Fit でバッチ統計を計算し、
// PartialFit で1行ずつ統計を更新できる。全フィールドがgobで往復する。
type StandardScaler struct {
	// Mean は各特徴量の平均値
	Mean []float64

	// Var は各特徴量の母分散
	Var []float64

	// Scale は各特徴量の標準偏差
	Scale []float64

	// NSamplesSeen は統計に寄与したサンプル数
	NSamplesSeen int

	// NFeatures は特徴量の数
	NFeatures int

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	Fitted bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// IsFitted reports whether statistics are available.
func (s *StandardScaler) IsFitted() bool {
	return s.Fitted
}

// Reset discards all statistics.
func (s *StandardScaler) Reset() {
	s.Mean, s.Var, s.Scale = nil, nil, nil
	s.NSamplesSeen, s.NFeatures = 0, 0
	s.Fitted = false
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する。既存の統計は破棄される。
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.NFeatures = c
	s.NSamplesSeen = r
	s.Mean = make([]float64, c)
	s.Var = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		s.Mean[j], s.Var[j] = stat.PopMeanVariance(col, nil)
	}

	s.updateScale()
	s.Fitted = true
	return nil
}

// PartialFit merges the rows of X into the running statistics using the
// pairwise update of Chan et al. An unfitted scaler is fitted on X.
func (s *StandardScaler) PartialFit(X mat.Matrix) error {
	if !s.Fitted {
		return s.Fit(X)
	}
	r, c := X.Dims()
	if r == 0 {
		return errors.NewModelError("StandardScaler.PartialFit", "empty data", errors.ErrEmptyData)
	}
	if c != s.NFeatures {
		return errors.NewDimensionError("StandardScaler.PartialFit", s.NFeatures, c, 1)
	}

	nA := float64(s.NSamplesSeen)
	nB := float64(r)
	n := nA + nB
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		meanB, varB := stat.PopMeanVariance(col, nil)
		delta := meanB - s.Mean[j]
		m2 := s.Var[j]*nA + varB*nB + delta*delta*nA*nB/n
		s.Mean[j] += delta * nB / n
		s.Var[j] = m2 / n
	}
	s.NSamplesSeen += r

	s.updateScale()
	return nil
}

func (s *StandardScaler) updateScale() {
	s.Scale = make([]float64, s.NFeatures)
	for j := range s.Scale {
		if !s.WithStd {
			s.Scale[j] = 1.0
			continue
		}
		s.Scale[j] = math.Sqrt(s.Var[j])
		// 標準偏差が0に近い場合は1に設定（ゼロ除算を避ける）
		if s.Scale[j] < minScale {
			s.Scale[j] = 1.0
		}
	}
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if s.WithMean {
				v -= s.Mean[j]
			}
			result.Set(i, j, v/s.Scale[j])
		}
	}
	return result, nil
}

// TransformRow standardizes a single feature vector.
func (s *StandardScaler) TransformRow(x []float64) ([]float64, error) {
	out, err := s.Transform(mat.NewDense(1, len(x), append([]float64(nil), x...)))
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, out), nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j) * s.Scale[j]
			if s.WithMean {
				v += s.Mean[j]
			}
			result.Set(i, j, v)
		}
	}
	return result, nil
}

// Clone returns a deep copy.
func (s *StandardScaler) Clone() *StandardScaler {
	return &StandardScaler{
		Mean:         append([]float64(nil), s.Mean...),
		Var:          append([]float64(nil), s.Var...),
		Scale:        append([]float64(nil), s.Scale...),
		NSamplesSeen: s.NSamplesSeen,
		NFeatures:    s.NFeatures,
		WithMean:     s.WithMean,
		WithStd:      s.WithStd,
		Fitted:       s.Fitted,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.Fitted {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d, n_samples_seen=%d)",
		s.WithMean, s.WithStd, s.NFeatures, s.NSamplesSeen)
}

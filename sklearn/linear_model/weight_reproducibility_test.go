package linear_model

import (
	"encoding/json"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fatigo/core/model"
)

// makeLinearData は y = 2*x1 + 3*x2 - x3 + 5 の決定的なデータを作る
func makeLinearData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, math.Sin(float64(i)/10.0))
		X.Set(i, 1, math.Cos(float64(i)/10.0))
		X.Set(i, 2, float64(i%20)/10.0-1)
		y.Set(i, 0, 2*X.At(i, 0)+3*X.At(i, 1)-X.At(i, 2)+5)
	}
	return X, y
}

// TestWeightReproducibility は重みの完全な再現性をテスト
func TestWeightReproducibility(t *testing.T) {
	X, y := makeLinearData(100)

	tests := []struct {
		name  string
		build func() model.OnlineRegressor
	}{
		{"SGDRegressor", func() model.OnlineRegressor { return NewSGDRegressor() }},
		{"PassiveAggressiveRegressor", func() model.OnlineRegressor { return NewPassiveAggressiveRegressor() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model1 := tt.build()
			for epoch := 0; epoch < 3; epoch++ {
				if err := model1.PartialFit(X, y, nil); err != nil {
					t.Fatalf("PartialFit failed: %v", err)
				}
			}

			weights, err := model1.ExportWeights()
			if err != nil {
				t.Fatalf("Failed to export weights: %v", err)
			}
			jsonData, err := json.Marshal(weights)
			if err != nil {
				t.Fatalf("Failed to serialize weights: %v", err)
			}
			loaded := &model.ModelWeights{}
			if err := json.Unmarshal(jsonData, loaded); err != nil {
				t.Fatalf("Failed to deserialize weights: %v", err)
			}

			model2 := tt.build()
			if err := model2.ImportWeights(loaded); err != nil {
				t.Fatalf("Failed to import weights: %v", err)
			}

			pred1, err := model1.Predict(X)
			if err != nil {
				t.Fatal(err)
			}
			pred2, err := model2.Predict(X)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 100; i++ {
				if pred1.At(i, 0) != pred2.At(i, 0) {
					t.Fatalf("prediction mismatch at row %d: %.15f vs %.15f", i, pred1.At(i, 0), pred2.At(i, 0))
				}
			}

			// 学習を継続しても同じ軌跡をたどる
			if err := model1.PartialFit(X, y, nil); err != nil {
				t.Fatal(err)
			}
			if err := model2.PartialFit(X, y, nil); err != nil {
				t.Fatal(err)
			}
			c1, c2 := model1.Coef(), model2.Coef()
			for i := range c1 {
				if c1[i] != c2[i] {
					t.Errorf("coefficient %d diverged after resume: %v vs %v", i, c1[i], c2[i])
				}
			}
		})
	}
}

func TestImportWeightsRejectsTampering(t *testing.T) {
	X, y := makeLinearData(20)
	sgd := NewSGDRegressor()
	if err := sgd.PartialFit(X, y, nil); err != nil {
		t.Fatal(err)
	}
	w, err := sgd.ExportWeights()
	if err != nil {
		t.Fatal(err)
	}
	w.Coefficients[0] += 1

	if err := NewSGDRegressor().ImportWeights(w); err == nil {
		t.Error("ImportWeights should reject weights with a stale checksum")
	}
	if err := NewPassiveAggressiveRegressor().ImportWeights(w); err == nil {
		t.Error("ImportWeights should reject a different model type")
	}
}

func TestPartialFitAccumulatesSampleCount(t *testing.T) {
	X, y := makeLinearData(40)
	for name, reg := range map[string]model.OnlineRegressor{
		"SGDRegressor":               NewSGDRegressor(),
		"PassiveAggressiveRegressor": NewPassiveAggressiveRegressor(),
	} {
		for i := 0; i < 3; i++ {
			if err := reg.PartialFit(X, y, nil); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
		w, err := reg.ExportWeights()
		if err != nil {
			t.Fatal(err)
		}
		if got := w.State["n_samples"]; got != 120 {
			t.Errorf("%s: n_samples = %v, want 120", name, got)
		}
	}
}

package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "FullRefit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "fatigo: FullRefit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "fatigo: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 35, 28, 1)

	want := "fatigo: Predict: dimension mismatch on axis 1 (features). Expected 35, got 28"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 35 || dimErr.Got != 28 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("SGDRegressor", "PredictOne")

	want := "fatigo: SGDRegressor: this model is not fitted yet. Call Fit() before using PredictOne()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestSchemaMismatchError(t *testing.T) {
	err := NewSchemaMismatchError("current.gob", "n_features", 35, 28)

	want := "fatigo: current.gob: schema mismatch on n_features. Expected 35, got 28"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var schemaErr *SchemaMismatchError
	if !As(Wrap(err, "load model"), &schemaErr) {
		t.Error("wrapped error should still be castable to *SchemaMismatchError")
	}
}

func TestCorruptStateError(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := NewCorruptStateError("profile.json", cause)

	if !strings.Contains(err.Error(), "corrupt state: unexpected EOF") {
		t.Errorf("unexpected message: %v", err)
	}
	if !Is(err, cause) {
		t.Error("corrupt state error should unwrap to its cause")
	}
}

func TestDatasetError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "missing columns",
			err:  NewMissingColumnsError("a.csv", "nasa_tlx", []string{"effort", "frustration"}),
			want: []string{"a.csv", "nasa_tlx", "missing columns [effort, frustration]"},
		},
		{
			name: "invalid row",
			err:  NewDatasetRowError("b.csv", "cfq", 3, "physical_fatigue", "value 40 outside [0, 21]"),
			want: []string{"row 3", `column "physical_fatigue"`, "outside [0, 21]"},
		},
		{
			name: "empty",
			err:  NewDatasetError("c.csv", "no data rows"),
			want: []string{"c.csv", "no data rows"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				if !strings.Contains(tt.err.Error(), w) {
					t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), w)
				}
			}
			var dsErr *DatasetError
			if !As(tt.err, &dsErr) {
				t.Error("Error should be castable to *DatasetError")
			}
		})
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("SGDRegressor", 120, "coefficients became NaN")

	want := "SGDRegressor failed to converge after 120 iterations: coefficients became NaN"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnUsesZerologSink(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewModelDriftWarning("DDM", 0.4, 0.3, "retrain"))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "DDM") {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWrapfAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Predict: expected 10, got 5") {
		t.Errorf("unexpected message: %v", wrapped)
	}
}

func TestNumericalHelpers(t *testing.T) {
	if SafeDivide(1, 0) != 0 {
		t.Error("SafeDivide by zero should return 0")
	}
	if SafeDivide(6, 3) != 2 {
		t.Error("SafeDivide(6, 3) should return 2")
	}
	if ClipValue(120, 0, 100) != 100 || ClipValue(-3, 0, 100) != 0 || ClipValue(42, 0, 100) != 42 {
		t.Error("ClipValue did not clip to range")
	}
	if err := CheckNumericalStability("update", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("finite values reported unstable: %v", err)
	}
	nan := 0.0
	nan = nan / nan
	if err := CheckScalar("update", nan, 7); err == nil {
		t.Error("NaN should be reported")
	}
}

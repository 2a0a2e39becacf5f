package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/sklearn/linear_model"
)

// Member names.
const (
	MemberSGD               = "sgd"
	MemberPassiveAggressive = "passive_aggressive"
)

// Member is the capability an ensemble member must provide.
type Member interface {
	Name() string
	FitOne(x []float64, y, w float64) error
	FitBatch(X [][]float64, y, w []float64) error
	PredictOne(x []float64) (float64, error)
	IsFitted() bool
	Reset()
	Coef() []float64
	model.WeightExporter
}

// regressorMember adapts an online regressor to Member.
type regressorMember struct {
	name string
	model.OnlineRegressor
}

// NewMember wraps reg under name.
func NewMember(name string, reg model.OnlineRegressor) Member {
	return &regressorMember{name: name, OnlineRegressor: reg}
}

// DefaultMembers returns the SGD and passive-aggressive members.
func DefaultMembers() []Member {
	return []Member{
		NewMember(MemberSGD, linear_model.NewSGDRegressor()),
		NewMember(MemberPassiveAggressive, linear_model.NewPassiveAggressiveRegressor()),
	}
}

func (m *regressorMember) Name() string { return m.name }

func (m *regressorMember) FitOne(x []float64, y, w float64) error {
	X := mat.NewDense(1, len(x), append([]float64(nil), x...))
	return m.PartialFit(X, mat.NewDense(1, 1, []float64{y}), []float64{w})
}

func (m *regressorMember) FitBatch(X [][]float64, y, w []float64) error {
	if len(X) == 0 {
		return nil
	}
	d := len(X[0])
	data := make([]float64, 0, len(X)*d)
	for _, row := range X {
		data = append(data, row...)
	}
	return m.PartialFit(mat.NewDense(len(X), d, data), mat.NewDense(len(y), 1, append([]float64(nil), y...)), w)
}

func (m *regressorMember) PredictOne(x []float64) (float64, error) {
	out, err := m.Predict(mat.NewDense(1, len(x), append([]float64(nil), x...)))
	if err != nil {
		return 0, err
	}
	return out.At(0, 0), nil
}
